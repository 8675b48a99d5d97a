package snapshot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/pitwall/internal/adapters/snapshot"
	"github.com/okian/pitwall/internal/domain/profile"
	"github.com/okian/pitwall/internal/domain/record"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFileStore(t *testing.T) {
	Convey("Given a file store in a temp directory", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		path := filepath.Join(dir, "data", "roster.json")
		store := snapshot.NewFileStore(path)

		Convey("When nothing was saved yet", func() {
			profiles, err := store.Load(ctx)

			Convey("Then the roster is empty", func() {
				So(err, ShouldBeNil)
				So(profiles, ShouldBeEmpty)
			})
		})

		Convey("When a roster is saved and loaded", func() {
			p := profile.New("Oliver Bearman Haas", 5.8, -0.1)
			p.Add("Bahrain", record.NewSparse(3))
			p.Add("Jeddah", record.NewRich(11, 5.85, -0.15))
			p.SetThresholds(profile.Thresholds{ToPoor: -4, ToGood: 2, ToExcellent: 9})
			q := profile.New("Isack Hadjar RB", 6.2, 0)

			So(store.Save(ctx, []*profile.Profile{p, q}), ShouldBeNil)
			loaded, err := store.Load(ctx)

			Convey("Then every field round trips exactly", func() {
				So(err, ShouldBeNil)
				So(len(loaded), ShouldEqual, 2)
				So(loaded[0].Name, ShouldEqual, p.Name)
				So(loaded[0].Value, ShouldEqual, p.Value)
				So(loaded[0].Trend, ShouldEqual, p.Trend)
				So(loaded[0].Thresholds, ShouldResemble, p.Thresholds)
				So(loaded[0].History(), ShouldResemble, p.History())
				So(loaded[1].Len(), ShouldEqual, 0)
			})

			Convey("And no temp file is left behind", func() {
				_, err := os.Stat(path + ".tmp")
				So(os.IsNotExist(err), ShouldBeTrue)
			})
		})

		Convey("When a stale temp file exists", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o755), ShouldBeNil)
			So(os.WriteFile(path+".tmp", []byte("garbage"), 0o644), ShouldBeNil)

			_, err := store.Load(ctx)

			Convey("Then it is removed on load", func() {
				So(err, ShouldBeNil)
				_, statErr := os.Stat(path + ".tmp")
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When a version 1 file stores records as text", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o755), ShouldBeNil)
			legacy := `{"version":"1","competitors":[{"name":"Max","value":30.1,"trend":0.2,
				"history":[{"event":"Bahrain","record":"18 pts"},{"event":"Jeddah","record":"25 pts | $30,1M | +0,2M"}]}]}`
			So(os.WriteFile(path, []byte(legacy), 0o644), ShouldBeNil)

			loaded, err := store.Load(ctx)

			Convey("Then the records are decoded", func() {
				So(err, ShouldBeNil)
				So(len(loaded), ShouldEqual, 1)
				h := loaded[0].History()
				So(h[0].Record, ShouldResemble, record.NewSparse(18))
				So(h[1].Record.Kind, ShouldEqual, record.Rich)
				So(h[1].Record.Value, ShouldAlmostEqual, 30.1, 1e-9)
			})
		})

		Convey("When the file comes from a newer version", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o755), ShouldBeNil)
			So(os.WriteFile(path, []byte(`{"version":"9","competitors":[]}`), 0o644), ShouldBeNil)

			_, err := store.Load(ctx)
			So(errors.Is(err, snapshot.ErrUnsupportedVersion), ShouldBeTrue)
		})

		Convey("When the file is corrupt", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o755), ShouldBeNil)
			So(os.WriteFile(path, []byte("{"), 0o644), ShouldBeNil)

			_, err := store.Load(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}
