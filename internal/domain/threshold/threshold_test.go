package threshold_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/pitwall/internal/domain/profile"
	"github.com/okian/pitwall/internal/domain/record"
	"github.com/okian/pitwall/internal/domain/threshold"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// withPPMs builds a profile whose two most recent events have the given race
// PPMs at a race value of 10.
func withPPMs(value float64, older, newer int) *profile.Profile {
	p := profile.New("George Russell Mercedes", value, 0.3)
	p.Add("Bahrain", record.NewSparse(2))
	p.Add("Jeddah", record.NewRich(older, 10.0, 0.0))
	p.Add("Melbourne", record.NewRich(newer, 10.0, 0.0))
	return p
}

func mean(s0, s1 float64, c int, value float64) float64 {
	return (s0 + s1 + float64(c)/value) / 3
}

func TestPredictorCompute(t *testing.T) {
	convey.Convey("Given a predictor with the default tiers", t, func() {
		ctx := context.Background()
		rec := logger.NewRecorder()
		pred, err := threshold.New(threshold.WithLogger(rec))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When recent PPMs are 0.5 and 0.7 and the value is 4.0", func() {
			p := withPPMs(4.0, 5, 7)
			th, err := pred.Compute(ctx, p)

			convey.Convey("Then the poor threshold is 3", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(th.ToPoor, convey.ShouldEqual, 3)
			})

			convey.Convey("And every threshold is the first candidate reaching its tier", func() {
				for _, c := range []struct {
					points int
					target float64
				}{{th.ToPoor, 0.6}, {th.ToGood, 0.9}, {th.ToExcellent, 1.2}} {
					convey.So(mean(0.5, 0.7, c.points, 4.0), convey.ShouldBeGreaterThanOrEqualTo, c.target)
					convey.So(mean(0.5, 0.7, c.points-1, 4.0), convey.ShouldBeLessThan, c.target)
				}
			})

			convey.Convey("And the thresholds are non-decreasing", func() {
				convey.So(th.ToPoor, convey.ShouldBeLessThanOrEqualTo, th.ToGood)
				convey.So(th.ToGood, convey.ShouldBeLessThanOrEqualTo, th.ToExcellent)
			})

			convey.Convey("And the result is cached on the profile", func() {
				convey.So(p.Thresholds.Computed, convey.ShouldBeTrue)
				convey.So(p.Thresholds.ToPoor, convey.ShouldEqual, th.ToPoor)
				convey.So(p.Thresholds.ToExcellent, convey.ShouldEqual, th.ToExcellent)
			})

			convey.Convey("And one event is logged per tier", func() {
				found := rec.Messages("threshold found")
				convey.So(len(found), convey.ShouldEqual, 3)
				convey.So(found[0].Fields["tier"], convey.ShouldEqual, "poor")
				convey.So(found[0].Fields["points"], convey.ShouldEqual, 3)
				convey.So(found[2].Fields["tier"], convey.ShouldEqual, "excellent")
			})
		})

		convey.Convey("When recent form is already above every tier", func() {
			p := withPPMs(12.0, 40, 50)
			th, err := pred.Compute(ctx, p)

			convey.So(err, convey.ShouldBeNil)
			convey.So(th.ToPoor, convey.ShouldBeLessThan, 0)
			convey.So(th.ToPoor, convey.ShouldBeLessThanOrEqualTo, th.ToGood)
			convey.So(th.ToGood, convey.ShouldBeLessThanOrEqualTo, th.ToExcellent)
		})

		convey.Convey("When events were recorded with more than one decimal", func() {
			stored := profile.New("Lance Stroll Aston Martin", 7.34, 0.26)
			stored.Add("Bahrain", record.NewRich(14, 7.34, 0.26))
			stored.Add("Jeddah", record.NewRich(22, 7.34, 0.26))

			decoded := profile.New(stored.Name, stored.Value, stored.Trend)
			for _, e := range stored.History() {
				r, err := record.Decode(record.Encode(e.Record))
				convey.So(err, convey.ShouldBeNil)
				decoded.Add(e.Event, r)
			}

			fromStored, err := pred.Compute(ctx, stored)
			convey.So(err, convey.ShouldBeNil)
			fromText, err := pred.Compute(ctx, decoded)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the race PPMs use the one-decimal figures", func() {
				convey.So(fromStored.ToPoor, convey.ShouldEqual, -24)
				convey.So(fromStored.ToGood, convey.ShouldEqual, -17)
				convey.So(fromStored.ToExcellent, convey.ShouldEqual, -11)
			})

			convey.Convey("And the text form yields the same thresholds", func() {
				convey.So(fromText, convey.ShouldResemble, fromStored)
			})
		})

		convey.Convey("When the current value is zero", func() {
			p := withPPMs(0, 5, 7)
			_, err := pred.Compute(ctx, p)

			convey.Convey("Then a domain error is returned without searching", func() {
				var de *threshold.DomainError
				convey.So(errors.As(err, &de), convey.ShouldBeTrue)
				convey.So(de.Competitor, convey.ShouldEqual, p.Name)
				convey.So(errors.Is(err, threshold.ErrNonPositiveValue), convey.ShouldBeTrue)
				convey.So(p.Thresholds.Computed, convey.ShouldBeFalse)
				convey.So(rec.Messages("threshold found"), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the value is negative", func() {
			_, err := pred.Compute(ctx, withPPMs(-2.5, 5, 7))
			convey.So(errors.Is(err, threshold.ErrNonPositiveValue), convey.ShouldBeTrue)
		})

		convey.Convey("When fewer than two events exist", func() {
			p := profile.New("Rookie", 8.0, 0)
			p.Add("Bahrain", record.NewRich(10, 8.0, 0))
			_, err := pred.Compute(ctx, p)

			convey.So(errors.Is(err, threshold.ErrInsufficientHistory), convey.ShouldBeTrue)
		})

		convey.Convey("When a recent event is sparse", func() {
			p := profile.New("Alex Albon Williams", 8.0, 0)
			p.Add("Bahrain", record.NewRich(10, 8.0, 0))
			p.Add("Jeddah", record.NewSparse(4))
			_, err := pred.Compute(ctx, p)

			convey.Convey("Then the zero race value is reported for that event", func() {
				var de *threshold.DomainError
				convey.So(errors.As(err, &de), convey.ShouldBeTrue)
				convey.So(de.Event, convey.ShouldEqual, "Jeddah")
				convey.So(errors.Is(err, threshold.ErrNonPositiveValue), convey.ShouldBeTrue)
				convey.So(errors.Is(err, record.ErrZeroRaceValue), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the trend cancels the recorded value", func() {
			p := profile.New("Yuki Tsunoda RB", 8.0, 0)
			p.Add("Bahrain", record.NewRich(10, 8.0, 0))
			p.Add("Jeddah", record.NewRich(6, 1.5, 1.5))
			_, err := pred.Compute(ctx, p)

			convey.So(errors.Is(err, record.ErrZeroRaceValue), convey.ShouldBeTrue)
		})
	})
}

func TestPredictorOptions(t *testing.T) {
	convey.Convey("Given custom options", t, func() {
		ctx := context.Background()

		convey.Convey("When the step budget is too small", func() {
			pred, err := threshold.New(threshold.WithMaxSteps(10))
			convey.So(err, convey.ShouldBeNil)

			_, err = pred.Compute(ctx, withPPMs(4.0, 5, 7))
			convey.So(errors.Is(err, threshold.ErrSearchExhausted), convey.ShouldBeTrue)
		})

		convey.Convey("When the search starts above the answer", func() {
			pred, err := threshold.New(threshold.WithSearchStart(50))
			convey.So(err, convey.ShouldBeNil)

			th, err := pred.Compute(ctx, withPPMs(4.0, 5, 7))
			convey.So(err, convey.ShouldBeNil)
			convey.So(th.ToPoor, convey.ShouldEqual, 50)
		})

		convey.Convey("When tiers are decreasing", func() {
			_, err := threshold.New(threshold.WithTiers(0.9, 0.6, 1.2))
			convey.So(errors.Is(err, threshold.ErrInvalidTiers), convey.ShouldBeTrue)
		})

		convey.Convey("When tiers are customised", func() {
			pred, err := threshold.New(threshold.WithTiers(0.4, 0.4, 0.8))
			convey.So(err, convey.ShouldBeNil)
			convey.So(pred.Tiers()[1].Target, convey.ShouldEqual, 0.4)

			th, err := pred.Compute(ctx, withPPMs(4.0, 5, 7))
			convey.So(err, convey.ShouldBeNil)
			convey.So(th.ToPoor, convey.ShouldEqual, th.ToGood)
		})
	})
}
