// Package snapshot persists the roster to a single JSON file.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/pitwall/internal/domain/profile"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// Version is written to every snapshot. Version "1" files stored each
// record in its text form and are still readable.
const Version = "2"

// ErrUnsupportedVersion is returned for snapshots written by a newer build.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// File is the on-disk document.
type File struct {
	Version     string             `json:"version"`
	SavedAt     time.Time          `json:"saved_at"`
	Competitors []*profile.Profile `json:"competitors"`
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithPermissions sets file and directory modes.
func WithPermissions(file, dir os.FileMode) Option {
	return func(s *FileStore) {
		s.filePerm = file
		s.dirPerm = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// FileStore reads and writes roster snapshots.
type FileStore struct {
	path     string
	filePerm os.FileMode
	dirPerm  os.FileMode
	logger   logger.Logger
}

// NewFileStore creates a store at path. An empty path uses the OS temp
// directory.
func NewFileStore(path string, opts ...Option) *FileStore {
	if path == "" {
		path = filepath.Join(os.TempDir(), "pitwall", "roster.json")
	}
	s := &FileStore{
		path:     path,
		filePerm: 0o644,
		dirPerm:  0o755,
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the snapshot location.
func (s *FileStore) Path() string { return s.path }

// Save writes profiles atomically: a temp file is written and renamed over
// the snapshot.
func (s *FileStore) Save(ctx context.Context, profiles []*profile.Profile) error {
	start := time.Now()
	if err := s.save(profiles); err != nil {
		metrics.RecordSnapshotError("save")
		return err
	}
	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordSnapshotSave(ms)
	s.logger.Debug(ctx, "snapshot saved",
		logger.String("path", s.path),
		logger.Int("competitors", len(profiles)),
		logger.Float64("duration_ms", ms),
	)
	return nil
}

func (s *FileStore) save(profiles []*profile.Profile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), s.dirPerm); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if profiles == nil {
		profiles = []*profile.Profile{}
	}

	data, err := json.MarshalIndent(File{
		Version:     Version,
		SavedAt:     time.Now().UTC(),
		Competitors: profiles,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, s.filePerm); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file yields an empty roster. A temp
// file left by an interrupted save is removed first.
func (s *FileStore) Load(ctx context.Context) ([]*profile.Profile, error) {
	start := time.Now()
	profiles, err := s.load()
	if err != nil {
		metrics.RecordSnapshotError("load")
		return nil, err
	}
	ms := float64(time.Since(start).Milliseconds())
	metrics.RecordSnapshotLoad(ms)
	s.logger.Debug(ctx, "snapshot loaded",
		logger.String("path", s.path),
		logger.Int("competitors", len(profiles)),
	)
	return profiles, nil
}

func (s *FileStore) load() ([]*profile.Profile, error) {
	tmp := s.path + ".tmp"
	if _, err := os.Stat(tmp); err == nil {
		_ = os.Remove(tmp)
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []*profile.Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	switch f.Version {
	case "", "1", Version:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, f.Version)
	}

	out := make([]*profile.Profile, 0, len(f.Competitors))
	for _, p := range f.Competitors {
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}
