package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/okian/pitwall/pkg/logger"
)

// Watch reloads path whenever it is written or replaced and passes the new
// Config to onChange. A reload that fails to parse or validate is logged and
// skipped. Watch returns when ctx is done.
//
// The parent directory is watched rather than the file, so saves that write a
// temp file and rename it over path are seen.
func Watch(ctx context.Context, path string, log logger.Logger, onChange func(*Config)) error {
	if log == nil {
		log = logger.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %w", ErrWatchConfig, err)
	}
	dir, base := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	target := filepath.Join(dir, base)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWatchConfig, err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWatchConfig, dir, err)
	}
	log.Info(ctx, "watching config", logger.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := LoadFile(ctx, path)
			if err != nil {
				log.Error(ctx, "config reload failed, keeping previous config",
					logger.String("path", path), logger.Error(err))
				continue
			}
			log.Info(ctx, "config reloaded", logger.String("path", path))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(ctx, "config watcher error", logger.Error(err))
		}
	}
}
