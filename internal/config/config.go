// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers defaults, an optional YAML file and PITWALL_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory observation queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers and the fan-out of
	// threshold recomputation.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize is how many observation IDs are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// SnapshotPath is the roster file. SnapshotIntervalS > 0 saves it
	// periodically while the server runs.
	SnapshotPath      string `koanf:"snapshot_path"`
	SnapshotIntervalS int    `koanf:"snapshot_interval_s"`

	// MaxReportLimit caps GET /report?limit.
	MaxReportLimit int `koanf:"max_report_limit"`

	// Tier averages for the threshold search.
	PoorThreshold      float64 `koanf:"poor_threshold"`
	GoodThreshold      float64 `koanf:"good_threshold"`
	ExcellentThreshold float64 `koanf:"excellent_threshold"`

	// SearchStart is the first candidate tried; SearchMaxSteps bounds the
	// search per competitor.
	SearchStart    int `koanf:"search_start"`
	SearchMaxSteps int `koanf:"search_max_steps"`

	// TierAValue is the value from which a competitor is tier "A".
	TierAValue float64 `koanf:"tier_a_value"`

	// CORSOrigins lists allowed browser origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// IngestRatePerSec and IngestBurst limit POST /observations per client IP.
	IngestRatePerSec float64 `koanf:"ingest_rate_per_sec"`
	IngestBurst      int     `koanf:"ingest_burst"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		QueueSize:          1024,
		WorkerCount:        runtime.NumCPU(),
		DedupeSize:         50_000,
		SnapshotPath:       "data/roster.json",
		SnapshotIntervalS:  60,
		MaxReportLimit:     100,
		PoorThreshold:      0.6,
		GoodThreshold:      0.9,
		ExcellentThreshold: 1.2,
		SearchStart:        -1000,
		SearchMaxSteps:     1_000_000,
		TierAValue:         19.0,
		CORSOrigins:        []string{"*"},
		IngestRatePerSec:   20,
		IngestBurst:        40,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.SnapshotIntervalS < 0:
		return fmt.Errorf("%w: snapshot_interval_s must not be negative", ErrInvalidConfig)
	case c.MaxReportLimit <= 0:
		return fmt.Errorf("%w: max_report_limit must be positive", ErrInvalidConfig)
	case c.PoorThreshold > c.GoodThreshold || c.GoodThreshold > c.ExcellentThreshold:
		return fmt.Errorf("%w: thresholds must satisfy poor <= good <= excellent", ErrInvalidConfig)
	case c.SearchMaxSteps <= 0:
		return fmt.Errorf("%w: search_max_steps must be positive", ErrInvalidConfig)
	case c.IngestRatePerSec < 0 || c.IngestBurst < 0:
		return fmt.Errorf("%w: ingest rate and burst must not be negative", ErrInvalidConfig)
	}
	return nil
}
