package repository

import "time"

// Option applies a configuration option to the InMemoryRoster.
type Option func(*InMemoryRoster)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(r *InMemoryRoster) {
		if interval > 0 {
			r.metricsUpdateInterval = interval
		}
	}
}
