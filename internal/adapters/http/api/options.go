package api

import "github.com/okian/pitwall/pkg/logger"

const defaultMaxReportLimit = 100

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxReportLimit caps the limit accepted by GET /report.
func WithMaxReportLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxReportLimit = n
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithIngestRateLimit limits POST /observations per client IP. A
// non-positive rate disables the limiter.
func WithIngestRateLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		s.ratePerSec = perSec
		s.burst = burst
	}
}

// WithLogger sets the logger used by handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
