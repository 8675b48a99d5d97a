// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/internal/domain/report"
	"github.com/okian/pitwall/internal/domain/types"
	"github.com/okian/pitwall/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ObservationDependencies
	CompetitorDependencies
	ReportDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps Dependencies

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	observationHandler *ObservationHandler
	competitorHandler  *CompetitorHandler
	reportHandler      *ReportHandler

	maxReportLimit int
	corsOrigins    []string
	ratePerSec     float64
	burst          int
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:           deps,
		maxReportLimit: defaultMaxReportLimit,
		corsOrigins:    []string{"*"},
		logger:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.observationHandler = NewObservationHandler(deps, s.logger)
	s.competitorHandler = NewCompetitorHandler(deps)
	s.reportHandler = NewReportHandler(deps, s.maxReportLimit)
	return s
}

// Router builds the chi router with the middleware stack and every route.
func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	c := corslib.New(corslib.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(c.Handler)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Group(func(r chi.Router) {
		if s.ratePerSec > 0 {
			r.Use(RateLimitMiddleware(s.ratePerSec, s.burst))
		}
		r.Post("/observations", MetricsMiddleware(s.observationHandler.HandlePostObservations, "observations"))
	})

	r.Route("/competitors", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.competitorHandler.HandleList, "competitors"))
		r.Get("/{name}", MetricsMiddleware(s.competitorHandler.HandleGet, "competitor"))
	})
	r.Post("/thresholds", MetricsMiddleware(s.reportHandler.HandleRecompute, "thresholds"))
	r.Get("/report", MetricsMiddleware(s.reportHandler.HandleReport, "report"))

	s.logger.Debug(ctx, "http routes registered",
		logger.Int("maxReportLimit", s.maxReportLimit),
		logger.Float64("ingestRatePerSec", s.ratePerSec),
	)
	return r
}

// Compile-time check that the service satisfies the handler contracts.
var _ Dependencies = (*service.Service)(nil)

// Views returned by the handlers.
type (
	Competitor = types.Competitor
	Row        = report.Row
)

type observationBatch struct {
	Observations []model.Observation `json:"observations"`
}

type ackResponse struct {
	ID        string `json:"id,omitempty"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	Error     string `json:"error,omitempty"`
}

type batchResponse struct {
	Accepted  int           `json:"accepted"`
	Duplicate int           `json:"duplicate"`
	Rejected  int           `json:"rejected"`
	Results   []ackResponse `json:"results"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
