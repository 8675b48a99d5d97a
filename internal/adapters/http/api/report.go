package api

import (
	"context"
	"net/http"
	"strconv"

	service "github.com/okian/pitwall/internal/app"
)

// ReportDependencies defines the interface for ranking and recomputation.
type ReportDependencies interface {
	Report(ctx context.Context, limit int) []Row
	Recompute(ctx context.Context) (service.Summary, error)
}

// ReportHandler handles report and threshold requests.
type ReportHandler struct {
	deps     ReportDependencies
	maxLimit int
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps ReportDependencies, maxLimit int) *ReportHandler {
	return &ReportHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleReport handles GET /report?limit=N. Without a limit the first
// maxLimit rows are returned.
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_report"
	n := h.maxLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", newKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	writeJSON(w, http.StatusOK, h.deps.Report(r.Context(), n))
}

// HandleRecompute handles POST /thresholds.
func (h *ReportHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	sum, err := h.deps.Recompute(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind("api.recompute", ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
