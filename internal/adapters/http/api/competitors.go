package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	repository "github.com/okian/pitwall/internal/adapters/repository"
)

// CompetitorDependencies defines the interface for competitor lookups.
type CompetitorDependencies interface {
	Competitors(ctx context.Context) []Competitor
	Competitor(ctx context.Context, name string) (Competitor, error)
}

// CompetitorHandler handles competitor requests.
type CompetitorHandler struct {
	deps CompetitorDependencies
}

// NewCompetitorHandler creates a new competitor handler.
func NewCompetitorHandler(deps CompetitorDependencies) *CompetitorHandler {
	return &CompetitorHandler{deps: deps}
}

// HandleList handles GET /competitors.
func (h *CompetitorHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Competitors(r.Context()))
}

// HandleGet handles GET /competitors/{name}.
func (h *CompetitorHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_competitor"
	name := chi.URLParam(r, "name")
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
		return
	}
	c, err := h.deps.Competitor(r.Context(), name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
