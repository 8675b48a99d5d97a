package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	eventqueue "github.com/okian/pitwall/internal/adapters/mq/queue"
	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

const maxBodyBytes = 1 << 20

// ObservationDependencies defines the interface for observation ingestion.
type ObservationDependencies interface {
	Submit(ctx context.Context, obs model.Observation) (service.SubmitResult, error)
}

// ObservationHandler handles observation requests.
type ObservationHandler struct {
	deps   ObservationDependencies
	logger logger.Logger
}

// NewObservationHandler creates a new observation handler.
func NewObservationHandler(deps ObservationDependencies, log logger.Logger) *ObservationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ObservationHandler{deps: deps, logger: log}
}

// HandlePostObservations handles POST /observations. The body is one
// observation or {"observations": [...]}.
func (h *ObservationHandler) HandlePostObservations(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_observations"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	// Only a top-level "observations" key selects the batch shape.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if raw, ok := fields["observations"]; ok {
		var batch observationBatch
		if err := json.Unmarshal(raw, &batch.Observations); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		h.handleBatch(w, r, batch.Observations)
		return
	}

	var obs model.Observation
	if err := json.Unmarshal(body, &obs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.Submit(r.Context(), obs)
	if err != nil {
		status, code := classify(err)
		writeError(w, status, code, wrapKind(op, kindFor(status), err))
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{ID: res.ID, Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{ID: res.ID, Status: "accepted"})
}

func (h *ObservationHandler) handleBatch(w http.ResponseWriter, r *http.Request, batch []model.Observation) {
	const op = "api.post_observations"
	if len(batch) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", newKind(op, ErrBadRequest))
		return
	}

	resp := batchResponse{Results: make([]ackResponse, 0, len(batch))}
	for _, obs := range batch {
		res, err := h.deps.Submit(r.Context(), obs)
		switch {
		case errors.Is(err, service.ErrNotStarted), errors.Is(err, eventqueue.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "unavailable", wrapKind(op, ErrUnavailable, err))
			return
		case err != nil:
			resp.Rejected++
			resp.Results = append(resp.Results, ackResponse{ID: res.ID, Status: "rejected", Error: err.Error()})
		case res.Duplicate:
			resp.Duplicate++
			resp.Results = append(resp.Results, ackResponse{ID: res.ID, Status: "duplicate", Duplicate: true})
		default:
			resp.Accepted++
			resp.Results = append(resp.Results, ackResponse{ID: res.ID, Status: "accepted"})
		}
	}

	if resp.Rejected > 0 {
		h.logger.Warn(r.Context(), "observation batch partially rejected",
			logger.Int("accepted", resp.Accepted),
			logger.Int("rejected", resp.Rejected),
		)
	}
	status := http.StatusAccepted
	if resp.Accepted == 0 && resp.Rejected == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// classify maps a Submit error to a status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidObservation), errors.Is(err, model.ErrOutOfOrder):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, eventqueue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted), errors.Is(err, eventqueue.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func kindFor(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusTooManyRequests:
		return ErrBackpressure
	case http.StatusServiceUnavailable:
		return ErrUnavailable
	default:
		return errors.New(http.StatusText(status))
	}
}
