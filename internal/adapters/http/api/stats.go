package api

import (
	"net/http"
	"strings"
)

// StatsProvider exposes the service counters served on /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

type StatsHandler struct {
	provider StatsProvider
}

func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats writes the service counters. A comma separated keys parameter
// narrows the document; unknown keys are ignored.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.provider.GetStats()
	raw := r.URL.Query().Get("keys")
	if raw == "" {
		writeJSON(w, http.StatusOK, stats)
		return
	}

	picked := make(map[string]interface{})
	for _, key := range strings.Split(raw, ",") {
		key = strings.TrimSpace(key)
		if v, ok := stats[key]; ok {
			picked[key] = v
		}
	}
	writeJSON(w, http.StatusOK, picked)
}
