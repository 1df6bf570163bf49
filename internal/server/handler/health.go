package handler

import (
	"net/http"
	"time"

	"depthcast/internal/book"
)

// HealthHandler reports process liveness and per-pair engine state.
type HealthHandler struct {
	engines   map[string]*book.Engine
	startedAt time.Time
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(engines map[string]*book.Engine) *HealthHandler {
	return &HealthHandler{
		engines:   engines,
		startedAt: time.Now().UTC(),
	}
}

// HealthCheck reports uptime and each engine's lifecycle state.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	pairs := make(map[string]string, len(h.engines))
	for ticker, e := range h.engines {
		pairs[ticker] = string(e.State())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"pairs":          pairs,
	})
}
