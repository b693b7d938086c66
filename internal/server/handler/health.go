package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	service string
}

// NewHealthHandler creates a HealthHandler reporting the given service name.
func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service}
}

// HealthCheck reports that the process is alive. It carries no dependency
// checks; /api/status is the place for those.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   h.service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
