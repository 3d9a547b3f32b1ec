package api

import (
	"net/http"
	"time"
)

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	now := a.now()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Timestamp:   now.UTC().Format(time.RFC3339),
		Environment: a.environment,
		Uptime:      now.Sub(a.startedAt).Seconds(),
	})
}
