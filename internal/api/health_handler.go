package api

import (
	"context"
	"net/http"
)

// Pinger checks a backend's connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles GET /health.
// Returns 200 when the queue backend answers a ping and 500 otherwise.
func HealthHandler(q Pinger, workers int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := q.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"workers": workers,
			"queue":   "connected",
		})
	}
}
