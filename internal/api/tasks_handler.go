package api

import (
	"net/http"

	"github.com/sungwon/wa-dispatch/internal/supervisor"
)

// TasksHandler handles GET /tasks with the supervisor's task stats.
func TasksHandler(sup *supervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"tasks": sup.Snapshot()})
	}
}
