package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/queue"
)

const (
	defaultReprocessCount = 100
	maxReprocessCount     = 1000
)

// dlqReprocessRequest is the JSON body for POST /api/v1/dlq/reprocess.
type dlqReprocessRequest struct {
	Count int `json:"count"`
}

// dlqReprocessResponse is the JSON response for a DLQ reprocess operation.
type dlqReprocessResponse struct {
	Requeued  int   `json:"requeued"`
	Remaining int64 `json:"remaining"`
}

// DLQReprocessHandler handles POST /api/v1/dlq/reprocess.
// It moves up to count dead-lettered items back onto the primary queue. An
// empty body reprocesses the default count.
func DLQReprocessHandler(dlq queue.DeadLetters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		req := dlqReprocessRequest{Count: defaultReprocessCount}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Count <= 0 || req.Count > maxReprocessCount {
			respondError(w, http.StatusBadRequest, "count must be between 1 and 1000")
			return
		}

		requeued, err := dlq.Requeue(r.Context(), req.Count)
		if err != nil {
			log.Error().Err(err).
				Int("requested", req.Count).
				Int("requeued", requeued).
				Msg("dlq reprocess failed")
			respondError(w, http.StatusInternalServerError, "reprocess failed")
			return
		}

		remaining, err := dlq.Depth(r.Context())
		if err != nil {
			log.Warn().Err(err).Msg("dlq depth unavailable after reprocess")
			remaining = -1
		}

		log.Info().
			Int("requeued", requeued).
			Int64("remaining", remaining).
			Msg("dlq reprocess completed")

		respondJSON(w, http.StatusOK, dlqReprocessResponse{Requeued: requeued, Remaining: remaining})
	}
}

// DLQDepthHandler handles GET /api/v1/dlq.
func DLQDepthHandler(dlq queue.DeadLetters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depth, err := dlq.Depth(r.Context())
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("dlq depth failed")
			respondError(w, http.StatusInternalServerError, "depth unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]int64{"depth": depth})
	}
}
