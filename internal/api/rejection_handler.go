package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/msgstore"
)

// parseItemID extracts and validates the {id} URL parameter.
func parseItemID(r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// GetRejectionHandler handles GET /api/v1/rejections/{id}.
func GetRejectionHandler(archive *msgstore.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseItemID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid item id")
			return
		}

		rej, err := archive.Load(r.Context(), id)
		if err != nil {
			if errors.Is(err, msgstore.ErrNotFound) {
				respondError(w, http.StatusNotFound, "rejection not found")
				return
			}
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("item_id", id).Msg("load rejection failed")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		respondJSON(w, http.StatusOK, rej)
	}
}

// DeleteRejectionHandler handles DELETE /api/v1/rejections/{id}.
func DeleteRejectionHandler(archive *msgstore.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseItemID(r)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid item id")
			return
		}

		if err := archive.Remove(r.Context(), id); err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("item_id", id).Msg("remove rejection failed")
			respondError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
