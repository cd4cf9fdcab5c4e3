package api

import (
	"encoding/json"
	"net/http"

	"github.com/sungwon/wa-dispatch/internal/notify"
)

// respondJSON writes a JSON response with the given status code and data.
// If data is nil, only the status code and Content-Type header are written.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response with the given status code and message.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// webhookResponse is the body returned to WebEngage by the ingest endpoint.
type webhookResponse struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

const invalidFormatMessage = "The message format is invalid"

func respondAccepted(w http.ResponseWriter) {
	respondJSON(w, http.StatusAccepted, webhookResponse{
		Status:     "whatsapp_accepted",
		StatusCode: 0,
		Message:    "Request queued for processing",
	})
}

func respondRejected(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, webhookResponse{
		Status:     "whatsapp_rejected",
		StatusCode: notify.CodeFormatInvalid,
		Message:    message,
	})
}
