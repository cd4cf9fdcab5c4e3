package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/metrics"
	"github.com/sungwon/wa-dispatch/internal/queue"
)

const defaultMaxBodyBytes = 100 << 10

// webhookEnvelope holds the fields checked before a request is queued.
// The body itself is queued unchanged.
type webhookEnvelope struct {
	WhatsAppData *struct {
		ToNumber     string `json:"toNumber"`
		TemplateData *struct {
			TemplateName string `json:"templateName"`
		} `json:"templateData"`
	} `json:"whatsAppData"`
}

// validateWebhook returns the rejection message for an unusable body, or ""
// when the body can be queued.
func validateWebhook(tenant, subjectID string, body []byte) string {
	if tenant == "" || subjectID == "" {
		return "Required params not found"
	}
	if len(body) == 0 {
		return "Request body is missing"
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return invalidFormatMessage
	}
	if env.WhatsAppData == nil || env.WhatsAppData.ToNumber == "" {
		return "Recipient phone number is required"
	}
	if env.WhatsAppData.TemplateData == nil || env.WhatsAppData.TemplateData.TemplateName == "" {
		return "Template name is required"
	}
	return ""
}

// IngestHandler handles POST /webhook/webengage/{tenant}/{subjectId}.
// It validates the envelope, queues the raw body and answers 202 without
// waiting for processing.
func IngestHandler(q queue.Queue, maxBody int64) http.HandlerFunc {
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		tenant := chi.URLParam(r, "tenant")
		subjectID := chi.URLParam(r, "subjectId")

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			metrics.IngestRequestsTotal.WithLabelValues("rejected").Inc()
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondRejected(w, http.StatusRequestEntityTooLarge, "Request body is too large")
				return
			}
			respondRejected(w, http.StatusBadRequest, invalidFormatMessage)
			return
		}

		if msg := validateWebhook(tenant, subjectID, body); msg != "" {
			metrics.IngestRequestsTotal.WithLabelValues("rejected").Inc()
			log.Info().Str("tenant", tenant).Str("subject_id", subjectID).Str("reason", msg).Msg("webhook rejected")
			respondRejected(w, http.StatusBadRequest, msg)
			return
		}

		item := queue.NewItem(tenant, subjectID, json.RawMessage(body))
		if err := q.Enqueue(r.Context(), item); err != nil {
			metrics.IngestRequestsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Str("tenant", tenant).Str("subject_id", subjectID).Msg("enqueue failed")
			respondRejected(w, http.StatusInternalServerError, "Request could not be queued")
			return
		}

		metrics.IngestRequestsTotal.WithLabelValues("accepted").Inc()
		log.Info().
			Str("item_id", item.ID).
			Str("tenant", tenant).
			Str("subject_id", subjectID).
			Msg("request queued")
		respondAccepted(w)
	}
}
