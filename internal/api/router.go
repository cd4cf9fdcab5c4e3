// Package api serves the webhook ingest endpoint and the operator API.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/msgstore"
	"github.com/sungwon/wa-dispatch/internal/queue"
)

// Deps are the collaborators of the HTTP handlers.
type Deps struct {
	Queue queue.Queue
	// DeadLetters is nil when the queue backend has no dead letter store.
	DeadLetters queue.DeadLetters
	// Archive is nil when rejection archiving is disabled.
	Archive *msgstore.Archive

	AdminKey     string
	MaxBodyBytes int64
	// Workers is reported by the health endpoint.
	Workers int
	Log     zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
// Operator routes are registered only when an admin key is configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(d.Log))
	r.Use(MetricsMiddleware)
	r.Use(RecoverMiddleware(d.Log))

	r.Get("/health", HealthHandler(d.Queue, d.Workers))
	r.Handle("/metrics", promhttp.Handler())

	// Webhook endpoint (no auth required - called by WebEngage)
	r.Post("/webhook/webengage/{tenant}/{subjectId}", IngestHandler(d.Queue, d.MaxBodyBytes))

	if d.AdminKey != "" {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(AdminKeyMiddleware(d.AdminKey))

			if d.DeadLetters != nil {
				r.Post("/dlq/reprocess", DLQReprocessHandler(d.DeadLetters))
				r.Get("/dlq", DLQDepthHandler(d.DeadLetters))
			}

			r.Get("/rejections/{id}", GetRejectionHandler(d.Archive))
			r.Delete("/rejections/{id}", DeleteRejectionHandler(d.Archive))
		})
	}

	return r
}
