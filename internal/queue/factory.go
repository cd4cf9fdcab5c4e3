package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Backend bundles a Queue with the optional capabilities of its backend.
// Reclaimer and DeadLetters are nil when the backend has none.
type Backend struct {
	Queue       Queue
	Reclaimer   Reclaimer
	DeadLetters DeadLetters
}

// New creates the queue backend selected by cfg.Type.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Backend, error) {
	switch cfg.Type {
	case "redis", "":
		q := NewRedisQueue(NewRedisClient(cfg), cfg, log)
		return &Backend{Queue: q, Reclaimer: q, DeadLetters: q}, nil

	case "sqs":
		if cfg.SQSQueueURL == "" {
			return nil, fmt.Errorf("sqs queue url is required")
		}
		client, err := newAWSSQSClient(ctx, cfg.SQSRegion)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		q := NewSQSQueue(client, cfg, log)
		return &Backend{Queue: q, DeadLetters: q}, nil

	case "memory":
		log.Warn().Msg("using in-memory queue; items do not survive a restart")
		return &Backend{Queue: NewMemoryQueue()}, nil

	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}
