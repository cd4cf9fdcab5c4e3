package provider

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// simulatedErrors are the failures returned by Simulated.
var simulatedErrors = []ProviderError{
	{StatusCode: 400, Code: "400", Message: "Invalid template", Permanent: true},
	{StatusCode: 403, Code: "403", Message: "Recipient blocked", Permanent: true},
	{StatusCode: 503, Code: "503", Message: "Service unavailable"},
	{StatusCode: 504, Code: "504", Message: "Timeout"},
}

// Simulated accepts messages after a random 50-300ms delay and fails 5% of
// them. Used for load testing without touching the real API.
type Simulated struct {
	minDelay    time.Duration
	jitter      time.Duration
	failureRate float64
}

// NewSimulated creates a Simulated provider with the default latency and failure rate.
func NewSimulated() *Simulated {
	return &Simulated{
		minDelay:    50 * time.Millisecond,
		jitter:      250 * time.Millisecond,
		failureRate: 0.05,
	}
}

func (s *Simulated) GetName() string { return "simulate" }

func (s *Simulated) Send(ctx context.Context, _ *Payload) (*DeliveryResult, error) {
	delay := s.minDelay
	if s.jitter > 0 {
		delay += rand.N(s.jitter)
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	if rand.Float64() < s.failureRate {
		pe := simulatedErrors[rand.IntN(len(simulatedErrors))]
		pe.Provider = s.GetName()
		return nil, &pe
	}

	return &DeliveryResult{
		ProviderMessageID: "sim-" + uuid.NewString()[:8],
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"status": "accepted"},
	}, nil
}

func (s *Simulated) HealthCheck(_ context.Context) error { return nil }
