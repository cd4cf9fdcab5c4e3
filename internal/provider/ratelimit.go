package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a token bucket shared by all callers.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited allows perSec sends per second with the given burst.
// A burst below one is raised to one.
func NewRateLimited(next Provider, perSec float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (r *RateLimited) GetName() string { return r.next.GetName() }

// Send waits for a token, then delegates. Waiting honours ctx, so a caller
// deadline also bounds time spent queued behind the limiter.
func (r *RateLimited) Send(ctx context.Context, msg *Payload) (*DeliveryResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline would pass before a token is free.
		cause := ctx.Err()
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		return nil, fmt.Errorf("%s: rate limit wait: %v: %w", r.next.GetName(), err, cause)
	}
	return r.next.Send(ctx, msg)
}

func (r *RateLimited) HealthCheck(ctx context.Context) error { return r.next.HealthCheck(ctx) }
