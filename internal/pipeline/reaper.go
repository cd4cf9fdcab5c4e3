package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/queue"
)

// RunReaper returns expired leases to the queue every interval until ctx is
// canceled.
func RunReaper(ctx context.Context, r queue.Reclaimer, interval time.Duration, log zerolog.Logger) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		requeued, dead, err := r.Reclaim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("reclaim expired leases failed")
			continue
		}
		if requeued > 0 || dead > 0 {
			log.Warn().Int("requeued", requeued).Int("dead_lettered", dead).Msg("reclaimed expired leases")
		}
	}
}
