// Package supervisor owns long-running goroutines: it recovers panics,
// restarts failed loops with backoff and waits for them on shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/metrics"
)

// Supervisor manages goroutines tied to a shared context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats map[string]*TaskStats
}

// TaskStats is a best-effort view of one named task, for health output.
type TaskStats struct {
	Name        string    `json:"name"`
	Running     bool      `json:"running"`
	Starts      int       `json:"starts"`
	Panics      int       `json:"panics"`
	LastStartAt time.Time `json:"last_start_at"`
	LastErr     string    `json:"last_err,omitempty"`
	LastErrAt   time.Time `json:"last_err_at,omitempty"`
}

// New creates a Supervisor whose tasks run under a child of parent.
func New(parent context.Context, log zerolog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		stats:  make(map[string]*TaskStats),
	}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// RestartOption configures GoRestart.
type RestartOption func(*restartCfg)

type restartCfg struct {
	minBackoff time.Duration
	maxBackoff time.Duration
	// healthyAfter resets the backoff when a run lasted at least this long.
	healthyAfter time.Duration
}

// WithRestartBackoff sets the exponential backoff window between restarts.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(c *restartCfg) {
		if min > 0 {
			c.minBackoff = min
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// GoRestart runs fn until the supervisor stops. A run that returns an
// error or panics is restarted after a jittered exponential backoff; a run
// that returns nil or context.Canceled ends the task.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	cfg := restartCfg{
		minBackoff:   250 * time.Millisecond,
		maxBackoff:   30 * time.Second,
		healthyAfter: 30 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.maxBackoff < cfg.minBackoff {
		cfg.maxBackoff = cfg.minBackoff
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		backoff := cfg.minBackoff
		for {
			if s.ctx.Err() != nil {
				return
			}

			startedAt := s.noteStart(name)
			err := s.runOnce(name, fn)
			s.noteStop(name, err)

			if s.ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return
			}

			if time.Since(startedAt) >= cfg.healthyAfter {
				backoff = cfg.minBackoff
			}
			wait := jitter(backoff)
			metrics.WorkerRestartsTotal.WithLabelValues(name).Inc()
			s.log.Warn().Err(err).Str("task", name).Dur("backoff", wait).Msg("task failed, restarting")

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff = min(backoff*2, cfg.maxBackoff)
		}
	}()
}

// runOnce calls fn, converting a panic into an error.
func (s *Supervisor) runOnce(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.notePanic(name)
			s.log.Error().
				Str("task", name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("task panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	if j := int64(d) / 5; j > 0 {
		return d + time.Duration(rand.Int64N(j+1))
	}
	return d
}

// Stop cancels all tasks and waits for them to return or for ctx to end.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns task stats ordered by name.
func (s *Supervisor) Snapshot() []TaskStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Supervisor) stat(name string) *TaskStats {
	st, ok := s.stats[name]
	if !ok {
		st = &TaskStats{Name: name}
		s.stats[name] = st
	}
	return st
}

func (s *Supervisor) noteStart(name string) time.Time {
	now := time.Now()
	s.mu.Lock()
	st := s.stat(name)
	st.Running = true
	st.Starts++
	st.LastStartAt = now
	s.mu.Unlock()
	return now
}

func (s *Supervisor) noteStop(name string, err error) {
	s.mu.Lock()
	st := s.stat(name)
	st.Running = false
	if err != nil && !errors.Is(err, context.Canceled) {
		st.LastErr = err.Error()
		st.LastErrAt = time.Now()
	}
	s.mu.Unlock()
}

func (s *Supervisor) notePanic(name string) {
	s.mu.Lock()
	s.stat(name).Panics++
	s.mu.Unlock()
}
