// Package pipeline runs the dispatch workers: each worker leases a batch of
// queue items, processes them with bounded concurrency, writes the results
// and acknowledges what has been durably handled.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/dispatch"
	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/metrics"
	"github.com/sungwon/wa-dispatch/internal/queue"
	"github.com/sungwon/wa-dispatch/internal/storage"
	"github.com/sungwon/wa-dispatch/internal/writer"
)

// Config holds worker pool settings.
type Config struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
	// Concurrency bounds in-flight items per batch. Defaults to BatchSize.
	Concurrency    int           `mapstructure:"concurrency"`
	IdleBackoff    time.Duration `mapstructure:"idle_backoff"`
	ErrorBackoff   time.Duration `mapstructure:"error_backoff"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        runtime.NumCPU(),
		BatchSize:      70,
		IdleBackoff:    time.Second,
		ErrorBackoff:   5 * time.Second,
		ProcessTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = c.BatchSize
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = d.IdleBackoff
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	return c
}

// WorkerCount is the number of worker loops cfg runs once defaults apply.
func (c Config) WorkerCount() int { return c.withDefaults().Workers }

// Processor turns one item into an outcome.
type Processor interface {
	Process(ctx context.Context, item *queue.Item) dispatch.Outcome
}

// BatchWriter applies the mutations of a batch.
type BatchWriter interface {
	Write(ctx context.Context, muts []*storage.Mutation) []writer.GroupResult
}

// Notifier reports a rejected item to its submitter.
type Notifier interface {
	Notify(ctx context.Context, item *queue.Item, he *dispatch.HardError) error
}

// Archiver keeps a copy of a rejected item.
type Archiver interface {
	Save(ctx context.Context, item *queue.Item, he *dispatch.HardError) error
}

// Pool runs batches from a queue.
type Pool struct {
	queue     queue.Queue
	processor Processor
	writer    BatchWriter
	notifier  Notifier
	archive   Archiver
	cfg       Config
	log       zerolog.Logger
}

// New creates a Pool. archive may be nil.
func New(q queue.Queue, p Processor, w BatchWriter, n Notifier, archive Archiver, cfg Config, log zerolog.Logger) *Pool {
	return &Pool{
		queue:     q,
		processor: p,
		writer:    w,
		notifier:  n,
		archive:   archive,
		cfg:       cfg.withDefaults(),
		log:       log,
	}
}

// Workers returns the configured number of worker loops.
func (p *Pool) Workers() int { return p.cfg.Workers }

// BatchReport summarizes one batch.
type BatchReport struct {
	Dequeued    int
	Undecodable int
	Delivered   int
	SoftFailed  int
	Rejected    int
	// Unwritten counts items left unacknowledged because their namespace
	// group failed to write; they are redelivered after the lease expires.
	Unwritten int
	Acked     int
}

// Run polls the queue until ctx is canceled. A full batch is followed
// immediately by the next poll; an empty or partial batch waits IdleBackoff
// and a failed poll waits ErrorBackoff.
func (p *Pool) Run(ctx context.Context, name string) error {
	log := p.log.With().Str("worker", name).Logger()
	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		report, err := p.RunOnce(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			log.Error().Err(err).Msg("batch failed")
			wait = p.cfg.ErrorBackoff
		case report.Dequeued >= p.cfg.BatchSize:
			continue
		default:
			wait = p.cfg.IdleBackoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// RunOnce leases and handles one batch. Once items are leased the batch runs
// to completion on a context detached from ctx, so shutdown never abandons
// a half-processed batch.
func (p *Pool) RunOnce(ctx context.Context) (BatchReport, error) {
	var report BatchReport

	deliveries, err := p.queue.DequeueBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		metrics.PollErrorsTotal.Inc()
		return report, fmt.Errorf("dequeue: %w", err)
	}
	report.Dequeued = len(deliveries)
	if len(deliveries) == 0 {
		return report, nil
	}

	start := time.Now()
	metrics.BatchSize.Observe(float64(len(deliveries)))
	bctx := context.WithoutCancel(ctx)

	var ack, valid []*queue.Delivery
	for _, d := range deliveries {
		if d.Item == nil {
			metrics.UndecodableItemsTotal.Inc()
			p.log.Error().Err(d.Err).Str("raw", d.Raw).Msg("dropping undecodable queue item")
			report.Undecodable++
			ack = append(ack, d)
			continue
		}
		valid = append(valid, d)
	}

	outcomes := p.processAll(bctx, valid)

	var muts []*storage.Mutation
	owner := make(map[*storage.Mutation]*queue.Delivery)
	var rejected []int
	for i, out := range outcomes {
		switch o := out.(type) {
		case *dispatch.Delivered:
			report.Delivered++
			muts = append(muts, o.Mutation)
			owner[o.Mutation] = valid[i]
		case *dispatch.SoftFailure:
			report.SoftFailed++
			muts = append(muts, o.Mutation)
			owner[o.Mutation] = valid[i]
		case *dispatch.HardError:
			report.Rejected++
			rejected = append(rejected, i)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.reject(bctx, valid, outcomes, rejected)
	}()

	for _, res := range p.writer.Write(bctx, muts) {
		if res.Err() != nil {
			report.Unwritten += len(res.Mutations)
			continue
		}
		for _, m := range res.Mutations {
			ack = append(ack, owner[m])
		}
	}

	wg.Wait()
	for _, i := range rejected {
		ack = append(ack, valid[i])
	}

	if len(ack) > 0 {
		if err := p.queue.Ack(bctx, ack); err != nil {
			metrics.PollErrorsTotal.Inc()
			return report, fmt.Errorf("ack %d items: %w", len(ack), err)
		}
	}
	report.Acked = len(ack)

	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	p.log.Debug().
		Int("dequeued", report.Dequeued).
		Int("delivered", report.Delivered).
		Int("soft_failed", report.SoftFailed).
		Int("rejected", report.Rejected).
		Int("unwritten", report.Unwritten).
		Dur("duration", time.Since(start)).
		Msg("batch complete")
	return report, nil
}

// processAll runs every item through the processor with at most
// Concurrency items in flight. Outcomes keep the order of ds.
func (p *Pool) processAll(ctx context.Context, ds []*queue.Delivery) []dispatch.Outcome {
	out := make([]dispatch.Outcome, len(ds))
	if len(ds) == 0 {
		return out
	}

	tasks := make(chan int, len(ds))
	for i := range ds {
		tasks <- i
	}
	close(tasks)

	var wg sync.WaitGroup
	for range min(p.cfg.Concurrency, len(ds)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				out[i] = p.processOne(ctx, ds[i].Item)
			}
		}()
	}
	wg.Wait()
	return out
}

func (p *Pool) processOne(ctx context.Context, item *queue.Item) (out dispatch.Outcome) {
	ctx = logger.ForItem(ctx, p.log, item.ID, item.Tenant, item.SubjectID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcessTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log := logger.FromContext(ctx)
			log.Error().Interface("panic", r).Msg("processor panicked")
			out = &dispatch.HardError{
				Kind:    dispatch.KindInternalError,
				Message: fmt.Sprintf("processing failed: %v", r),
			}
		}
	}()
	return p.processor.Process(ctx, item)
}

// reject notifies and archives every hard error. Both are best effort.
func (p *Pool) reject(ctx context.Context, ds []*queue.Delivery, outcomes []dispatch.Outcome, idx []int) {
	var wg sync.WaitGroup
	for _, i := range idx {
		item := ds[i].Item
		he := outcomes[i].(*dispatch.HardError)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.guard(item.ID, "notify", func() { _ = p.notifier.Notify(ctx, item, he) })
			if p.archive == nil {
				return
			}
			p.guard(item.ID, "archive", func() {
				if err := p.archive.Save(ctx, item, he); err != nil {
					p.log.Error().Err(err).Str("item_id", item.ID).Msg("archive rejection failed")
				}
			})
		}()
	}
	wg.Wait()
}

// guard runs fn and logs a panic instead of letting it escape the worker.
func (p *Pool) guard(itemID, op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("item_id", itemID).Str("op", op).Msg("rejection handling panicked")
		}
	}()
	fn()
}
