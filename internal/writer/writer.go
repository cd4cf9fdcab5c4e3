// Package writer applies the storage mutations of one worker batch, grouped
// by tenant namespace.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/wa-dispatch/internal/metrics"
	"github.com/sungwon/wa-dispatch/internal/storage"
)

// GroupResult reports the writes of one namespace group.
type GroupResult struct {
	Namespace storage.Namespace
	Mutations []*storage.Mutation
	// SessionErr and LogErr are the results of the two bulk calls.
	SessionErr error
	LogErr     error
}

// Err joins both bulk call errors.
func (r GroupResult) Err() error {
	return errors.Join(r.SessionErr, r.LogErr)
}

// Writer groups mutations by namespace and applies each group with one
// bulk session upsert and one bulk log insert.
type Writer struct {
	sink  storage.Sink
	names storage.Resolver
	log   zerolog.Logger
}

// New creates a Writer.
func New(sink storage.Sink, names storage.Resolver, log zerolog.Logger) *Writer {
	return &Writer{sink: sink, names: names, log: log}
}

// Write applies muts and returns one result per namespace, ordered by
// namespace. Groups are written concurrently and fail independently; both
// bulk calls of a group are attempted even if the other fails. Nothing is
// retried here.
func (w *Writer) Write(ctx context.Context, muts []*storage.Mutation) []GroupResult {
	if len(muts) == 0 {
		return nil
	}

	groups := make(map[storage.Namespace][]*storage.Mutation)
	for _, m := range muts {
		ns := w.names.Namespace(m.Tenant)
		groups[ns] = append(groups[ns], m)
	}

	results := make([]GroupResult, 0, len(groups))
	for ns, gm := range groups {
		results = append(results, GroupResult{Namespace: ns, Mutations: gm})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Namespace < results[j].Namespace })

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(r *GroupResult) {
			defer wg.Done()
			w.writeGroup(ctx, r)
		}(&results[i])
	}
	wg.Wait()

	return results
}

func (w *Writer) writeGroup(ctx context.Context, r *GroupResult) {
	start := time.Now()
	r.SessionErr = recovered("session upsert", func() error {
		return w.sink.UpsertSessions(ctx, r.Namespace, r.Mutations)
	})
	r.LogErr = recovered("log insert", func() error {
		return w.sink.InsertLogs(ctx, r.Namespace, r.Mutations)
	})
	metrics.WriterDuration.Observe(time.Since(start).Seconds())

	n := float64(len(r.Mutations))
	metrics.WriterMutationsTotal.WithLabelValues("session_upsert", resultLabel(r.SessionErr)).Add(n)
	metrics.WriterMutationsTotal.WithLabelValues("log_insert", resultLabel(r.LogErr)).Add(n)
	metrics.WriterGroupsTotal.WithLabelValues(resultLabel(r.Err())).Inc()

	if err := r.Err(); err != nil {
		w.log.Error().
			Err(err).
			Str("namespace", string(r.Namespace)).
			Int("mutations", len(r.Mutations)).
			Bool("sessions_ok", r.SessionErr == nil).
			Bool("logs_ok", r.LogErr == nil).
			Msg("batch write failed")
		return
	}
	w.log.Debug().
		Str("namespace", string(r.Namespace)).
		Int("mutations", len(r.Mutations)).
		Msg("batch written")
}

// recovered runs one bulk call and reports a panic as its error.
func recovered(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()
	return fn()
}

func resultLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
