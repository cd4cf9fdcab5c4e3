package queue

import (
	"context"
	"strconv"
	"sync"
)

// MemoryQueue is an in-process FIFO queue. Leases are not tracked, so Ack
// is a no-op and items are lost if the process exits.
type MemoryQueue struct {
	mu    sync.Mutex
	items []string
	seq   int
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, item *Item) error {
	raw, err := encodeItem(item)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.items = append(q.items, raw)
	q.mu.Unlock()
	MessagesEnqueuedTotal.Inc()
	return nil
}

func (q *MemoryQueue) DequeueBatch(_ context.Context, max int) ([]*Delivery, error) {
	if max <= 0 {
		return nil, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(max, len(q.items))
	out := make([]*Delivery, 0, n)
	for _, raw := range q.items[:n] {
		q.seq++
		out = append(out, newDelivery(strconv.Itoa(q.seq), raw))
	}
	q.items = q.items[n:]
	return out, nil
}

func (q *MemoryQueue) Ack(_ context.Context, _ []*Delivery) error { return nil }

func (q *MemoryQueue) Ping(_ context.Context) error { return nil }

func (q *MemoryQueue) Close() error { return nil }

// Len returns the number of pending items.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
