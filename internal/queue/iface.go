package queue

import "context"

// Queue is a FIFO work queue with leased delivery. An item returned by
// DequeueBatch is owned by the caller until it is acknowledged; if the
// lease expires first, the item becomes visible to other consumers again.
type Queue interface {
	Enqueue(ctx context.Context, item *Item) error
	// DequeueBatch leases up to max items. It never blocks waiting for
	// items and returns an empty slice when the queue is empty.
	DequeueBatch(ctx context.Context, max int) ([]*Delivery, error)
	// Ack permanently removes delivered items.
	Ack(ctx context.Context, deliveries []*Delivery) error
	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error
	Close() error
}

// Reclaimer is implemented by backends whose leases must be expired by
// the consumer side. SQS expires leases on its own.
type Reclaimer interface {
	// Reclaim returns items with expired leases to the head of the queue
	// and reports how many were requeued and how many were dead-lettered.
	Reclaim(ctx context.Context) (requeued, dead int, err error)
}

// DeadLetters manages items that exhausted their deliveries.
type DeadLetters interface {
	// Requeue moves up to max dead items back onto the queue.
	Requeue(ctx context.Context, max int) (int, error)
	Depth(ctx context.Context) (int64, error)
}
