package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_messages_pending",
			Help: "Number of pending items in the queue, sampled by the lease reaper",
		},
	)

	MessagesEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_enqueued_total",
			Help: "Total number of items enqueued",
		},
	)

	MessagesLeasedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_leased_total",
			Help: "Total number of items handed to consumers",
		},
	)

	MessagesAckedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_acked_total",
			Help: "Total number of leased items acknowledged",
		},
	)

	MessagesReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_messages_reclaimed_total",
			Help: "Total number of expired leases returned to the queue",
		},
	)

	DLQMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_dlq_messages_total",
			Help: "Total number of items moved to the dead list after exhausting deliveries",
		},
	)
)
