package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics
var (
	DispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Total number of processed items by outcome and kind",
		},
		[]string{"outcome", "kind"}, // delivered|soft_failure|hard_error
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_delivery_duration_seconds",
			Help:    "Duration of delivery provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "result"}, // sent, failed, rejected, timeout
	)

	LookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_lookup_duration_seconds",
			Help:    "Duration of the parallel template and user lookup",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Worker pool metrics
var (
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_batch_size",
			Help:    "Number of items per dequeued batch",
			Buckets: []float64{1, 5, 10, 25, 50, 70, 100, 200},
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_batch_duration_seconds",
			Help:    "Duration from dequeue to acknowledgement of a batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_poll_errors_total",
			Help: "Total number of failed dequeue or ack calls",
		},
	)

	UndecodableItemsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_undecodable_items_total",
			Help: "Total number of queue payloads dropped because they could not be decoded",
		},
	)

	WorkerRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_restarts_total",
			Help: "Total number of supervised loop restarts",
		},
		[]string{"task"},
	)
)

// Batch writer metrics
var (
	WriterGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writer_groups_total",
			Help: "Total number of namespace groups written",
		},
		[]string{"result"}, // ok, failed
	)

	WriterMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writer_mutations_total",
			Help: "Total number of mutations by operation and result",
		},
		[]string{"op", "result"}, // op: session_upsert, log_insert
	)

	WriterDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "writer_group_duration_seconds",
			Help:    "Duration of one namespace group write",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Notifier metrics
var (
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_callbacks_total",
			Help: "Total number of rejection callbacks by status code and result",
		},
		[]string{"status_code", "result"}, // result: sent, failed, skipped
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)

	IngestRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_requests_total",
			Help: "Total number of webhook send requests by result",
		},
		[]string{"result"}, // accepted, rejected, error
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
