// Package metrics defines Prometheus metrics for the extension core.
// Collectors are registered upfront so every package can reference them
// without touching this file.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks sessions currently checked out of the pool.
	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "extdb_sessions_active",
		Help: "Number of sessions currently checked out",
	}, []string{"backend"})

	// SessionsIdle tracks sessions sitting idle in the pool.
	SessionsIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "extdb_sessions_idle",
		Help: "Number of idle sessions in the pool",
	}, []string{"backend"})

	// SessionsMax tracks the configured max_sessions ceiling.
	SessionsMax = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "extdb_sessions_max",
		Help: "Configured maximum sessions",
	}, []string{"backend"})

	// SessionsTotal counts session lifecycle events.
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extdb_sessions_total",
		Help: "Total session operations",
	}, []string{"backend", "status"})

	// SessionQueueLength tracks callers waiting for a session.
	SessionQueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "extdb_session_queue_length",
		Help: "Number of callers waiting for a session",
	}, []string{"backend"})

	// SessionQueueWaitDuration tracks time spent waiting for a session.
	SessionQueueWaitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extdb_session_queue_wait_seconds",
		Help:    "Time spent waiting for a session",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"backend"})

	// SessionErrors counts session errors by kind.
	SessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extdb_session_errors_total",
		Help: "Total session errors",
	}, []string{"backend", "error_type"})

	// OffPoolSessionsTotal counts sessions fabricated outside the pool on exhaustion.
	OffPoolSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extdb_off_pool_sessions_total",
		Help: "Total off-pool (non-pooled) sessions created on exhaustion",
	}, []string{"backend"})

	// DispatcherRequestsTotal counts requests handled by the dispatcher, by kind.
	DispatcherRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extdb_dispatcher_requests_total",
		Help: "Total requests handled by the dispatcher",
	}, []string{"kind", "status"})

	// DispatcherBusyRejections counts requests rejected by admission control.
	DispatcherBusyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "extdb_dispatcher_busy_rejections_total",
		Help: "Total requests rejected because outstanding IDs exceeded the cap",
	})

	// ResultStorePending tracks correlation IDs awaiting delivery or pickup.
	ResultStorePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "extdb_resultstore_pending",
		Help: "Number of correlation IDs currently pending or holding a result",
	})

	// WorkerPoolQueueDepth tracks queued tasks awaiting a free worker.
	WorkerPoolQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "extdb_workerpool_queue_depth",
		Help: "Number of tasks queued awaiting a worker",
	})

	// TaskDuration tracks protocol handler execution time.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extdb_task_duration_seconds",
		Help:    "Protocol handler execution duration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"protocol"})

	// PubsubOperations counts Redis pub/sub publishes.
	PubsubOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extdb_pubsub_operations_total",
		Help: "Total pub/sub publish operations",
	}, []string{"channel", "status"})

	// PinningDuration tracks how long sessions stay pinned (transaction/prepared).
	PinningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extdb_pinning_duration_seconds",
		Help:    "Duration of session pinning",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"backend", "pin_reason"})
)
