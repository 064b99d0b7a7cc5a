// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the umfrage response store.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreBuckets covers single-row statements up to full partition scans.
var StoreBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}

var (
	// RequestsTotal counts HTTP requests by method, status class, and route pattern.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umfrage_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route pattern.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umfrage_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// StoreOperationsTotal counts database statements by operation and outcome.
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umfrage_store_operations_total",
			Help: "Store operations",
		},
		[]string{"op", "status"},
	)

	// StoreOperationDuration records database statement latency by operation.
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umfrage_store_operation_duration_seconds",
			Help:    "Store operation latency",
			Buckets: StoreBuckets,
		},
		[]string{"op"},
	)

	// EditConflicts counts response edits that lost a compare-and-swap and retried.
	EditConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "umfrage_edit_conflicts_total",
			Help: "Edit compare-and-swap conflicts",
		},
	)

	// AttachmentBytesTotal counts attachment and resource bytes by direction (in/out).
	AttachmentBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umfrage_attachment_bytes_total",
			Help: "Attachment bytes",
		},
		[]string{"direction"},
	)

	// LifecycleStepsTotal counts partition provisioning and teardown steps.
	LifecycleStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umfrage_lifecycle_steps_total",
			Help: "Partition lifecycle steps",
		},
		[]string{"step", "status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umfrage_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StoreOperationsTotal,
		StoreOperationDuration,
		EditConflicts,
		AttachmentBytesTotal,
		LifecycleStepsTotal,
		RateLimitRejectedTotal,
	)
}

// ObserveStoreOperation records the outcome and latency of a statement.
func ObserveStoreOperation(op string, start time.Time, err error) {
	StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	StoreOperationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveLifecycleStep records one provisioning or teardown step.
func ObserveLifecycleStep(step string, err error) {
	LifecycleStepsTotal.WithLabelValues(step, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
