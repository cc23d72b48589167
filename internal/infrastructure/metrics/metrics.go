// Package metrics defines the Prometheus collectors of the upload API and worker.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// HTTP metrics.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bloom_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Workflow metrics.
var (
	// ObjectStoreOperationsTotal counts gateway calls by operation and outcome.
	ObjectStoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloom_object_store_operations_total",
			Help: "Object store operations by type",
		},
		[]string{"driver", "operation", "status"},
	)

	// ObjectsCopiedTotal counts objects copied server side instead of re-uploaded.
	ObjectsCopiedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bloom_objects_copied_total",
			Help: "Unchanged book files copied between revisions",
		},
	)

	// ActionsTotal counts long-running actions by name and terminal outcome.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloom_actions_total",
			Help: "Long-running actions by name and outcome",
		},
		[]string{"action", "outcome"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bloom_action_duration_seconds",
			Help:    "Long-running action execution time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"action"},
	)
)

// Register registers every collector with the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			ObjectStoreOperationsTotal,
			ObjectsCopiedTotal,
			ActionsTotal,
			ActionDuration,
		)
	})
}

// ObserveStoreOperation records one gateway call.
func ObserveStoreOperation(driver, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ObjectStoreOperationsTotal.WithLabelValues(driver, operation, status).Inc()
}
