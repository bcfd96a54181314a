package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counterparts of the per-operation metrics, registered on
// the default registry so GET /metrics serves them without an OTLP
// collector in the loop.
var (
	// opsTotal counts API operations by operation and outcome.
	opsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memoryd",
			Subsystem: "api",
			Name:      "operations_total",
			Help:      "Total memory API operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// opDuration tracks how long API operations take.
	opDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "memoryd",
			Subsystem: "api",
			Name:      "operation_duration_seconds",
			Help:      "Duration of memory API operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// observeOp records one API operation.
func observeOp(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	opsTotal.WithLabelValues(operation, outcome).Inc()
	opDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
