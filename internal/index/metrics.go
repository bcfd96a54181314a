package index

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "memoryd",
			Subsystem: "index",
			Name:      "operation_duration_seconds",
			Help:      "Duration of index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memoryd",
			Subsystem: "index",
			Name:      "operations_total",
			Help:      "Total index operations by result",
		},
		[]string{"backend", "operation", "result"},
	)

	queryHits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "memoryd",
			Subsystem: "index",
			Name:      "query_hits",
			Help:      "Number of hits returned per query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"backend"},
	)

	quarantineTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memoryd",
			Subsystem: "index",
			Name:      "quarantined_collections_total",
			Help:      "Corrupt collections moved aside during startup",
		},
		[]string{"result"},
	)
)

// observe records duration and outcome for one backend operation.
func observe(backend, operation string, start time.Time, err error) {
	operationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(backend, operation, result).Inc()
}
