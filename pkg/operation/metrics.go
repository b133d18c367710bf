// pkg/operation/metrics.go
package operation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tandem_operation_invocations_total",
		Help: "Operation invocations by surface and outcome.",
	}, []string{"operation", "surface", "status"})

	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tandem_operation_duration_seconds",
		Help:    "Operation latency by surface.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "surface"})
)
