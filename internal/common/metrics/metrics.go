// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_queries_total",
			Help: "Total number of queries answered, by handler and outcome kind",
		},
		[]string{"handler", "kind"},
	)

	QueriesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_failures_total",
			Help: "Total number of queries that ended in an error",
		},
		[]string{"handler", "error_code"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_query_duration_seconds",
			Help:    "Duration of query processing in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"handler"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_sessions_active",
			Help: "Number of sessions held by the in-memory session store",
		},
	)

	ResolverResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resolver_results_total",
			Help: "Entity resolution results by deciding stage and kind",
		},
		[]string{"stage", "kind"},
	)

	CollaboratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_calls_total",
			Help: "Calls to external collaborators by service and status",
		},
		[]string{"service", "status"},
	)
)

// ObserveCall counts one collaborator call.
func ObserveCall(service string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CollaboratorCalls.WithLabelValues(service, status).Inc()
}
