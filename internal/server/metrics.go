// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label value used to partition metrics by
// the logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// agentQueriesTotal counts completed /api/agent/query requests,
	// partitioned by outcome: "ok", "loop_limit", or "error".
	agentQueriesTotal *prometheus.CounterVec

	// agentQueryDurationSeconds records the wall-clock duration of each
	// agent query including all tool rounds.
	agentQueryDurationSeconds *prometheus.HistogramVec

	// searchRequestsTotal counts completed /api/retrieval/search requests,
	// partitioned by outcome: "ok" or "error".
	searchRequestsTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default, which keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		agentQueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragmm",
			Subsystem: "agent",
			Name:      "queries_total",
			Help:      "Total number of agent queries completed, partitioned by outcome.",
		}, []string{"outcome"}),

		agentQueryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragmm",
			Subsystem: "agent",
			Name:      "query_duration_seconds",
			Help:      "Wall-clock duration of agent queries including all tool rounds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		searchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragmm",
			Subsystem: "retrieval",
			Name:      "search_requests_total",
			Help:      "Total number of retrieval search requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragmm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragmm",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
