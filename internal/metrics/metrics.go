// Package metrics exposes the process's Prometheus gauges/counters,
// grounded on ruaan-deysel-unraid-management-agent's
// daemon/services/api/metrics.go (one package-level registry, a
// custom-registry promhttp.HandlerFor rather than the global default
// registry).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcp_active_sessions",
		Help: "Number of sessions currently tracked by the registry.",
	})
	EventsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_events_appended_total",
		Help: "Total events appended to the event store across all sessions.",
	})
	SSESubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcp_sse_subscribers",
		Help: "Number of live SSE subscribers across all sessions.",
	})
	RequestsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_requests_dispatched_total",
		Help: "JSON-RPC requests dispatched, labeled by method and outcome.",
	}, []string{"method", "outcome"})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(ActiveSessions, EventsAppended, SSESubscribers, RequestsDispatched)
}

// Handler serves the Prometheus exposition format for the metrics above.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
