package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Statistics recording outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Metrics holds every collector the service exports. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	UnauthenticatedCalls *prometheus.CounterVec
	RequestErrors        *prometheus.CounterVec
	StatisticsRecorded   *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
}

// NewMetrics registers the service collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		UnauthenticatedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unauthenticated_calls_total",
			Help: "Requests to protected routes rejected for a missing or wrong API key.",
		}, []string{"uri"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "request_errors_total",
			Help: "Requests that failed with an internal error.",
		}, []string{"operation", "kind"}),
		StatisticsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "link_statistics_recorded_total",
			Help: "Redirect statistics writes by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.UnauthenticatedCalls,
		m.RequestErrors,
		m.StatisticsRecorded,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
