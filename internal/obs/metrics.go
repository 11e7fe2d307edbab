package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns every collector the service exports. Each instance registers on
// its own registry so tests can build independent servers.
type Metrics struct {
	reg *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimitDecisions  *prometheus.CounterVec
	cacheOperations     *prometheus.CounterVec
	backendFailures     *prometheus.CounterVec
	buildInfo           *prometheus.GaugeVec
	ready               prometheus.Gauge
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limiter decisions by result.",
		}, []string{"result"}),
		cacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by kind and result.",
		}, []string{"op", "result"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backend_failures_total",
			Help: "Swallowed failures of optional backends.",
		}, []string{"component"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information.",
		}, []string{"version", "commit"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_ready",
			Help: "1 when every readiness dependency is reachable.",
		}),
	}
	m.reg.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.rateLimitDecisions, m.cacheOperations, m.backendFailures, m.buildInfo, m.ready,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// InFlight tracks one request; call the returned func when it completes.
func (m *Metrics) InFlight() func() {
	if m == nil {
		return func() {}
	}
	m.httpInFlight.Inc()
	return m.httpInFlight.Dec
}

// ObserveRequest records a completed request under its route template.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RateLimitDecision counts "allowed", "rejected" or "error" outcomes.
func (m *Metrics) RateLimitDecision(result string) {
	if m == nil {
		return
	}
	m.rateLimitDecisions.WithLabelValues(result).Inc()
}

// CacheOperation counts cache get/set/delete outcomes.
func (m *Metrics) CacheOperation(op, result string) {
	if m == nil {
		return
	}
	m.cacheOperations.WithLabelValues(op, result).Inc()
}

// BackendFailure counts a swallowed failure of component.
func (m *Metrics) BackendFailure(component string) {
	if m == nil {
		return
	}
	m.backendFailures.WithLabelValues(component).Inc()
}

// SetReady records the latest readiness outcome.
func (m *Metrics) SetReady(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ready.Set(1)
		return
	}
	m.ready.Set(0)
}
