// Package metrics exposes the proxy's operational counters as Prometheus
// collectors, scraped over a dedicated HTTP listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arnav-deka/proxycache/pkg/cache"
)

const (
	namespace = "proxycache"
	subsystem = "proxy"
)

// Outcome label values for RequestsTotal, one per terminal path through
// worker.Worker.Serve.
const (
	OutcomeCacheHit       = "cache_hit"
	OutcomeForwarded      = "forwarded"
	OutcomeBadRequest     = "bad_request"
	OutcomeNotImplemented = "not_implemented"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeClientError    = "client_error"
	OutcomeDropped        = "dropped"
)

// Metrics collects every counter/gauge this proxy exports, bound to its own
// registry so tests never collide with the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	UpstreamErrors *prometheus.CounterVec
	InFlight       prometheus.Gauge
}

// New registers every collector, including cache-derived gauges that read
// c.Stats() on each scrape.
func New(c *cache.Cache) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Requests accepted, labeled by outcome.",
		}, []string{"outcome"}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upstream_errors_total",
			Help:      "Upstream exchange failures, labeled by error type.",
		}, []string{"type"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "in_flight_connections",
			Help:      "Connections currently held by the admission gate.",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Number of entries currently cached.",
	}, func() float64 { return float64(c.Stats().Entries) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "bytes",
		Help:      "Accounted bytes currently held by the cache.",
	}, func() float64 { return float64(c.Stats().TotalBytes) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache lookups that found an entry.",
	}, func() float64 { return float64(c.Stats().Hits) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache lookups that found nothing.",
	}, func() float64 { return float64(c.Stats().Misses) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries evicted to make room for a new insert.",
	}, func() float64 { return float64(c.Stats().Evictions) })

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "rejected_inserts_total",
		Help:      "Inserts rejected for exceeding the per-entry size cap.",
	}, func() float64 { return float64(c.Stats().Rejected) })

	return m
}

// Handler returns an http.Handler serving this registry's metrics in the
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest increments RequestsTotal for outcome. Safe to call on a
// nil *Metrics (worker.New and server.New accept a nil *Metrics), in which
// case it is a no-op.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveUpstreamError increments UpstreamErrors for errType. Nil-safe,
// same as ObserveRequest.
func (m *Metrics) ObserveUpstreamError(errType string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(errType).Inc()
}

// IncInFlight bumps the in-flight connection gauge. Nil-safe.
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// DecInFlight releases a slot on the in-flight connection gauge. Nil-safe.
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}
