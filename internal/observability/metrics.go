// Package observability holds the Prometheus instruments used by the sync
// layer and the reference server.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Mutations       *prometheus.CounterVec
	MutationPending *prometheus.GaugeVec
	MutationLatency *prometheus.HistogramVec
	Fetches         *prometheus.CounterVec
	Invalidations   *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	StoredItems     prometheus.Gauge
}

// NewMetrics registers every instrument on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Settled mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		MutationPending: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mutations_in_flight",
			Help:      "Mutations started but not yet settled, by kind.",
		}, []string{"kind"}),
		MutationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_latency_ms",
			Help:      "Time from invocation to settlement in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"kind"}),
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_fetches_total",
			Help:      "Query fetches by key and outcome.",
		}, []string{"key", "outcome"}),
		Invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_invalidations_total",
			Help:      "Query invalidations by key.",
		}, []string{"key"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Collection endpoint requests by route and status code.",
		}, []string{"route", "code"}),
		StoredItems: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_items",
			Help:      "Items held by the collection endpoint store.",
		}),
	}
}

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

func (m *Metrics) MutationStarted(kind string) {
	if m == nil {
		return
	}
	m.MutationPending.WithLabelValues(kind).Inc()
}

func (m *Metrics) MutationSettled(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.MutationPending.WithLabelValues(kind).Dec()
	m.Mutations.WithLabelValues(kind, outcome).Inc()
	m.MutationLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) FetchDone(key, outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(key, outcome).Inc()
}

func (m *Metrics) Invalidated(key string) {
	if m == nil {
		return
	}
	m.Invalidations.WithLabelValues(key).Inc()
}

func (m *Metrics) Request(route, code string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, code).Inc()
}

func (m *Metrics) SetStoredItems(n int) {
	if m == nil {
		return
	}
	m.StoredItems.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and gatherers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
