// Package observability holds the Prometheus instruments of the service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Turns                 *prometheus.CounterVec
	ProviderErrors        *prometheus.CounterVec
	EvaluatorFailures     *prometheus.CounterVec
	AffinityDeltas        prometheus.Histogram
	MemoryTasks           *prometheus.CounterVec
	MemoryPersistFailures *prometheus.CounterVec
	TurnLatency           *prometheus.HistogramVec
}

// NewMetrics registers the instruments on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Generation failures by provider and error class.",
		}, []string{"provider", "class"}),
		EvaluatorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "affinity_evaluator_failures_total",
			Help:      "Affinity evaluations that degraded to zero, by reason.",
		}, []string{"reason"}),
		AffinityDeltas: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "affinity_delta",
			Help:      "Applied affinity change per turn.",
			Buckets:   []float64{-5, -3, -1, 0, 1, 3, 5},
		}),
		MemoryTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_tasks_total",
			Help:      "Background memory tasks by outcome.",
		}, []string{"outcome"}),
		MemoryPersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_persist_failures_total",
			Help:      "Memory row store failures by operation.",
		}, []string{"op"}),
		TurnLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"provider"}),
	}
}

func (m *Metrics) ObserveTurn(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(provider, outcome).Inc()
	m.TurnLatency.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveProviderError(provider, class string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, class).Inc()
}

func (m *Metrics) ObserveEvaluatorFailure(reason string) {
	if m == nil {
		return
	}
	m.EvaluatorFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveAffinityDelta(delta int) {
	if m == nil {
		return
	}
	m.AffinityDeltas.Observe(float64(delta))
}

func (m *Metrics) ObserveMemoryTask(outcome string) {
	if m == nil {
		return
	}
	m.MemoryTasks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePersistFailure(op string) {
	if m == nil {
		return
	}
	m.MemoryPersistFailures.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
