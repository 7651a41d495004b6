// Package observability provides the Prometheus metrics and health
// endpoints of the dataflock server.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dataflock/dataflock/pkg/runner"
)

// Metrics holds the server's Prometheus collectors. Each Metrics owns an
// independent registry to avoid collector conflicts when constructed
// multiple times (tests, embedded servers).
type Metrics struct {
	registry *prometheus.Registry

	environments prometheus.Gauge
	cellEvents   *prometheus.CounterVec
	cellFailures prometheus.Counter
}

// NewMetrics registers the dataflock collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		environments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataflock_environments",
			Help: "Number of live environments.",
		}),
		cellEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflock_cell_events_total",
			Help: "Runner events by kind.",
		}, []string{"kind"}),
		cellFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataflock_cell_failures_total",
			Help: "Cell executions that finished with an error.",
		}),
	}

	registry.MustRegister(m.environments, m.cellEvents, m.cellFailures)

	return m
}

// Observe consumes one runner event. It is installed as the runner
// callback for every environment.
func (m *Metrics) Observe(event runner.Event) {
	m.cellEvents.WithLabelValues(string(event.Kind)).Inc()

	if event.Kind == runner.EventFinished && event.Err != nil {
		m.cellFailures.Inc()
	}
}

// EnvironmentCreated bumps the environment gauge.
func (m *Metrics) EnvironmentCreated() {
	m.environments.Inc()
}

// EnvironmentDeleted drops the environment gauge.
func (m *Metrics) EnvironmentDeleted() {
	m.environments.Dec()
}

// Handler returns the /metrics scrape endpoint for this Metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
