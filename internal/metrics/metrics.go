// Package metrics defines the service's Prometheus instrumentation. Each
// process owns one Metrics value; the API server exposes it at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated   prometheus.Counter
	Executions        *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	ReapedGhosts      prometheus.Counter
	ReapedContainers  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "code_executor",
			Name:      "sessions_created_total",
			Help:      "Sessions created.",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "code_executor",
			Name:      "executions_total",
			Help:      "Code executions by outcome.",
		}, []string{"outcome"}),
		ExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "code_executor",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock execution time of user code.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ReapedGhosts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "code_executor",
			Name:      "reaped_ghost_sessions_total",
			Help:      "Expired session ids dropped from the active set.",
		}),
		ReapedContainers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "code_executor",
			Name:      "reaped_containers_total",
			Help:      "Orphaned containers removed by the reaper.",
		}),
	}
}

// ObserveExecution records one execution outcome and its duration.
// Safe on a nil receiver so call sites don't need wiring guards.
func (m *Metrics) ObserveExecution(exitCode int, seconds float64) {
	if m == nil {
		return
	}
	outcome := "completed"
	switch {
	case exitCode == 124:
		outcome = "timeout"
	case exitCode != 0:
		outcome = "error"
	}
	m.Executions.WithLabelValues(outcome).Inc()
	m.ExecutionDuration.Observe(seconds)
}

// SessionCreated increments the session counter. Nil-safe.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// ReapObserved records one reaper pass. Nil-safe.
func (m *Metrics) ReapObserved(ghosts, containers int) {
	if m == nil {
		return
	}
	m.ReapedGhosts.Add(float64(ghosts))
	m.ReapedContainers.Add(float64(containers))
}

// Handler serves the Prometheus exposition for this process's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
