// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tablewise Contributors

package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablewise/aiwaiter/pkg/types"
)

// Invocation statuses used as the status label.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds the service's Prometheus collectors on a private registry so
// tests can build as many instances as they like.
//
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Labels: agent, status (ok|error)
	invocations *prometheus.CounterVec
	// Labels: agent
	latency *prometheus.HistogramVec
	// Labels: agent
	cost        *prometheus.CounterVec
	disclaimers prometheus.Counter
	// Labels: result (hit|miss)
	configCache *prometheus.CounterVec
}

// NewMetrics registers the collectors plus the Go runtime and process
// collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwaiter_agent_invocations_total",
			Help: "Agent invocations by agent type and outcome.",
		}, []string{"agent", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aiwaiter_agent_latency_seconds",
			Help:    "Agent invocation latency including tool calls.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"agent"}),
		cost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwaiter_agent_cost_usd_total",
			Help: "Estimated model spend in USD by agent type.",
		}, []string{"agent"}),
		disclaimers: factory.NewCounter(prometheus.CounterOpts{
			Name: "aiwaiter_pipeline_disclaimers_total",
			Help: "Disclaimers attached to waiter responses.",
		}),
		configCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aiwaiter_runtime_config_cache_total",
			Help: "Runtime config cache lookups by result.",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveInvocation records one agent run.
func (m *Metrics) ObserveInvocation(agent types.AgentType, status string, latency time.Duration, costUSD float64) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(agent.String(), status).Inc()
	m.latency.WithLabelValues(agent.String()).Observe(latency.Seconds())
	if costUSD > 0 {
		m.cost.WithLabelValues(agent.String()).Add(costUSD)
	}
}

// ObserveDisclaimers adds n response disclaimers.
func (m *Metrics) ObserveDisclaimers(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.disclaimers.Add(float64(n))
}

// ObserveConfigCache records a runtime config cache lookup.
func (m *Metrics) ObserveConfigCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.configCache.WithLabelValues(result).Inc()
}

// Invocations exposes the invocation counter for assertions.
func (m *Metrics) Invocations() *prometheus.CounterVec {
	return m.invocations
}

// ConfigCache exposes the config cache counter for assertions.
func (m *Metrics) ConfigCache() *prometheus.CounterVec {
	return m.configCache
}
