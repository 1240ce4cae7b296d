// Package metrics holds the gateway's Prometheus collectors
// (github.com/prometheus/client_golang). Metrics implements the recorder
// hooks of the downstream, session and rate limit packages so none of them
// import Prometheus directly.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bot-gateway/middleware/ratelimit/domain"
	"bot-gateway/resilience"
)

const namespace = "bff"

type Metrics struct {
	reg *prometheus.Registry

	RateLimitDecisions *prometheus.CounterVec
	DownstreamAttempts *prometheus.CounterVec
	DownstreamLatency  *prometheus.HistogramVec
	DownstreamRetries  *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	Sessions           *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by policy and outcome.",
		}, []string{"policy", "outcome"}),
		DownstreamAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downstream_attempts_total",
			Help:      "Physical downstream calls by service and outcome.",
		}, []string{"service", "outcome"}),
		DownstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "downstream_attempt_duration_seconds",
			Help:      "Latency of physical downstream calls.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
		DownstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downstream_retries_total",
			Help:      "Retries scheduled by the resilience pipeline.",
		}, []string{"service"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit state per service: 0 closed, 1 half-open, 2 open.",
		}, []string{"service"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit transitions per service and target state.",
		}, []string{"service", "to"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events.",
		}, []string{"event"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RateLimitDecisions,
		m.DownstreamAttempts,
		m.DownstreamLatency,
		m.DownstreamRetries,
		m.BreakerState,
		m.BreakerTransitions,
		m.Sessions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveAttempt implements downstream.Recorder.
func (m *Metrics) ObserveAttempt(service, outcome string, elapsed time.Duration) {
	m.DownstreamAttempts.WithLabelValues(service, outcome).Inc()
	m.DownstreamLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

// PipelineOptions returns the resilience hooks that feed the breaker and
// retry collectors of service.
func (m *Metrics) PipelineOptions(service string) []resilience.Option {
	m.BreakerState.WithLabelValues(service).Set(float64(resilience.StateClosed))
	return []resilience.Option{
		resilience.OnStateChange(func(_ string, _, to resilience.State) {
			m.BreakerState.WithLabelValues(service).Set(float64(to))
			m.BreakerTransitions.WithLabelValues(service, to.String()).Inc()
		}),
		resilience.OnRetry(func(resilience.RetryEvent) {
			m.DownstreamRetries.WithLabelValues(service).Inc()
		}),
	}
}

// SessionRecorder adapts the session counters to session.Recorder.
func (m *Metrics) SessionRecorder() SessionRecorder { return SessionRecorder{m.Sessions} }

type SessionRecorder struct{ c *prometheus.CounterVec }

func (r SessionRecorder) SessionCreated() { r.c.WithLabelValues("created").Inc() }
func (r SessionRecorder) SessionExpired() { r.c.WithLabelValues("expired").Inc() }
func (r SessionRecorder) SessionDeleted() { r.c.WithLabelValues("deleted").Inc() }

// RateLimitStats adapts the decision counter to domain.StatsStore, so it can
// be teed with the memory or Redis stats stores.
func (m *Metrics) RateLimitStats() domain.StatsStore { return rateLimitStats{m.RateLimitDecisions} }

type rateLimitStats struct{ c *prometheus.CounterVec }

func (s rateLimitStats) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := "allowed"
	if !ev.Allowed {
		outcome = "rejected"
	}
	policy := ev.Policy
	if policy == "" {
		policy = "unknown"
	}
	s.c.WithLabelValues(policy, outcome).Inc()
	return nil
}
