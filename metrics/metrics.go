// Package metrics defines the Prometheus instruments of the points bot.
//
// A nil *Metrics is valid: every recording method is a no-op on it, so
// components can be built without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clanpoints"

// Claim results.
const (
	ClaimOK             = "ok"
	ClaimAlreadyClaimed = "already_claimed"
	ClaimError          = "error"
)

// Metrics groups every instrument. Build it with New.
type Metrics struct {
	registry *prometheus.Registry

	claims        *prometheus.CounterVec
	rewardPoints  prometheus.Counter
	sweepLapses   prometheus.Counter
	sweepFailures prometheus.Counter
	commands      *prometheus.CounterVec
}

// New registers the instruments, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		claims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Daily claim attempts by result",
		}, []string{"result"}),
		rewardPoints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_points_total",
			Help:      "Points paid out by daily claims",
		}),
		sweepLapses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_lapses_total",
			Help:      "Streaks lapsed by the reset sweep",
		}),
		sweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Reset sweep iterations that failed",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by name and result",
		}, []string{"command", "result"}),
	}
}

// Registry exposes the underlying registry (tests, custom exporters).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// RECORDING
// =============================================================================

func (m *Metrics) ObserveClaim(result string, reward int64) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
	if reward > 0 {
		m.rewardPoints.Add(float64(reward))
	}
}

func (m *Metrics) ObserveSweep(lapsed int) {
	if m == nil || lapsed <= 0 {
		return
	}
	m.sweepLapses.Add(float64(lapsed))
}

func (m *Metrics) SweepFailed() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}

func (m *Metrics) ObserveCommand(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, result).Inc()
}
