// Package metrics exposes supervisor and worker metrics in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/charliek/minerd/internal/domain"
	"github.com/charliek/minerd/internal/supervisor"
)

const namespace = "minerd"

// Metrics holds the supervisor metrics on a private registry.
// It implements supervisor.Observer.
type Metrics struct {
	registry *prometheus.Registry

	launches      prometheus.Counter
	exits         *prometheus.CounterVec
	forcedKills   prometheus.Counter
	spawnFailures prometheus.Counter
	updateChecks  *prometheus.CounterVec
	state         *prometheus.GaugeVec
	runDuration   prometheus.Histogram
}

var _ supervisor.Observer = (*Metrics)(nil)

// New registers all metrics on a fresh registry. pid returns the current
// worker PID (0 when none) and is sampled on every scrape; it may be nil.
func New(pid func() int) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		launches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "launches_total",
			Help:      "Number of worker processes started",
		}),
		exits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "exits_total",
			Help:      "Number of worker exits by reason",
		}, []string{"reason"}),
		forcedKills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "forced_kills_total",
			Help:      "Number of workers killed after the grace period",
		}),
		spawnFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Number of failed worker launches",
		}),
		updateChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_checks_total",
			Help:      "Number of update checks by result",
		}, []string{"result"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "1 for the current supervisor state, 0 otherwise",
		}, []string{"state"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "run_duration_seconds",
			Help:      "How long each worker run lasted",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	for _, s := range domain.AllStates {
		m.state.WithLabelValues(s.String()).Set(0)
	}
	m.state.WithLabelValues(domain.StateIdle.String()).Set(1)

	reg.MustRegister(collectors.NewGoCollector())
	if pid != nil {
		reg.MustRegister(newWorkerCollector(pid))
	}
	return m
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StateChanged(from, to domain.State) {
	m.state.WithLabelValues(from.String()).Set(0)
	m.state.WithLabelValues(to.String()).Set(1)
}

func (m *Metrics) WorkerStarted(domain.RunInfo) {
	m.launches.Inc()
}

func (m *Metrics) WorkerExited(run domain.RunInfo) {
	reason := run.ExitReason
	if reason == "" {
		reason = domain.ExitReasonExited
	}
	m.exits.WithLabelValues(reason.String()).Inc()
	if run.ForceKill {
		m.forcedKills.Inc()
	}
	m.runDuration.Observe(run.Duration().Seconds())
}

func (m *Metrics) SpawnFailed(error) {
	m.spawnFailures.Inc()
}

func (m *Metrics) UpdateChecked(updated bool, err error) {
	result := "current"
	switch {
	case err != nil && updated:
		result = "hook_failed"
	case err != nil:
		result = "error"
	case updated:
		result = "updated"
	}
	m.updateChecks.WithLabelValues(result).Inc()
}
