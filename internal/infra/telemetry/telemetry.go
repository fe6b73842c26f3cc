package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// Metrics holds the prometheus collectors for the server.
type Metrics struct {
	Registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	paginators      prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry, together with the Go and
// process collectors. HTTP collectors are registered on Registry by the transport.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Executed commands by tag and outcome code.",
		}, []string{"tag", "code"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution latency including commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tag"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by principal kind and outcome.",
		}, []string{"kind", "outcome"}),
		paginators: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_paginators",
			Help:      "Paging sessions currently held in memory.",
		}),
	}
}

// ObserveCommand records one pipeline execution. code is "OK" on success.
func (m *Metrics) ObserveCommand(tag, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(tag, code).Inc()
	m.commandDuration.WithLabelValues(tag).Observe(elapsed.Seconds())
}

// ObserveLogin records a login outcome.
func (m *Metrics) ObserveLogin(kind, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(kind, outcome).Inc()
}

// SetPaginators reports the current paging session count.
func (m *Metrics) SetPaginators(n int) {
	if m == nil {
		return
	}
	m.paginators.Set(float64(n))
}
