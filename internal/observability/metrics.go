// File: internal/observability/metrics.go
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "wdatoms"

// Metrics groups the prometheus collectors recorded by the dispatcher and the
// handle cache. A nil *Metrics is valid and records nothing, so components
// can take one unconditionally.
type Metrics struct {
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	HandlesMinted   prometheus.Counter
	HandlesEvicted  *prometheus.CounterVec
	Contexts        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what most tests want.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "Dispatched commands by command name and envelope status.",
			},
			[]string{"command", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "command_duration_seconds",
				Help:      "Time spent dispatching a command.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"command"},
		),
		HandlesMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handles_minted_total",
			Help:      "Element and window handles handed out.",
		}),
		HandlesEvicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "handles_evicted_total",
				Help:      "Handles dropped from the cache, by reason.",
			},
			[]string{"reason"},
		),
		Contexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "execution_contexts",
			Help:      "Live per-document execution contexts.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Commands, m.CommandDuration, m.HandlesMinted, m.HandlesEvicted, m.Contexts} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCommand records one dispatch.
func (m *Metrics) ObserveCommand(command string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, strconv.Itoa(status)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) HandleMinted() {
	if m == nil {
		return
	}
	m.HandlesMinted.Inc()
}

func (m *Metrics) HandleEvicted(reason string) {
	if m == nil {
		return
	}
	m.HandlesEvicted.WithLabelValues(reason).Inc()
}

func (m *Metrics) ContextOpened() {
	if m == nil {
		return
	}
	m.Contexts.Inc()
}

func (m *Metrics) ContextRetired() {
	if m == nil {
		return
	}
	m.Contexts.Dec()
}
