// Package metric holds the Prometheus instruments for the bridge. A nil *Metrics
// is valid and records nothing.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simbridge"

// Drop reasons for malformed subscriber messages.
const (
	ReasonShortFrames  = "short_frames"
	ReasonBadJSON      = "bad_json"
	ReasonBadPayload   = "bad_payload"
	ReasonUnknownTopic = "unknown_topic"
)

// Command outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeTimeout    = "timeout"
	OutcomeConnection = "connection"
	OutcomeEncoding   = "encoding"
)

type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	SubscriberState  prometheus.Gauge
	Commands         *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	WatchedVariables prometheus.Gauge
	TreeItems        prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscriber",
				Name:      "messages_received_total",
				Help:      "Messages dispatched by topic",
			},
			[]string{"topic"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscriber",
				Name:      "messages_dropped_total",
				Help:      "Malformed or unroutable messages skipped by the subscriber",
			},
			[]string{"reason"},
		),
		SubscriberState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "subscriber",
				Name:      "state",
				Help:      "Subscriber state (0=stopped, 1=starting, 2=running, 3=stopping)",
			},
		),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commander",
				Name:      "commands_total",
				Help:      "Commands sent by name and outcome",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "commander",
				Name:      "command_duration_seconds",
				Help:      "Time from send to reply or failure",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"command"},
		),
		WatchedVariables: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "data",
				Name:      "watched_variables",
				Help:      "Variables currently on the watch list",
			},
		),
		TreeItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "data",
				Name:      "tree_items",
				Help:      "Items in the current flattened model tree",
			},
		),
	}
}

// Register adds every instrument to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.MessagesReceived,
		m.MessagesDropped,
		m.SubscriberState,
		m.Commands,
		m.CommandDuration,
		m.WatchedVariables,
		m.TreeItems,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) MessageReceived(topic string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(topic).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetSubscriberState(state int) {
	if m == nil {
		return
	}
	m.SubscriberState.Set(float64(state))
}

func (m *Metrics) CommandCompleted(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) SetWatchedVariables(n int) {
	if m == nil {
		return
	}
	m.WatchedVariables.Set(float64(n))
}

func (m *Metrics) SetTreeItems(n int) {
	if m == nil {
		return
	}
	m.TreeItems.Set(float64(n))
}
