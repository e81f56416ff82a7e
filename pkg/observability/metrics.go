// Package observability provides in-process metrics and tracing for the
// runtime. Metrics are registered on a caller-supplied Registerer so tests
// and embedders never fight over a global registry.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms recorded by the event bus,
// the tool pipeline, and the orchestrator.
type Metrics struct {
	EventsEmitted     *prometheus.CounterVec
	RedactionsApplied prometheus.Counter
	SubscriberPanics  prometheus.Counter

	ToolExecutions   *prometheus.CounterVec
	ToolDuration     prometheus.Histogram
	PolicyBlocks     *prometheus.CounterVec
	ApprovalRequests prometheus.Counter

	ReflexionAttempts prometheus.Counter
	StateTransitions  *prometheus.CounterVec
}

// NewMetrics creates and registers the runtime metrics. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabula_events_emitted_total",
			Help: "Events emitted on the bus, by event type.",
		}, []string{"type"}),
		RedactionsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabula_redactions_applied_total",
			Help: "Payloads auto-escalated to strict redaction.",
		}),
		SubscriberPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabula_subscriber_panics_total",
			Help: "Event subscriber handlers that panicked during dispatch.",
		}),
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabula_tool_executions_total",
			Help: "Tool pipeline outcomes, by policy decision.",
		}, []string{"tool", "decision"}),
		ToolDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabula_tool_execution_duration_seconds",
			Help:    "Tool handler execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		PolicyBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabula_policy_blocks_total",
			Help: "Tool calls blocked, by gate rule.",
		}, []string{"rule"}),
		ApprovalRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabula_approval_requests_total",
			Help: "Tool calls paused waiting for user approval.",
		}),
		ReflexionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabula_reflexion_attempts_total",
			Help: "QA reflexion attempts executed.",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabula_state_transitions_total",
			Help: "Workflow state transitions, by target state.",
		}, []string{"to"}),
	}

	reg.MustRegister(
		m.EventsEmitted,
		m.RedactionsApplied,
		m.SubscriberPanics,
		m.ToolExecutions,
		m.ToolDuration,
		m.PolicyBlocks,
		m.ApprovalRequests,
		m.ReflexionAttempts,
		m.StateTransitions,
	)

	return m
}

// NoopMetrics returns metrics that record into an isolated registry.
// Use when the embedder does not care about metrics.
func NoopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
