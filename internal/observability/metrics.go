// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the tool-invocation pipeline.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pipeline metrics. A nil *Metrics is valid and records
// nothing, so components can take one as an optional dependency.
type Metrics struct {
	// Classifications counts classifier results.
	// Labels: layer (1|2|3), category
	Classifications *prometheus.CounterVec

	// ClassificationDuration measures classify latency in seconds.
	// Labels: layer
	ClassificationDuration *prometheus.HistogramVec

	// ToolCallTransitions counts tool call state transitions.
	// Labels: tool, status
	ToolCallTransitions *prometheus.CounterVec

	// ToolExecutionDuration measures handler execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ApprovalDecisions counts how pending calls were resolved.
	// Labels: mode, decision (auto|approved|rejected)
	ApprovalDecisions *prometheus.CounterVec

	// TrustGrants counts session trust records written.
	TrustGrants prometheus.Counter

	// BufferedEvents tracks lifecycle events waiting for their entity.
	BufferedEvents prometheus.Gauge

	// HTTPRequestDuration measures gateway request latency.
	// Labels: method, route, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep instances independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Classifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpipe_classifications_total",
				Help: "Classifier results by layer and category",
			},
			[]string{"layer", "category"},
		),
		ClassificationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpipe_classification_duration_seconds",
				Help:    "Classifier latency in seconds by resolving layer",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.02, 0.05, 0.1, 0.5, 1, 3},
			},
			[]string{"layer"},
		),
		ToolCallTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpipe_tool_call_transitions_total",
				Help: "Tool call state transitions by tool and target status",
			},
			[]string{"tool", "status"},
		),
		ToolExecutionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpipe_tool_execution_duration_seconds",
				Help:    "Tool handler execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		ApprovalDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolpipe_approval_decisions_total",
				Help: "Approval outcomes by mode and decision",
			},
			[]string{"mode", "decision"},
		),
		TrustGrants: f.NewCounter(prometheus.CounterOpts{
			Name: "toolpipe_trust_grants_total",
			Help: "Session trust records written",
		}),
		BufferedEvents: f.NewGauge(prometheus.GaugeOpts{
			Name: "toolpipe_buffered_events",
			Help: "Lifecycle events buffered for entities not yet registered",
		}),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolpipe_http_request_duration_seconds",
				Help:    "Gateway request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route", "status_code"},
		),
	}
}

// ObserveClassification records one classifier result.
func (m *Metrics) ObserveClassification(layer int, category string, d time.Duration) {
	if m == nil {
		return
	}
	l := strconv.Itoa(layer)
	m.Classifications.WithLabelValues(l, category).Inc()
	m.ClassificationDuration.WithLabelValues(l).Observe(d.Seconds())
}

// ObserveTransition records a tool call entering status.
func (m *Metrics) ObserveTransition(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCallTransitions.WithLabelValues(tool, status).Inc()
}

// ObserveExecution records how long a tool handler ran.
func (m *Metrics) ObserveExecution(tool string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveDecision records how a pending call was resolved.
func (m *Metrics) ObserveDecision(mode, decision string) {
	if m == nil {
		return
	}
	m.ApprovalDecisions.WithLabelValues(mode, decision).Inc()
}

// ObserveTrustGrant records a new session trust record.
func (m *Metrics) ObserveTrustGrant() {
	if m == nil {
		return
	}
	m.TrustGrants.Inc()
}

// SetBufferedEvents sets the number of buffered lifecycle events.
func (m *Metrics) SetBufferedEvents(n int) {
	if m == nil {
		return
	}
	m.BufferedEvents.Set(float64(n))
}

// ObserveHTTP records one gateway request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
