package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the routing engine.
type Metrics struct {
	decisions          *prometheus.CounterVec
	decisionLatency    prometheus.Histogram
	decisionConfidence prometheus.Histogram
	learnEvents        *prometheus.CounterVec
	alertsRaised       *prometheus.CounterVec
}

// DecisionLabels identify one routing decision.
type DecisionLabels struct {
	Provider  string
	Model     string
	Objective string
	Fallback  string // "true" or "false"
}

// NewMetrics registers the engine's instruments against the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llm_router",
			Name:      "route_decisions_total",
			Help:      "Routing decisions by provider, model, objective and fallback flag.",
		}, []string{"provider", "model", "objective", "fallback"}),
		decisionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "llm_router",
			Name:      "route_decision_duration_ms",
			Help:      "Time spent computing a routing decision, in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
		}),
		decisionConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "llm_router",
			Name:      "route_decision_confidence",
			Help:      "Confidence of routing decisions.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		learnEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llm_router",
			Name:      "learn_events_total",
			Help:      "Ground-truth learning calls by outcome.",
		}, []string{"outcome"}),
		alertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llm_router",
			Name:      "alerts_raised_total",
			Help:      "Alerts raised by type and severity.",
		}, []string{"type", "severity"}),
	}
}

// RecordDecision counts one routing decision with its latency and confidence.
func (m *Metrics) RecordDecision(labels DecisionLabels, latencyMs, confidence float64) {
	m.decisions.WithLabelValues(labels.Provider, labels.Model, labels.Objective, labels.Fallback).Inc()
	m.decisionLatency.Observe(latencyMs)
	m.decisionConfidence.Observe(confidence)
}

// RecordLearn counts one learning call by outcome ("success", "failure" or
// "panic").
func (m *Metrics) RecordLearn(outcome string) {
	m.learnEvents.WithLabelValues(outcome).Inc()
}

// RecordAlert counts one raised alert.
func (m *Metrics) RecordAlert(alertType, severity string) {
	m.alertsRaised.WithLabelValues(alertType, severity).Inc()
}
