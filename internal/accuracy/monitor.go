package accuracy

import (
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

const (
	// minSampleSize gates metric queries: below it a key has no current
	// metrics.
	minSampleSize = 5

	// windowCap bounds the per-key rolling observation window.
	windowCap = 100

	// defaultDriftThreshold is the relative gap that counts as drift.
	defaultDriftThreshold = 0.05
)

// AlertSink receives degradation alerts. The monitor owns detection; the
// sink owns dedup, storage and delivery.
type AlertSink interface {
	Raise(alertType types.AlertType, key string, severity types.AlertSeverity, message string, value, threshold float64)
}

// Score computes per-field prediction accuracy in [0,1]. Exact zero on both
// sides is a perfect prediction; otherwise the relative error is taken
// against the actual value with a small floor to avoid division blowup.
func Score(predicted, actual float64) float64 {
	if actual == 0 && predicted == 0 {
		return 1
	}
	return math.Max(0, 1-math.Abs(predicted-actual)/math.Max(actual, 0.001))
}

// observation holds one prediction-vs-actual comparison.
type observation struct {
	costAccuracy    float64
	timeAccuracy    float64
	qualityAccuracy float64
}

// DriftReport is the outcome of comparing two keys' current metrics.
type DriftReport struct {
	IsDriftDetected   bool     `json:"is_drift_detected"`
	BaselineKey       string   `json:"baseline_key"`
	CandidateKey      string   `json:"candidate_key"`
	AffectedMetrics   []string `json:"affected_metrics,omitempty"`
	RecommendedAction string   `json:"recommended_action"` // "investigate" or "none"
}

// Monitor tracks prediction accuracy per provider|model key over a bounded
// rolling window and reports degradation and drift.
type Monitor struct {
	mu             sync.RWMutex
	windows        map[string][]observation
	driftThreshold float64
	sink           AlertSink
	logger         *logrus.Logger
}

// NewMonitor creates an accuracy monitor. The sink may be nil, in which case
// degradation is logged but not alerted.
func NewMonitor(driftThreshold float64, sink AlertSink, logger *logrus.Logger) *Monitor {
	if driftThreshold <= 0 {
		driftThreshold = defaultDriftThreshold
	}
	return &Monitor{
		windows:        make(map[string][]observation),
		driftThreshold: driftThreshold,
		sink:           sink,
		logger:         logger,
	}
}

// TrackAccuracy records one prediction-vs-actual observation for the
// prediction's provider|model key and alerts on overall degradation.
func (m *Monitor) TrackAccuracy(prediction *types.PredictionResult, actualCost, actualResponseTime, actualQuality float64) {
	key := prediction.Provider + "|" + prediction.Model
	obs := observation{
		costAccuracy:    Score(prediction.PredictedCost, actualCost),
		timeAccuracy:    Score(prediction.PredictedResponseTime, actualResponseTime),
		qualityAccuracy: Score(prediction.PredictedQuality, actualQuality),
	}

	m.mu.Lock()
	before := aggregateWindow(m.windows[key])
	window := append(m.windows[key], obs)
	if len(window) > windowCap {
		window = window[len(window)-windowCap:]
	}
	m.windows[key] = window
	after := aggregateWindow(window)
	m.mu.Unlock()

	if before != nil && after != nil && after.OverallAccuracy < before.OverallAccuracy {
		m.degraded(key, after.OverallAccuracy, before.OverallAccuracy)
	}
}

// Metrics returns the current aggregate for a key, or nil when fewer than
// the minimum number of observations exist.
func (m *Monitor) Metrics(key string) *types.AccuracyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregateWindow(m.windows[key])
}

// AllMetrics returns every key that has passed the sample-size gate.
func (m *Monitor) AllMetrics() map[string]types.AccuracyMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]types.AccuracyMetrics)
	for key, window := range m.windows {
		if agg := aggregateWindow(window); agg != nil {
			out[key] = *agg
		}
	}
	return out
}

// DetectDrift compares the candidate key's current metrics against the
// baseline key's. Drift means the candidate is worse than the baseline by
// more than the threshold on any tracked metric.
func (m *Monitor) DetectDrift(baselineKey, candidateKey string) DriftReport {
	report := DriftReport{
		BaselineKey:       baselineKey,
		CandidateKey:      candidateKey,
		RecommendedAction: "none",
	}

	baseline := m.Metrics(baselineKey)
	candidate := m.Metrics(candidateKey)
	if baseline == nil || candidate == nil {
		return report
	}

	checks := []struct {
		name      string
		baseline  float64
		candidate float64
	}{
		{"cost_accuracy", baseline.CostAccuracy, candidate.CostAccuracy},
		{"response_time_accuracy", baseline.ResponseTimeAccuracy, candidate.ResponseTimeAccuracy},
		{"quality_accuracy", baseline.QualityAccuracy, candidate.QualityAccuracy},
	}
	for _, c := range checks {
		if c.baseline-c.candidate > m.driftThreshold {
			report.AffectedMetrics = append(report.AffectedMetrics, c.name)
		}
	}
	sort.Strings(report.AffectedMetrics)

	if len(report.AffectedMetrics) > 0 {
		report.IsDriftDetected = true
		report.RecommendedAction = "investigate"
		if m.sink != nil {
			m.sink.Raise(types.AlertDriftDetected, candidateKey, types.SeverityMedium,
				"prediction accuracy drifted from baseline "+baselineKey,
				candidate.OverallAccuracy, baseline.OverallAccuracy-m.driftThreshold)
		}
	}
	return report
}

func (m *Monitor) degraded(key string, current, previous float64) {
	m.logger.WithFields(logrus.Fields{
		"key":      key,
		"current":  current,
		"previous": previous,
	}).Warn("Prediction accuracy degraded")

	if m.sink != nil {
		m.sink.Raise(types.AlertAccuracyDegradation, key, types.SeverityMedium,
			"overall prediction accuracy fell for "+key, current, previous)
	}
}

// aggregateWindow folds a window into AccuracyMetrics, or nil below the
// sample-size gate.
func aggregateWindow(window []observation) *types.AccuracyMetrics {
	if len(window) < minSampleSize {
		return nil
	}

	var cost, rt, qual float64
	for _, o := range window {
		cost += o.costAccuracy
		rt += o.timeAccuracy
		qual += o.qualityAccuracy
	}
	n := float64(len(window))

	agg := &types.AccuracyMetrics{
		CostAccuracy:         cost / n,
		ResponseTimeAccuracy: rt / n,
		QualityAccuracy:      qual / n,
		SampleSize:           len(window),
	}
	agg.OverallAccuracy = (agg.CostAccuracy + agg.ResponseTimeAccuracy + agg.QualityAccuracy) / 3
	return agg
}
