package routing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/accuracy"
	"github.com/tributary-ai/llm-router-ml/internal/catalog"
	"github.com/tributary-ai/llm-router-ml/internal/experiment"
	"github.com/tributary-ai/llm-router-ml/internal/features"
	"github.com/tributary-ai/llm-router-ml/internal/monitor"
	"github.com/tributary-ai/llm-router-ml/internal/prediction"
	"github.com/tributary-ai/llm-router-ml/internal/selection"
	"github.com/tributary-ai/llm-router-ml/internal/telemetry"
	"github.com/tributary-ai/llm-router-ml/internal/types"
)

const (
	// learningCap bounds the retained learning dataset (FIFO).
	learningCap = 1000

	// maxAlternatives caps the also-ran candidates in a decision.
	maxAlternatives = 3

	// fallbackConfidence is the fixed confidence of fallback decisions.
	fallbackConfidence = 0.5
)

// Router orchestrates the routing engine: feature extraction, experiment
// participation, prediction, selection, telemetry and the ground-truth
// learning loop. IntelligentRoute never returns an error; every internal
// failure degrades to a fallback decision.
type Router struct {
	extractor   *features.Extractor
	predictor   *prediction.Predictor
	selector    *selection.Selector
	experiments *experiment.Engine
	accuracy    *accuracy.Monitor
	monitor     *monitor.Monitor
	alerts      *monitor.AlertLog
	catalog     *catalog.Catalog
	metrics     *telemetry.Metrics
	logger      *logrus.Logger
	now         func() time.Time

	mu               sync.Mutex
	learning         []types.LearningData
	totalPredictions int64
	confidenceSum    float64
	routingTimeEWMA  float64
}

// New wires a router from its components. All of them are required except
// metrics, which may be nil when Prometheus is not in play.
func New(
	extractor *features.Extractor,
	predictor *prediction.Predictor,
	selector *selection.Selector,
	experiments *experiment.Engine,
	accuracyMon *accuracy.Monitor,
	perfMon *monitor.Monitor,
	alerts *monitor.AlertLog,
	cat *catalog.Catalog,
	metrics *telemetry.Metrics,
	logger *logrus.Logger,
) *Router {
	return &Router{
		extractor:   extractor,
		predictor:   predictor,
		selector:    selector,
		experiments: experiments,
		accuracy:    accuracyMon,
		monitor:     perfMon,
		alerts:      alerts,
		catalog:     cat,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// NewDefault builds a fully wired router with default configuration,
// starting the performance monitor's timers.
func NewDefault(logger *logrus.Logger, metrics *telemetry.Metrics) *Router {
	cat := catalog.Default()
	alerts := monitor.NewAlertLog(time.Minute, logger)
	alerts.SetTypeCooldown(types.AlertAccuracyDegradation, 5*time.Minute)
	alerts.SetTypeCooldown(types.AlertDriftDetected, 5*time.Minute)
	perfMon := monitor.NewMonitor(monitor.DefaultConfig(), alerts, rand.New(rand.NewSource(time.Now().UnixNano())), logger)
	perfMon.Start()

	r := New(
		features.NewExtractor(logger),
		prediction.NewPredictor(cat, logger),
		selection.NewSelector(logger),
		experiment.NewEngine(rand.New(rand.NewSource(time.Now().UnixNano())), logger),
		accuracy.NewMonitor(0, alerts, logger),
		perfMon,
		alerts,
		cat,
		metrics,
		logger,
	)
	return r
}

// IntelligentRoute picks a provider and model for the request. It always
// returns a usable decision: experiment assignment wins over prediction,
// constraint dead-ends and panics degrade to deterministic fallback.
func (r *Router) IntelligentRoute(req *types.AIRequest, userID string, availableProviders []string, opts types.RouteOptions) (decision types.RouteDecision) {
	start := r.now()
	objective := opts.OptimizeFor
	if objective == "" {
		objective = types.OptimizeBalanced
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("panic", rec).Error("Routing panicked, using fallback decision")
			decision = r.fallbackDecision(start, objective, "internal routing failure")
		}
		r.finishDecision(&decision, start, objective)
	}()

	feats := r.extractor.Extract(req, userID)

	if a := r.experiments.Participate(userID); a != nil {
		p := r.predictor.Predict(feats, a.Variant.Provider, a.Variant.Model)
		return types.RouteDecision{
			Provider:              a.Variant.Provider,
			Model:                 a.Variant.Model,
			PredictedCost:         p.PredictedCost,
			PredictedResponseTime: p.PredictedResponseTime,
			PredictedQuality:      p.PredictedQuality,
			Confidence:            p.Confidence,
			Reasoning:             fmt.Sprintf("experiment %s variant %s", a.TestID, a.Variant.Name),
			ExperimentID:          a.TestID,
			ExperimentVariant:     a.Variant.Name,
		}
	}

	if len(availableProviders) == 0 {
		return r.fallbackDecision(start, objective, "no available providers")
	}

	predictions := r.predictor.PredictAll(feats, availableProviders)
	ranked, err := r.selector.Rank(predictions, objective, selection.Constraints{
		MaxCost:         opts.MaxCost,
		MinQuality:      opts.MinQuality,
		MaxResponseTime: opts.MaxResponseTime,
	})
	if err != nil {
		var noCandidates *selection.NoCandidatesError
		if !errors.As(err, &noCandidates) {
			r.logger.WithError(err).Error("Unexpected selection failure, using fallback decision")
		}
		return r.fallbackDecision(start, objective, "no candidates met the constraints")
	}

	best := ranked[0]
	alternatives := ranked[1:]
	if len(alternatives) > maxAlternatives {
		alternatives = alternatives[:maxAlternatives]
	}

	return types.RouteDecision{
		Provider:              best.Provider,
		Model:                 best.Model,
		PredictedCost:         best.PredictedCost,
		PredictedResponseTime: best.PredictedResponseTime,
		PredictedQuality:      best.PredictedQuality,
		Confidence:            best.Confidence,
		Reasoning:             best.Reasoning,
		Alternatives:          append([]types.PredictionResult(nil), alternatives...),
	}
}

// finishDecision stamps timing and counters onto an outgoing decision and
// records it in telemetry.
func (r *Router) finishDecision(decision *types.RouteDecision, start time.Time, objective types.OptimizationType) {
	decision.RoutingTimeMs = float64(r.now().Sub(start).Microseconds()) / 1000.0
	decision.Timestamp = r.now()

	monStart := r.now()
	r.mu.Lock()
	r.totalPredictions++
	r.confidenceSum += decision.Confidence
	if r.routingTimeEWMA == 0 {
		r.routingTimeEWMA = decision.RoutingTimeMs
	} else {
		r.routingTimeEWMA = 0.9*r.routingTimeEWMA + 0.1*decision.RoutingTimeMs
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordDecision(telemetry.DecisionLabels{
			Provider:  decision.Provider,
			Model:     decision.Model,
			Objective: string(objective),
			Fallback:  fmt.Sprintf("%t", decision.Fallback),
		}, decision.RoutingTimeMs, decision.Confidence)
	}
	decision.MonitoringOverheadMs = float64(r.now().Sub(monStart).Microseconds()) / 1000.0

	r.logger.WithFields(logrus.Fields{
		"provider":   decision.Provider,
		"model":      decision.Model,
		"objective":  objective,
		"confidence": decision.Confidence,
		"fallback":   decision.Fallback,
		"routing_ms": decision.RoutingTimeMs,
	}).Debug("Routing decision made")
}

// fallbackDecision routes deterministically to the catalog's first pair.
func (r *Router) fallbackDecision(start time.Time, objective types.OptimizationType, reason string) types.RouteDecision {
	provider, model := r.catalog.First()
	b := r.catalog.Baseline(provider, model)

	return types.RouteDecision{
		Provider:              provider,
		Model:                 model,
		PredictedCost:         b.Cost,
		PredictedResponseTime: b.ResponseTime,
		PredictedQuality:      b.Quality,
		Confidence:            fallbackConfidence,
		Reasoning:             "fallback routing: " + reason,
		Fallback:              true,
	}
}

// LearnFromExecution ingests one ground-truth execution result. Best effort:
// a panic during ingestion is recorded as an error metric, never propagated.
func (r *Router) LearnFromExecution(
	req *types.AIRequest,
	userID, provider, model string,
	resp *types.AIResponse,
	execErr error,
	responseTimeMs float64,
	prediction *types.PredictionResult,
	userSatisfaction *float64,
) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithField("panic", rec).Error("Learning ingestion panicked")
			if r.metrics != nil {
				r.metrics.RecordLearn("panic")
			}
			r.monitor.Record(monitor.RequestMetric{
				Provider:     provider,
				Model:        model,
				ResponseTime: responseTimeMs,
				Success:      false,
				ErrorMessage: "learning ingestion failure",
			})
		}
	}()

	success := execErr == nil
	var cost float64
	if resp != nil {
		cost = resp.Usage.Cost
	}
	quality := estimateQuality(resp, execErr, userSatisfaction)

	r.predictor.Observe(provider, model, cost, responseTimeMs, quality, success)
	if prediction != nil {
		r.accuracy.TrackAccuracy(prediction, cost, responseTimeMs, quality)
	}

	for _, def := range r.experiments.List() {
		if def.Status == experiment.StatusRunning {
			r.experiments.RecordResult(def.ID, userID, req.ID, prediction, cost, responseTimeMs, quality)
		}
	}

	r.monitor.Record(monitor.RequestMetric{
		Provider:     provider,
		Model:        model,
		ResponseTime: responseTimeMs,
		Success:      success,
		Timeout:      errors.Is(execErr, context.DeadlineExceeded),
		ErrorMessage: errorMessage(execErr),
	})

	feats := r.extractor.Extract(req, "")
	r.appendLearning(types.LearningData{
		Features:           feats,
		ActualProvider:     provider,
		ActualModel:        model,
		ActualCost:         cost,
		ActualResponseTime: responseTimeMs,
		ActualQuality:      quality,
		UserSatisfaction:   userSatisfaction,
		Timestamp:          r.now(),
	})

	r.updateRoutingStats()
	if r.metrics != nil {
		if success {
			r.metrics.RecordLearn("success")
		} else {
			r.metrics.RecordLearn("failure")
		}
	}
}

// GetMLInsights returns the aggregate engine view, with per-user pattern
// analysis when a user is given.
func (r *Router) GetMLInsights(userID string) types.MLInsights {
	r.mu.Lock()
	total := r.totalPredictions
	var avgConfidence float64
	if total > 0 {
		avgConfidence = r.confidenceSum / float64(total)
	}
	r.mu.Unlock()

	health := r.monitor.Health()
	insights := types.MLInsights{
		TotalPredictions:     total,
		AverageConfidence:    avgConfidence,
		AccuracyMetrics:      r.accuracy.AllMetrics(),
		ModelRecommendations: r.recommendations(),
		Health:               &health,
		ActiveExperiments:    r.experiments.RunningCount(),
		UnresolvedAlerts:     r.alerts.UnresolvedCount(),
	}
	if userID != "" {
		insights.UserPattern = r.extractor.UserPattern(userID)
	}
	return insights
}

// recommendations ranks the full catalog on the balanced objective with no
// constraints, best first.
func (r *Router) recommendations() []types.PredictionResult {
	predictions := r.predictor.PredictAll(types.RequestFeatures{}, r.catalog.Providers())
	ranked, err := r.selector.Rank(predictions, types.OptimizeBalanced, selection.Constraints{})
	if err != nil {
		ranked = predictions
	}
	if len(ranked) > maxAlternatives {
		ranked = ranked[:maxAlternatives]
	}
	return ranked
}

// GetCurrentSnapshot returns a fresh performance snapshot.
func (r *Router) GetCurrentSnapshot() types.PerformanceSnapshot {
	return r.monitor.Snapshot()
}

// GetHealthStatus returns the current health assessment.
func (r *Router) GetHealthStatus() types.HealthStatus {
	return r.monitor.Health()
}

// GetAlerts returns alerts newest-first.
func (r *Router) GetAlerts(unresolvedOnly bool) []types.Alert {
	return r.alerts.Alerts(unresolvedOnly)
}

// ResolveAlert marks an alert resolved by ID.
func (r *Router) ResolveAlert(id string) bool {
	return r.alerts.Resolve(id)
}

// GetPerformanceTrends returns the retained snapshots for the trailing
// period.
func (r *Router) GetPerformanceTrends(hours int) []types.PerformanceSnapshot {
	return r.monitor.Trends(time.Duration(hours) * time.Hour)
}

// Experiments exposes the experiment engine for management surfaces.
func (r *Router) Experiments() *experiment.Engine {
	return r.experiments
}

// Accuracy exposes the accuracy monitor for drift queries.
func (r *Router) Accuracy() *accuracy.Monitor {
	return r.accuracy
}

// LearningSize reports the retained learning dataset size.
func (r *Router) LearningSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.learning)
}

// Stop shuts down the performance monitor's timers.
func (r *Router) Stop() {
	r.monitor.Stop()
}

func (r *Router) appendLearning(d types.LearningData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.learning = append(r.learning, d)
	if len(r.learning) > learningCap {
		r.learning = r.learning[len(r.learning)-learningCap:]
	}
}

// updateRoutingStats pushes the router's own quality figures down into the
// performance monitor for health scoring.
func (r *Router) updateRoutingStats() {
	var overall float64
	all := r.accuracy.AllMetrics()
	if len(all) > 0 {
		for _, m := range all {
			overall += m.OverallAccuracy
		}
		overall /= float64(len(all))
	} else {
		// No accuracy data yet; assume nominal so health is not penalized.
		overall = 1
	}

	r.mu.Lock()
	avgConfidence := 0.0
	if r.totalPredictions > 0 {
		avgConfidence = r.confidenceSum / float64(r.totalPredictions)
	}
	routingTime := r.routingTimeEWMA
	r.mu.Unlock()

	r.monitor.SetRoutingStats(overall, routingTime, avgConfidence)
}

// estimateQuality derives a 0-1 quality proxy from the execution result.
// Explicit user satisfaction overrides the heuristic.
func estimateQuality(resp *types.AIResponse, execErr error, userSatisfaction *float64) float64 {
	if userSatisfaction != nil {
		return clamp01(*userSatisfaction)
	}
	if execErr != nil || resp == nil {
		return 0
	}

	quality := 0.7
	switch resp.FinishReason {
	case "stop":
		quality += 0.2
	case "length":
		quality -= 0.2
	}
	return clamp01(quality)
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
