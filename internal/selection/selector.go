package selection

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

const (
	// minConfidence excludes low-confidence predictions from selection
	// entirely, before constraint filtering.
	minConfidence = 0.6

	// costCeiling and timeCeiling anchor the 0-1 normalization of the raw
	// predicted cost (USD) and response time (milliseconds).
	costCeiling = 0.1
	timeCeiling = 5000.0
)

// objectiveWeights is one row of the scoring table: how much each normalized
// metric contributes for a given optimization target.
type objectiveWeights struct {
	cost    float64
	speed   float64
	quality float64
}

// NoCandidatesError reports that every prediction was eliminated by the
// confidence gate or the caller's constraints.
type NoCandidatesError struct {
	Considered int
	Reason     string
}

func (e *NoCandidatesError) Error() string {
	return fmt.Sprintf("no viable candidates out of %d predictions: %s", e.Considered, e.Reason)
}

// Constraints are optional hard limits applied before scoring. A nil field
// means unconstrained.
type Constraints struct {
	MaxCost         *float64
	MinQuality      *float64
	MaxResponseTime *float64
}

// Selector scores confidence-gated, constraint-filtered predictions against
// an optimization objective. The weight table is fixed at construction.
type Selector struct {
	weights map[types.OptimizationType]objectiveWeights
	logger  *logrus.Logger
}

// NewSelector creates a selector with the standard objective weight table.
func NewSelector(logger *logrus.Logger) *Selector {
	return &Selector{
		weights: map[types.OptimizationType]objectiveWeights{
			types.OptimizeCost:     {cost: 0.7, speed: 0.1, quality: 0.2},
			types.OptimizeSpeed:    {cost: 0.1, speed: 0.7, quality: 0.2},
			types.OptimizeQuality:  {cost: 0.1, speed: 0.2, quality: 0.7},
			types.OptimizeBalanced: {cost: 1.0 / 3.0, speed: 1.0 / 3.0, quality: 1.0 / 3.0},
		},
		logger: logger,
	}
}

// Select returns the highest-scoring viable prediction. Ties resolve to the
// earliest candidate in input order.
func (s *Selector) Select(predictions []types.PredictionResult, objective types.OptimizationType, c Constraints) (types.PredictionResult, error) {
	ranked, err := s.Rank(predictions, objective, c)
	if err != nil {
		return types.PredictionResult{}, err
	}
	return ranked[0], nil
}

// Rank filters and scores the predictions, returning the survivors sorted by
// descending score with Score and Reasoning filled in. Ordering is stable:
// equal scores keep their input order.
func (s *Selector) Rank(predictions []types.PredictionResult, objective types.OptimizationType, c Constraints) ([]types.PredictionResult, error) {
	weights, ok := s.weights[objective]
	if !ok {
		weights = s.weights[types.OptimizeBalanced]
	}

	var viable []types.PredictionResult
	for _, p := range predictions {
		if p.Confidence < minConfidence {
			continue
		}
		if violates(p, c) {
			continue
		}
		p.Score = score(p, weights)
		p.Reasoning = reasoning(p, objective, weights)
		viable = append(viable, p)
	}

	if len(viable) == 0 {
		s.logger.WithFields(logrus.Fields{
			"considered": len(predictions),
			"objective":  objective,
		}).Warn("No viable routing candidates")
		return nil, &NoCandidatesError{
			Considered: len(predictions),
			Reason:     "all predictions below confidence threshold or outside constraints",
		}
	}

	// Insertion sort keeps equal-score candidates in input order.
	for i := 1; i < len(viable); i++ {
		for j := i; j > 0 && viable[j].Score > viable[j-1].Score; j-- {
			viable[j], viable[j-1] = viable[j-1], viable[j]
		}
	}

	return viable, nil
}

func violates(p types.PredictionResult, c Constraints) bool {
	if c.MaxCost != nil && p.PredictedCost > *c.MaxCost {
		return true
	}
	if c.MinQuality != nil && p.PredictedQuality < *c.MinQuality {
		return true
	}
	if c.MaxResponseTime != nil && p.PredictedResponseTime > *c.MaxResponseTime {
		return true
	}
	return false
}

// score computes the objective-weighted sum of the normalized metrics, scaled
// by prediction confidence.
func score(p types.PredictionResult, w objectiveWeights) float64 {
	costN := 1 - math.Min(1, p.PredictedCost/costCeiling)
	timeN := 1 - math.Min(1, p.PredictedResponseTime/timeCeiling)
	base := w.cost*costN + w.speed*timeN + w.quality*p.PredictedQuality
	return base * p.Confidence
}

func reasoning(p types.PredictionResult, objective types.OptimizationType, w objectiveWeights) string {
	return fmt.Sprintf("optimized for %s: %s (cost $%.4f, %.0fms, quality %.2f, confidence %.0f%%)",
		objective, standout(p, w), p.PredictedCost, p.PredictedResponseTime, p.PredictedQuality, p.Confidence*100)
}

// standout names the metric the objective weights most heavily.
func standout(p types.PredictionResult, w objectiveWeights) string {
	switch {
	case w.cost > w.speed && w.cost > w.quality:
		return fmt.Sprintf("lowest projected cost $%.4f", p.PredictedCost)
	case w.speed > w.cost && w.speed > w.quality:
		return fmt.Sprintf("fastest projected response %.0fms", p.PredictedResponseTime)
	case w.quality > w.cost && w.quality > w.speed:
		return fmt.Sprintf("highest projected quality %.2f", p.PredictedQuality)
	default:
		return "best overall balance of cost, speed and quality"
	}
}
