package selection

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

func createTestSelector() *Selector {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewSelector(logger)
}

func createTestPrediction(provider, model string, cost, responseTime, quality, confidence float64) types.PredictionResult {
	return types.PredictionResult{
		Provider:              provider,
		Model:                 model,
		PredictedCost:         cost,
		PredictedResponseTime: responseTime,
		PredictedQuality:      quality,
		Confidence:            confidence,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestSelectFiltersLowConfidence(t *testing.T) {
	s := createTestSelector()

	predictions := []types.PredictionResult{
		createTestPrediction("a", "m1", 0.01, 1000, 0.9, 0.5),
		createTestPrediction("b", "m2", 0.01, 1000, 0.9, 0.59),
	}

	_, err := s.Select(predictions, types.OptimizeBalanced, Constraints{})

	var noCandidates *NoCandidatesError
	if !errors.As(err, &noCandidates) {
		t.Fatalf("Expected NoCandidatesError, got %v", err)
	}
	if noCandidates.Considered != 2 {
		t.Errorf("Expected 2 considered, got %d", noCandidates.Considered)
	}
}

func TestSelectAppliesConstraints(t *testing.T) {
	s := createTestSelector()

	predictions := []types.PredictionResult{
		createTestPrediction("cheap", "m1", 0.001, 1000, 0.6, 0.9),
		createTestPrediction("pricey", "m2", 0.05, 800, 0.95, 0.9),
	}

	// Max cost excludes the pricey model.
	best, err := s.Select(predictions, types.OptimizeQuality, Constraints{MaxCost: floatPtr(0.01)})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if best.Provider != "cheap" {
		t.Errorf("Expected cheap provider under cost constraint, got %s", best.Provider)
	}

	// Min quality excludes the cheap model.
	best, err = s.Select(predictions, types.OptimizeCost, Constraints{MinQuality: floatPtr(0.8)})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if best.Provider != "pricey" {
		t.Errorf("Expected pricey provider under quality constraint, got %s", best.Provider)
	}

	// Max response time excludes both.
	_, err = s.Select(predictions, types.OptimizeBalanced, Constraints{MaxResponseTime: floatPtr(500)})
	var noCandidates *NoCandidatesError
	if !errors.As(err, &noCandidates) {
		t.Fatalf("Expected NoCandidatesError, got %v", err)
	}
}

func TestObjectiveWeighting(t *testing.T) {
	s := createTestSelector()

	cheapSlow := createTestPrediction("cheap", "m1", 0.001, 4000, 0.7, 0.9)
	fastPricey := createTestPrediction("fast", "m2", 0.08, 300, 0.7, 0.9)
	highQuality := createTestPrediction("quality", "m3", 0.05, 2500, 0.98, 0.9)
	predictions := []types.PredictionResult{cheapSlow, fastPricey, highQuality}

	tests := []struct {
		objective types.OptimizationType
		expected  string
	}{
		{types.OptimizeCost, "cheap"},
		{types.OptimizeSpeed, "fast"},
		{types.OptimizeQuality, "quality"},
	}

	for _, tt := range tests {
		best, err := s.Select(predictions, tt.objective, Constraints{})
		if err != nil {
			t.Fatalf("Objective %s: unexpected error: %v", tt.objective, err)
		}
		if best.Provider != tt.expected {
			t.Errorf("Objective %s: expected %s, got %s", tt.objective, tt.expected, best.Provider)
		}
	}
}

func TestSecondaryWeightsFavorQuality(t *testing.T) {
	s := createTestSelector()

	// Cost objective, candidates tied on cost: quality carries weight 0.2
	// against speed's 0.1, so the high-quality slow candidate must win even
	// against an instant zero-quality one.
	hqSlow := createTestPrediction("hq", "m1", 0.01, 5000, 1.0, 0.9)
	lqFast := createTestPrediction("lq", "m2", 0.01, 0, 0.0, 0.9)

	best, err := s.Select([]types.PredictionResult{lqFast, hqSlow}, types.OptimizeCost, Constraints{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if best.Provider != "hq" {
		t.Errorf("Cost objective: expected quality to outweigh speed, got %s", best.Provider)
	}

	// Speed objective, candidates tied on response time: quality must
	// likewise outweigh cost.
	hqPricey := createTestPrediction("hq", "m1", 0.1, 1000, 1.0, 0.9)
	lqFree := createTestPrediction("lq", "m2", 0.0, 1000, 0.0, 0.9)

	best, err = s.Select([]types.PredictionResult{lqFree, hqPricey}, types.OptimizeSpeed, Constraints{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if best.Provider != "hq" {
		t.Errorf("Speed objective: expected quality to outweigh cost, got %s", best.Provider)
	}
}

func TestScoreScaledByConfidence(t *testing.T) {
	s := createTestSelector()

	confident := createTestPrediction("a", "m1", 0.01, 1000, 0.8, 0.95)
	hesitant := createTestPrediction("b", "m2", 0.01, 1000, 0.8, 0.65)

	best, err := s.Select([]types.PredictionResult{hesitant, confident}, types.OptimizeBalanced, Constraints{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if best.Provider != "a" {
		t.Errorf("Expected the more confident prediction to win, got %s", best.Provider)
	}
}

func TestTiesResolveToInputOrder(t *testing.T) {
	s := createTestSelector()

	first := createTestPrediction("first", "m1", 0.01, 1000, 0.8, 0.9)
	second := createTestPrediction("second", "m2", 0.01, 1000, 0.8, 0.9)

	best, err := s.Select([]types.PredictionResult{first, second}, types.OptimizeBalanced, Constraints{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if best.Provider != "first" {
		t.Errorf("Expected tie to resolve to input order, got %s", best.Provider)
	}
}

func TestRankReturnsSortedSurvivors(t *testing.T) {
	s := createTestSelector()

	predictions := []types.PredictionResult{
		createTestPrediction("a", "m1", 0.09, 4500, 0.5, 0.9),
		createTestPrediction("b", "m2", 0.001, 500, 0.95, 0.9),
		createTestPrediction("c", "m3", 0.01, 1500, 0.8, 0.9),
		createTestPrediction("d", "m4", 0.01, 1500, 0.8, 0.3), // filtered
	}

	ranked, err := s.Rank(predictions, types.OptimizeBalanced, Constraints{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("Expected 3 survivors, got %d", len(ranked))
	}
	if ranked[0].Provider != "b" {
		t.Errorf("Expected best candidate first, got %s", ranked[0].Provider)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("Ranked results not sorted by descending score at index %d", i)
		}
	}
	for _, r := range ranked {
		if r.Score <= 0 {
			t.Errorf("Candidate %s missing score", r.Provider)
		}
		if r.Reasoning == "" {
			t.Errorf("Candidate %s missing reasoning", r.Provider)
		}
	}
}

func TestUnknownObjectiveFallsBackToBalanced(t *testing.T) {
	s := createTestSelector()

	predictions := []types.PredictionResult{
		createTestPrediction("a", "m1", 0.01, 1000, 0.8, 0.9),
	}

	best, err := s.Select(predictions, types.OptimizationType("mystery"), Constraints{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if best.Provider != "a" {
		t.Errorf("Expected a decision under unknown objective, got %s", best.Provider)
	}
}
