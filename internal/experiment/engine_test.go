package experiment

import (
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

func createTestEngine() *Engine {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewEngine(rand.New(rand.NewSource(42)), logger)
}

func createTestDefinition() Definition {
	return Definition{
		Name:              "sonnet-vs-haiku",
		VariantA:          Variant{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022", Weight: 0.5},
		VariantB:          Variant{Provider: "anthropic", Model: "claude-3-haiku-20240307", Weight: 0.5},
		MinSampleSize:     10,
		TrafficAllocation: 1.0,
		PrimaryMetric:     "quality",
	}
}

func startTestExperiment(t *testing.T, e *Engine) string {
	t.Helper()

	id, err := e.Define(createTestDefinition())
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := e.Start(id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return id
}

func TestDefineValidatesAllocation(t *testing.T) {
	e := createTestEngine()

	def := createTestDefinition()
	def.TrafficAllocation = 1.5
	if _, err := e.Define(def); err == nil {
		t.Error("Expected error for traffic allocation above 1")
	}

	def = createTestDefinition()
	def.VariantA.Weight = 0
	def.VariantB.Weight = 0
	if _, err := e.Define(def); err == nil {
		t.Error("Expected error for zero variant weights")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	e := createTestEngine()

	id, err := e.Define(createTestDefinition())
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}

	// Cannot complete a draft.
	if err := e.Complete(id); err == nil {
		t.Error("Expected error completing a draft experiment")
	}

	if err := e.Start(id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Cannot start twice.
	if err := e.Start(id); err == nil {
		t.Error("Expected error starting a running experiment")
	}

	if err := e.Complete(id); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if e.RunningCount() != 0 {
		t.Errorf("Expected 0 running experiments, got %d", e.RunningCount())
	}
}

func TestStickyAssignment(t *testing.T) {
	e := createTestEngine()
	id := startTestExperiment(t, e)

	first := e.Participate("user-1")
	if first == nil {
		t.Fatal("Expected assignment at full traffic allocation")
	}

	for i := 0; i < 20; i++ {
		again := e.Participate("user-1")
		if again == nil {
			t.Fatal("Expected sticky assignment on repeat participation")
		}
		if again.Variant.Name != first.Variant.Name {
			t.Fatalf("Assignment not sticky: got %s then %s", first.Variant.Name, again.Variant.Name)
		}
	}

	if got := e.GetAssignment(id, "user-1"); got == nil || got.Variant.Name != first.Variant.Name {
		t.Error("GetAssignment disagrees with Participate")
	}
}

func TestGetAssignmentUnknownUser(t *testing.T) {
	e := createTestEngine()
	id := startTestExperiment(t, e)

	if a := e.GetAssignment(id, "never-seen"); a != nil {
		t.Errorf("Expected nil assignment for unknown user, got %+v", a)
	}
}

func TestZeroAllocationExcludesEveryone(t *testing.T) {
	e := createTestEngine()

	def := createTestDefinition()
	def.TrafficAllocation = 0
	id, err := e.Define(def)
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := e.Start(id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		if a := e.Participate(fmt.Sprintf("user-%d", i)); a != nil {
			t.Fatalf("Expected no assignment at zero allocation, user-%d got one", i)
		}
	}
}

func TestAnonymousUsersNeverParticipate(t *testing.T) {
	e := createTestEngine()
	startTestExperiment(t, e)

	if a := e.Participate(""); a != nil {
		t.Errorf("Expected no assignment for anonymous user, got %+v", a)
	}
}

func TestBothVariantsGetTraffic(t *testing.T) {
	e := createTestEngine()
	startTestExperiment(t, e)

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		a := e.Participate(fmt.Sprintf("user-%d", i))
		if a == nil {
			t.Fatalf("Expected assignment for user-%d", i)
		}
		counts[a.Variant.Name]++
	}

	if counts["A"] == 0 || counts["B"] == 0 {
		t.Errorf("Expected both variants to receive traffic, got %v", counts)
	}
}

func TestRecordResultRequiresAssignment(t *testing.T) {
	e := createTestEngine()
	id := startTestExperiment(t, e)

	e.RecordResult(id, "unassigned-user", "req-1", nil, 0.01, 1000, 0.9)
	if got := len(e.Outcomes(id)); got != 0 {
		t.Errorf("Expected no outcomes for unassigned user, got %d", got)
	}

	e.Participate("user-1")
	prediction := &types.PredictionResult{
		Provider:              "anthropic",
		Model:                 "claude-3-5-sonnet-20241022",
		PredictedCost:         0.01,
		PredictedResponseTime: 1000,
		PredictedQuality:      0.9,
	}
	e.RecordResult(id, "user-1", "req-2", prediction, 0.01, 1000, 0.9)

	outcomes := e.Outcomes(id)
	if len(outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].CostAccuracy != 1 || outcomes[0].TimeAccuracy != 1 || outcomes[0].QualityAccuracy != 1 {
		t.Errorf("Expected perfect accuracy for exact prediction, got %+v", outcomes[0])
	}
}

func TestStopSignalOnMaxDuration(t *testing.T) {
	e := createTestEngine()

	def := createTestDefinition()
	def.MaxDuration = time.Hour
	id, err := e.Define(def)
	if err != nil {
		t.Fatalf("Define failed: %v", err)
	}
	if err := e.Start(id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if signals := e.StopSignals(); len(signals) != 0 {
		t.Errorf("Expected no signals before max duration, got %v", signals)
	}

	e.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	signals := e.StopSignals()
	if len(signals) != 1 || signals[0].TestID != id {
		t.Fatalf("Expected max-duration signal for %s, got %v", id, signals)
	}
}
