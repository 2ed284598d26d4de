package experiment

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/accuracy"
	"github.com/tributary-ai/llm-router-ml/internal/types"
)

// Status is the experiment lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Variant is one arm of an A/B experiment.
type Variant struct {
	Name     string  `json:"name"` // "A" or "B"
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Weight   float64 `json:"weight"`
}

// AutoStop holds the advisory stop thresholds. The engine never completes an
// experiment on its own; it only surfaces signals.
type AutoStop struct {
	Enabled              bool    `json:"enabled"`
	DegradationThreshold float64 `json:"degradation_threshold"` // primary-metric gap between variants
}

// Definition declares a two-variant experiment over a fraction of traffic.
type Definition struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	VariantA          Variant       `json:"variant_a"`
	VariantB          Variant       `json:"variant_b"`
	MinSampleSize     int           `json:"min_sample_size"`
	MaxDuration       time.Duration `json:"max_duration"`
	SignificanceLevel float64       `json:"significance_level"`
	TrafficAllocation float64       `json:"traffic_allocation"` // 0-1
	PrimaryMetric     string        `json:"primary_metric"`     // "cost", "response_time" or "quality"
	Status            Status        `json:"status"`
	AutoStop          AutoStop      `json:"auto_stop"`
	CreatedAt         time.Time     `json:"created_at"`
	StartedAt         time.Time     `json:"started_at,omitempty"`
	CompletedAt       time.Time     `json:"completed_at,omitempty"`
}

// Assignment is a user's sticky placement into an experiment variant.
type Assignment struct {
	TestID   string  `json:"test_id"`
	UserID   string  `json:"user_id"`
	Variant  Variant `json:"variant"`
	Assigned time.Time
}

// Outcome is one recorded result for an assigned request.
type Outcome struct {
	TestID          string    `json:"test_id"`
	Variant         string    `json:"variant"`
	UserID          string    `json:"user_id"`
	RequestID       string    `json:"request_id"`
	CostAccuracy    float64   `json:"cost_accuracy"`
	TimeAccuracy    float64   `json:"time_accuracy"`
	QualityAccuracy float64   `json:"quality_accuracy"`
	Timestamp       time.Time `json:"timestamp"`
}

// StopSignal is an advisory reason to complete a running experiment.
type StopSignal struct {
	TestID string `json:"test_id"`
	Reason string `json:"reason"`
}

type assignKey struct {
	testID string
	userID string
}

// Engine manages experiment definitions, sticky traffic assignment and
// outcome recording. Completion is always an explicit external call.
type Engine struct {
	mu          sync.RWMutex
	experiments map[string]*Definition
	assignments map[assignKey]*Assignment
	outcomes    map[string][]Outcome
	rng         *rand.Rand
	logger      *logrus.Logger
	now         func() time.Time
}

// NewEngine creates an experiment engine. The rand source is injected so
// weight draws are reproducible under test.
func NewEngine(rng *rand.Rand, logger *logrus.Logger) *Engine {
	return &Engine{
		experiments: make(map[string]*Definition),
		assignments: make(map[assignKey]*Assignment),
		outcomes:    make(map[string][]Outcome),
		rng:         rng,
		logger:      logger,
		now:         time.Now,
	}
}

// Define registers a draft experiment and returns its generated ID.
func (e *Engine) Define(def Definition) (string, error) {
	if def.TrafficAllocation < 0 || def.TrafficAllocation > 1 {
		return "", fmt.Errorf("traffic allocation %v out of range [0,1]", def.TrafficAllocation)
	}
	if def.VariantA.Weight <= 0 && def.VariantB.Weight <= 0 {
		return "", fmt.Errorf("experiment %q has no positive variant weight", def.Name)
	}

	def.ID = uuid.New().String()
	def.Status = StatusDraft
	def.CreatedAt = e.now()
	def.VariantA.Name = "A"
	def.VariantB.Name = "B"

	e.mu.Lock()
	e.experiments[def.ID] = &def
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"test_id": def.ID,
		"name":    def.Name,
	}).Info("Experiment defined")
	return def.ID, nil
}

// Start transitions a draft experiment to running.
func (e *Engine) Start(testID string) error {
	return e.transition(testID, StatusDraft, StatusRunning)
}

// Complete transitions a running experiment to completed. Existing sticky
// assignments are kept for outcome attribution but no new traffic enters.
func (e *Engine) Complete(testID string) error {
	return e.transition(testID, StatusRunning, StatusCompleted)
}

func (e *Engine) transition(testID string, from, to Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.experiments[testID]
	if !ok {
		return fmt.Errorf("unknown experiment %q", testID)
	}
	if def.Status != from {
		return fmt.Errorf("experiment %q is %s, expected %s", testID, def.Status, from)
	}

	def.Status = to
	switch to {
	case StatusRunning:
		def.StartedAt = e.now()
	case StatusCompleted:
		def.CompletedAt = e.now()
	}
	return nil
}

// List returns all experiments sorted by creation time.
func (e *Engine) List() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Definition, 0, len(e.experiments))
	for _, def := range e.experiments {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Participate checks the user against every running experiment in
// deterministic order and returns the first applicable assignment, or nil.
// A user already assigned to a running experiment always gets the same
// variant back.
func (e *Engine) Participate(userID string) *Assignment {
	if userID == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, def := range e.sortedRunning() {
		key := assignKey{testID: def.ID, userID: userID}
		if a, ok := e.assignments[key]; ok {
			return a
		}
		if hashUnit(def.ID+"|"+userID) >= def.TrafficAllocation {
			continue
		}

		a := &Assignment{
			TestID:   def.ID,
			UserID:   userID,
			Variant:  e.drawVariant(def),
			Assigned: e.now(),
		}
		e.assignments[key] = a

		e.logger.WithFields(logrus.Fields{
			"test_id": def.ID,
			"user_id": userID,
			"variant": a.Variant.Name,
		}).Debug("User assigned to experiment variant")
		return a
	}
	return nil
}

// GetAssignment looks up a sticky assignment by (testID, userID). It returns
// nil when the user was never placed into the experiment.
func (e *Engine) GetAssignment(testID, userID string) *Assignment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.assignments[assignKey{testID: testID, userID: userID}]
}

// RecordResult stores one outcome for an assigned request, scoring the
// prediction against the actuals. Calls for unassigned users are dropped.
func (e *Engine) RecordResult(testID, userID, requestID string, prediction *types.PredictionResult, actualCost, actualResponseTime, actualQuality float64) {
	a := e.GetAssignment(testID, userID)
	if a == nil {
		return
	}

	o := Outcome{
		TestID:    testID,
		Variant:   a.Variant.Name,
		UserID:    userID,
		RequestID: requestID,
		Timestamp: e.now(),
	}
	if prediction != nil {
		o.CostAccuracy = accuracy.Score(prediction.PredictedCost, actualCost)
		o.TimeAccuracy = accuracy.Score(prediction.PredictedResponseTime, actualResponseTime)
		o.QualityAccuracy = accuracy.Score(prediction.PredictedQuality, actualQuality)
	}

	e.mu.Lock()
	e.outcomes[testID] = append(e.outcomes[testID], o)
	e.mu.Unlock()
}

// StopSignals surfaces advisory completion reasons for running experiments:
// max duration elapsed, or both variants past the minimum sample size with
// the primary metric gapped beyond the auto-stop threshold. Callers decide
// whether to act.
func (e *Engine) StopSignals() []StopSignal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	var signals []StopSignal
	for _, def := range e.sortedRunning() {
		if def.MaxDuration > 0 && now.Sub(def.StartedAt) > def.MaxDuration {
			signals = append(signals, StopSignal{TestID: def.ID, Reason: "max duration elapsed"})
			continue
		}
		if !def.AutoStop.Enabled {
			continue
		}

		meanA, nA := e.variantMean(def, "A")
		meanB, nB := e.variantMean(def, "B")
		if nA < def.MinSampleSize || nB < def.MinSampleSize {
			continue
		}
		gap := meanA - meanB
		if gap < 0 {
			gap = -gap
		}
		if gap > def.AutoStop.DegradationThreshold {
			signals = append(signals, StopSignal{
				TestID: def.ID,
				Reason: fmt.Sprintf("%s accuracy gap %.3f exceeds auto-stop threshold", def.PrimaryMetric, gap),
			})
		}
	}
	return signals
}

// Outcomes returns the recorded outcomes for an experiment.
func (e *Engine) Outcomes(testID string) []Outcome {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Outcome, len(e.outcomes[testID]))
	copy(out, e.outcomes[testID])
	return out
}

// RunningCount reports how many experiments are currently running.
func (e *Engine) RunningCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	count := 0
	for _, def := range e.experiments {
		if def.Status == StatusRunning {
			count++
		}
	}
	return count
}

// sortedRunning returns running experiments ordered by ID. Callers must hold
// at least the read lock.
func (e *Engine) sortedRunning() []*Definition {
	var running []*Definition
	for _, def := range e.experiments {
		if def.Status == StatusRunning {
			running = append(running, def)
		}
	}
	sort.Slice(running, func(i, j int) bool { return running[i].ID < running[j].ID })
	return running
}

// drawVariant picks A or B by normalized weight using the injected source.
// Caller must hold the write lock.
func (e *Engine) drawVariant(def *Definition) Variant {
	total := def.VariantA.Weight + def.VariantB.Weight
	if e.rng.Float64()*total < def.VariantA.Weight {
		return def.VariantA
	}
	return def.VariantB
}

// variantMean averages the primary-metric accuracy over a variant's
// outcomes. Callers must hold at least the read lock.
func (e *Engine) variantMean(def *Definition, variant string) (float64, int) {
	var sum float64
	n := 0
	for _, o := range e.outcomes[def.ID] {
		if o.Variant != variant {
			continue
		}
		switch def.PrimaryMetric {
		case "cost":
			sum += o.CostAccuracy
		case "response_time":
			sum += o.TimeAccuracy
		default:
			sum += o.QualityAccuracy
		}
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// hashUnit maps a string to a stable value in [0,1) via FNV-1a.
func hashUnit(s string) float64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return float64(h.Sum64()>>11) / float64(1<<53)
}
