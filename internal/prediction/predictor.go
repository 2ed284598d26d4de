package prediction

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/catalog"
	"github.com/tributary-ai/llm-router-ml/internal/types"
)

const (
	// minSamples is the history size below which predictions fall back to
	// the static baseline table.
	minSamples = 5

	// historyMaxAge excludes entries older than this from the weighted
	// average.
	historyMaxAge = 7 * 24 * time.Hour

	// minEntrySamples excludes low-evidence entries from the weighted
	// average.
	minEntrySamples = 2

	baselineConfidence = 0.5
)

// aggregate carries the running per-key sums used to derive each appended
// history entry.
type aggregate struct {
	count     int
	successes int
	costSum   float64
	timeSum   float64
	qualSum   float64
}

// Predictor estimates cost, latency and quality for (provider, model) pairs
// from recency-weighted history, with a baseline fallback. Predict never
// fails: with insufficient data it returns the baseline estimate.
type Predictor struct {
	mu         sync.RWMutex
	history    map[string]*historyRing
	aggregates map[string]*aggregate
	catalog    *catalog.Catalog
	logger     *logrus.Logger
	now        func() time.Time
}

// NewPredictor creates a predictor backed by the given catalog's baselines.
func NewPredictor(cat *catalog.Catalog, logger *logrus.Logger) *Predictor {
	return &Predictor{
		history:    make(map[string]*historyRing),
		aggregates: make(map[string]*aggregate),
		catalog:    cat,
		logger:     logger,
		now:        time.Now,
	}
}

// Key builds the canonical provider|model history key.
func Key(provider, model string) string {
	return provider + "|" + model
}

// Observe folds one ground-truth observation into the key's running
// aggregate and appends a new history entry carrying the cumulative
// averages. The per-key ring never exceeds its capacity.
func (p *Predictor) Observe(provider, model string, cost, responseTime, quality float64, success bool) {
	key := Key(provider, model)

	p.mu.Lock()
	defer p.mu.Unlock()

	agg := p.aggregates[key]
	if agg == nil {
		agg = &aggregate{}
		p.aggregates[key] = agg
	}
	agg.count++
	agg.costSum += cost
	agg.timeSum += responseTime
	agg.qualSum += quality
	if success {
		agg.successes++
	}

	ring := p.history[key]
	if ring == nil {
		ring = newHistoryRing()
		p.history[key] = ring
	}

	n := float64(agg.count)
	ring.Append(HistoryEntry{
		Provider:        provider,
		Model:           model,
		AvgResponseTime: agg.timeSum / n,
		AvgCost:         agg.costSum / n,
		QualityScore:    agg.qualSum / n,
		SuccessRate:     float64(agg.successes) / n,
		LastUpdated:     p.now(),
		SampleSize:      agg.count,
	})
}

// Predict estimates performance for one (provider, model) pair.
func (p *Predictor) Predict(f types.RequestFeatures, provider, model string) types.PredictionResult {
	p.mu.RLock()
	ring := p.history[Key(provider, model)]
	var entries []HistoryEntry
	if ring != nil {
		entries = ring.Snapshot()
	}
	p.mu.RUnlock()

	if len(entries) < minSamples {
		return p.baseline(f, provider, model)
	}

	now := p.now()
	var recent []HistoryEntry
	for _, e := range entries {
		if now.Sub(e.LastUpdated) <= historyMaxAge && e.SampleSize >= minEntrySamples {
			recent = append(recent, e)
		}
	}
	if len(recent) == 0 {
		return p.baseline(f, provider, model)
	}

	var weightSum, costSum, timeSum, qualSum, recencySum float64
	for _, e := range recent {
		ageDays := now.Sub(e.LastUpdated).Hours() / 24
		w := 1.0 / (1.0 + ageDays)
		weightSum += w
		costSum += w * e.AvgCost
		timeSum += w * e.AvgResponseTime
		qualSum += w * e.QualityScore
		recencySum += math.Max(0, 1.0-ageDays/14.0)
	}

	c := f.ComplexityScore
	cost := (costSum / weightSum) * (1 + 0.3*c)
	responseTime := (timeSum / weightSum) * (1 + 0.3*c)
	quality := math.Min(1, (qualSum/weightSum)*(1+0.1*c))

	sampleConfidence := math.Min(1, float64(len(recent))/10.0)
	recencyConfidence := recencySum / float64(len(recent))
	confidence := 0.6*sampleConfidence + 0.4*recencyConfidence

	return types.PredictionResult{
		Provider:              provider,
		Model:                 model,
		PredictedCost:         cost,
		PredictedResponseTime: responseTime,
		PredictedQuality:      quality,
		Confidence:            confidence,
		Reasoning: fmt.Sprintf("recency-weighted average over %d history entries (confidence %.0f%%)",
			len(recent), confidence*100),
	}
}

// PredictAll expands each provider to its fixed model list, predicts every
// pair and returns the results sorted by descending confidence.
func (p *Predictor) PredictAll(f types.RequestFeatures, providers []string) []types.PredictionResult {
	var results []types.PredictionResult
	for _, provider := range providers {
		for _, m := range p.catalog.Models(provider) {
			results = append(results, p.Predict(f, provider, m.Model))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// HistoryLen reports the retained entry count for a key.
func (p *Predictor) HistoryLen(provider, model string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ring := p.history[Key(provider, model)]
	if ring == nil {
		return 0
	}
	return ring.Len()
}

// baseline returns the static-table estimate scaled by request complexity.
func (p *Predictor) baseline(f types.RequestFeatures, provider, model string) types.PredictionResult {
	b := p.catalog.Baseline(provider, model)
	scale := 1 + f.ComplexityScore

	p.logger.WithFields(logrus.Fields{
		"provider": provider,
		"model":    model,
	}).Debug("Using baseline estimate, insufficient history")

	return types.PredictionResult{
		Provider:              provider,
		Model:                 model,
		PredictedCost:         b.Cost * scale,
		PredictedResponseTime: b.ResponseTime * scale,
		PredictedQuality:      b.Quality,
		Confidence:            baselineConfidence,
		Reasoning:             "baseline estimate, insufficient history for " + provider + "/" + model,
	}
}
