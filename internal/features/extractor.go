package features

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

const (
	maxUserHistory     = 50
	minPatternSamples  = 3
	patternWindowSize  = 10
	complexPatternMean = 0.5
)

// typeRule maps keywords to a request type. Rules are evaluated in order;
// the first match wins.
type typeRule struct {
	keywords []string
	reqType  types.RequestType
}

var typeRules = []typeRule{
	{[]string{"code", "function", "implement", "refactor"}, types.RequestTypeCodeGeneration},
	{[]string{"csv", "json", "parse", "transform", "dataset"}, types.RequestTypeDataProcessing},
	{[]string{"story", "poem", "creative", "write a"}, types.RequestTypeCreativeWriting},
	{[]string{"error", "bug", "fix", "not working", "troubleshoot"}, types.RequestTypeTechnicalSupport},
	{[]string{"analyze", "compare", "evaluate", "assess"}, types.RequestTypeComplexAnalysis},
}

// Extractor derives RequestFeatures from requests and keeps a short per-user
// feature history for pattern clustering. It is the only writer of that
// history.
type Extractor struct {
	mu      sync.RWMutex
	history map[string][]types.RequestFeatures
	logger  *logrus.Logger
	now     func() time.Time
}

// NewExtractor creates a feature extractor.
func NewExtractor(logger *logrus.Logger) *Extractor {
	return &Extractor{
		history: make(map[string][]types.RequestFeatures),
		logger:  logger,
		now:     time.Now,
	}
}

// Extract derives the feature vector for a request and records it in the
// user's recent-feature history (FIFO, capped at 50 entries).
func (e *Extractor) Extract(req *types.AIRequest, userID string) types.RequestFeatures {
	now := e.now()
	text := concatenateContent(req.Messages)
	lower := strings.ToLower(text)

	f := types.RequestFeatures{
		PromptLength:     len(text),
		MessageCount:     len(req.Messages),
		HasSystemMessage: hasSystemMessage(req.Messages),
		ComplexityScore:  complexityScore(req, lower),
		RequestType:      classify(lower),
		TimeOfDay:        now.Hour(),
		DayOfWeek:        int(now.Weekday()),
	}

	if userID != "" {
		f.UserPatternID = e.userPattern(userID)
		e.record(userID, f)
	}

	e.logger.WithFields(logrus.Fields{
		"request_type": f.RequestType,
		"complexity":   f.ComplexityScore,
		"messages":     f.MessageCount,
	}).Debug("Request features extracted")

	return f
}

// UserPattern returns the current pattern analysis for a user, or nil when
// fewer than the minimum number of records exist.
func (e *Extractor) UserPattern(userID string) *types.UserPatternAnalysis {
	e.mu.RLock()
	defer e.mu.RUnlock()

	records := e.history[userID]
	if len(records) < minPatternSamples {
		return nil
	}

	window := lastN(records, patternWindowSize)
	dominant, meanComplexity := summarize(window)

	return &types.UserPatternAnalysis{
		UserID:            userID,
		PatternID:         patternID(dominant, meanComplexity),
		DominantType:      dominant,
		AverageComplexity: meanComplexity,
		SampleSize:        len(records),
	}
}

// userPattern computes the pattern cluster from prior records only.
func (e *Extractor) userPattern(userID string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	records := e.history[userID]
	if len(records) < minPatternSamples {
		return ""
	}

	dominant, meanComplexity := summarize(lastN(records, patternWindowSize))
	return patternID(dominant, meanComplexity)
}

func (e *Extractor) record(userID string, f types.RequestFeatures) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records := append(e.history[userID], f)
	if len(records) > maxUserHistory {
		records = records[len(records)-maxUserHistory:]
	}
	e.history[userID] = records
}

func patternID(dominant types.RequestType, meanComplexity float64) string {
	suffix := "_simple"
	if meanComplexity > complexPatternMean {
		suffix = "_complex"
	}
	return string(dominant) + suffix
}

func summarize(window []types.RequestFeatures) (types.RequestType, float64) {
	counts := make(map[types.RequestType]int)
	var sum float64
	for _, r := range window {
		counts[r.RequestType]++
		sum += r.ComplexityScore
	}

	dominant := types.RequestTypeSimpleChat
	best := 0
	for _, r := range window {
		// Iterate in window order so ties resolve to the earliest type seen.
		if counts[r.RequestType] > best {
			best = counts[r.RequestType]
			dominant = r.RequestType
		}
	}

	return dominant, sum / float64(len(window))
}

// complexityScore computes the clamped [0,1] weighted complexity sum.
func complexityScore(req *types.AIRequest, lower string) float64 {
	score := 0.1 * float64(len(req.Messages))

	if req.MaxTokens != nil {
		score += float64(*req.MaxTokens) / 1000.0
	}
	score += float64(len(req.Tools))

	if containsAny(lower, "analyze", "compare") {
		score += 0.3
	}
	if containsAny(lower, "code", "function") {
		score += 0.4
	}
	if containsAny(lower, "explain", "detail") {
		score += 0.2
	}
	if len(lower) > 1000 {
		score += 0.3
	}

	return clamp01(score)
}

func classify(lower string) types.RequestType {
	for _, rule := range typeRules {
		if containsAny(lower, rule.keywords...) {
			return rule.reqType
		}
	}
	return types.RequestTypeSimpleChat
}

func concatenateContent(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
	}
	return b.String()
}

func hasSystemMessage(messages []types.Message) bool {
	for _, m := range messages {
		if m.Role == "system" {
			return true
		}
	}
	return false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lastN(records []types.RequestFeatures, n int) []types.RequestFeatures {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
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
