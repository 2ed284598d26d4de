package prediction

import (
	"time"
)

// historyCap bounds the number of retained entries per provider|model key.
const historyCap = 100

// HistoryEntry is one appended observation summary for a provider|model
// key. Entries are never mutated after being appended.
type HistoryEntry struct {
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	AvgResponseTime float64   `json:"avg_response_time"` // milliseconds
	AvgCost         float64   `json:"avg_cost"`          // USD
	QualityScore    float64   `json:"quality_score"`     // 0-1
	SuccessRate     float64   `json:"success_rate"`      // 0-1
	LastUpdated     time.Time `json:"last_updated"`
	SampleSize      int       `json:"sample_size"`
}

// historyRing is a fixed-capacity append-only ring. The capacity bound is an
// invariant of the type: Append evicts the oldest entry once full.
type historyRing struct {
	entries []HistoryEntry
}

func newHistoryRing() *historyRing {
	return &historyRing{entries: make([]HistoryEntry, 0, historyCap)}
}

func (r *historyRing) Append(e HistoryEntry) {
	if len(r.entries) >= historyCap {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:historyCap-1]
	}
	r.entries = append(r.entries, e)
}

func (r *historyRing) Len() int {
	return len(r.entries)
}

// Snapshot returns a copy of the retained entries, oldest first.
func (r *historyRing) Snapshot() []HistoryEntry {
	out := make([]HistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
