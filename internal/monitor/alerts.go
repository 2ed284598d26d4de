package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

const (
	alertCap  = 1000
	alertTrim = 500
)

type cooldownKey struct {
	alertType types.AlertType
	key       string
}

// AlertLog is the bounded, cooldown-guarded alert store shared by the
// performance and accuracy monitors.
type AlertLog struct {
	mu            sync.Mutex
	alerts        []types.Alert
	lastFire      map[cooldownKey]time.Time
	cooldown      time.Duration
	typeCooldowns map[types.AlertType]time.Duration
	logger        *logrus.Logger
	now           func() time.Time
}

// NewAlertLog creates an alert log with the given per-(type, key) cooldown.
func NewAlertLog(cooldown time.Duration, logger *logrus.Logger) *AlertLog {
	return &AlertLog{
		lastFire:      make(map[cooldownKey]time.Time),
		cooldown:      cooldown,
		typeCooldowns: make(map[types.AlertType]time.Duration),
		logger:        logger,
		now:           time.Now,
	}
}

// SetTypeCooldown overrides the cooldown for one alert type. Accuracy
// degradation and drift fire on a slower cadence than serving alerts.
func (l *AlertLog) SetTypeCooldown(alertType types.AlertType, cooldown time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.typeCooldowns[alertType] = cooldown
}

// Raise appends an alert unless one of the same (type, key) fired within the
// cooldown window. The log never exceeds its capacity: past it, only the
// most recent half is retained.
func (l *AlertLog) Raise(alertType types.AlertType, key string, severity types.AlertSeverity, message string, value, threshold float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cooldown := l.cooldown
	if override, ok := l.typeCooldowns[alertType]; ok {
		cooldown = override
	}
	ck := cooldownKey{alertType: alertType, key: key}
	if last, ok := l.lastFire[ck]; ok && now.Sub(last) < cooldown {
		return
	}
	l.lastFire[ck] = now

	alert := types.Alert{
		ID:        uuid.New().String(),
		Timestamp: now,
		Type:      alertType,
		Key:       key,
		Severity:  severity,
		Message:   message,
		Value:     value,
		Threshold: threshold,
	}
	l.alerts = append(l.alerts, alert)
	if len(l.alerts) > alertCap {
		l.alerts = append([]types.Alert(nil), l.alerts[len(l.alerts)-alertTrim:]...)
	}

	l.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"type":     alertType,
		"key":      key,
		"severity": severity,
		"value":    value,
	}).Warn(message)
}

// Alerts returns alerts newest-first, optionally only unresolved ones.
func (l *AlertLog) Alerts(unresolvedOnly bool) []types.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Alert, 0, len(l.alerts))
	for i := len(l.alerts) - 1; i >= 0; i-- {
		if unresolvedOnly && l.alerts[i].Resolved {
			continue
		}
		out = append(out, l.alerts[i])
	}
	return out
}

// Resolve marks an alert resolved by ID.
func (l *AlertLog) Resolve(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.alerts {
		if l.alerts[i].ID == id {
			l.alerts[i].Resolved = true
			return true
		}
	}
	return false
}

// UnresolvedCount reports how many alerts are still open.
func (l *AlertLog) UnresolvedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for i := range l.alerts {
		if !l.alerts[i].Resolved {
			count++
		}
	}
	return count
}
