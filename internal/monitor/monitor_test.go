package monitor

import (
	"fmt"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

var testTime = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func createTestMonitor(cfg Config) (*Monitor, *AlertLog) {
	logger := testLogger()
	alerts := NewAlertLog(time.Minute, logger)
	alerts.now = func() time.Time { return testTime }

	m := NewMonitor(cfg, alerts, rand.New(rand.NewSource(7)), logger)
	m.now = func() time.Time { return testTime }
	return m, alerts
}

func uniformConfig() Config {
	cfg := DefaultConfig()
	cfg.SamplingStrategy = "uniform"
	cfg.BaseSamplingRate = 1.0
	return cfg
}

func successMetric(responseTime float64) RequestMetric {
	return RequestMetric{
		Timestamp:    testTime,
		Provider:     "openai",
		Model:        "gpt-4o",
		ResponseTime: responseTime,
		Success:      true,
	}
}

func TestPercentileScenario(t *testing.T) {
	m, _ := createTestMonitor(uniformConfig())

	for _, rt := range []float64{1000, 1500, 2000, 2500, 3000} {
		m.Record(successMetric(rt))
	}
	m.drain()

	snap := m.Snapshot()
	if snap.TotalRequests != 5 {
		t.Errorf("Expected 5 total requests, got %d", snap.TotalRequests)
	}
	if snap.ErrorRate != 0 {
		t.Errorf("Expected error rate 0, got %v", snap.ErrorRate)
	}
	if snap.AvgResponseTime != 2000 {
		t.Errorf("Expected avg 2000, got %v", snap.AvgResponseTime)
	}
	if snap.P50ResponseTime != 2000 {
		t.Errorf("Expected p50 2000, got %v", snap.P50ResponseTime)
	}
	if snap.P95ResponseTime != 3000 {
		t.Errorf("Expected p95 3000, got %v", snap.P95ResponseTime)
	}
	if snap.P99ResponseTime != 3000 {
		t.Errorf("Expected p99 3000, got %v", snap.P99ResponseTime)
	}
}

func TestPercentilesNonDecreasing(t *testing.T) {
	m, _ := createTestMonitor(uniformConfig())

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 500; i++ {
		m.Record(successMetric(float64(rng.Intn(5000)) + 1))
		if i%100 == 99 {
			m.drain()
		}
	}
	m.drain()

	snap := m.Snapshot()
	if snap.P50ResponseTime > snap.P95ResponseTime || snap.P95ResponseTime > snap.P99ResponseTime {
		t.Errorf("Percentiles not monotone: p50=%v p95=%v p99=%v",
			snap.P50ResponseTime, snap.P95ResponseTime, snap.P99ResponseTime)
	}
}

func TestErrorsAlwaysSampled(t *testing.T) {
	cfg := uniformConfig()
	cfg.BaseSamplingRate = 0.1
	m, _ := createTestMonitor(cfg)

	for i := 0; i < 1000; i++ {
		metric := successMetric(500)
		metric.Success = false
		metric.ErrorMessage = "provider error"
		m.Record(metric)
	}
	for i := 0; i < 2; i++ {
		m.drain()
	}

	if got := m.StoreLen(); got != 1000 {
		t.Errorf("Expected all 1000 error metrics recorded, got %d", got)
	}
}

func TestSlowRequestsAlwaysSampled(t *testing.T) {
	cfg := uniformConfig()
	cfg.BaseSamplingRate = 0.0000001
	cfg.SlowRequestThreshold = 2000
	m, _ := createTestMonitor(cfg)

	for i := 0; i < 100; i++ {
		m.Record(successMetric(2500))
	}
	m.drain()

	if got := m.StoreLen(); got != 100 {
		t.Errorf("Expected all 100 slow metrics recorded, got %d", got)
	}
}

func TestDrainBatchBounded(t *testing.T) {
	m, _ := createTestMonitor(uniformConfig())

	for i := 0; i < drainBatch+500; i++ {
		m.Record(successMetric(100))
	}

	m.drain()
	if got := m.StoreLen(); got != drainBatch {
		t.Errorf("Expected one drain to move %d metrics, got %d", drainBatch, got)
	}

	m.drain()
	if got := m.StoreLen(); got != drainBatch+500 {
		t.Errorf("Expected second drain to move the remainder, got %d", got)
	}
}

func TestLatencySpikeAlertSeverity(t *testing.T) {
	cfg := uniformConfig()
	cfg.MaxResponseTime = 3000
	cfg.SlowRequestThreshold = 3000
	m, alerts := createTestMonitor(cfg)

	m.Record(successMetric(4000))
	raised := alerts.Alerts(false)
	if len(raised) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(raised))
	}
	if raised[0].Type != types.AlertLatencySpike {
		t.Errorf("Expected latency_spike, got %s", raised[0].Type)
	}
	if raised[0].Severity != types.SeverityHigh {
		t.Errorf("Expected high severity below 2x threshold, got %s", raised[0].Severity)
	}

	// Past the cooldown, a >2x breach upgrades to critical.
	alerts.now = func() time.Time { return testTime.Add(2 * time.Minute) }
	m.Record(successMetric(7000))

	raised = alerts.Alerts(false)
	if len(raised) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(raised))
	}
	if raised[0].Severity != types.SeverityCritical {
		t.Errorf("Expected critical severity above 2x threshold, got %s", raised[0].Severity)
	}
}

func TestErrorRateAlert(t *testing.T) {
	cfg := uniformConfig()
	cfg.MaxErrorRate = 0.1
	m, alerts := createTestMonitor(cfg)

	for i := 0; i < 10; i++ {
		metric := successMetric(500)
		metric.Success = i%2 == 0 // 50% errors
		if metric.Success {
			m.Record(metric)
		} else {
			metric.ErrorMessage = "boom"
			m.Record(metric)
		}
	}
	m.drain()

	found := false
	for _, a := range alerts.Alerts(false) {
		if a.Type == types.AlertErrorRateHigh {
			found = true
			if a.Severity != types.SeverityCritical {
				t.Errorf("Expected critical severity at 5x the threshold, got %s", a.Severity)
			}
		}
	}
	if !found {
		t.Error("Expected an error_rate_high alert")
	}
}

func TestHealthyScenario(t *testing.T) {
	cfg := uniformConfig()
	cfg.MaxResponseTime = 3000
	cfg.MaxErrorRate = 0.1
	m, _ := createTestMonitor(cfg)

	for i := 0; i < 10; i++ {
		m.Record(successMetric(1000))
	}
	m.drain()

	health := m.Health()
	if health.Status != "healthy" {
		t.Errorf("Expected healthy status, got %s", health.Status)
	}
	if health.Score <= 85 {
		t.Errorf("Expected score above 85, got %v", health.Score)
	}
	if len(health.Issues) != 0 {
		t.Errorf("Expected no issues, got %v", health.Issues)
	}
}

func TestHealthPenalties(t *testing.T) {
	cfg := uniformConfig()
	cfg.MaxResponseTime = 500
	cfg.MaxErrorRate = 0.01
	cfg.SlowRequestThreshold = 500
	m, _ := createTestMonitor(cfg)

	for i := 0; i < 10; i++ {
		metric := successMetric(2000)
		metric.Success = false
		metric.ErrorMessage = "boom"
		m.Record(metric)
	}
	m.drain()

	health := m.Health()
	// Response time (-20) and error rate (-25) both breached.
	if health.Score != 55 {
		t.Errorf("Expected score 55, got %v", health.Score)
	}
	if health.Status != "critical" {
		t.Errorf("Expected critical status below 70, got %s", health.Status)
	}
	if len(health.Issues) != 2 {
		t.Errorf("Expected 2 issues, got %v", health.Issues)
	}
}

func TestRoutingStatsAffectHealth(t *testing.T) {
	cfg := uniformConfig()
	cfg.MinRoutingAccuracy = 0.7
	cfg.MaxRoutingLatency = 50
	m, _ := createTestMonitor(cfg)

	// Without routing stats the checks are skipped.
	if health := m.Health(); health.Score != 100 {
		t.Errorf("Expected perfect score with no data, got %v", health.Score)
	}

	m.SetRoutingStats(0.5, 80, 0.8)
	health := m.Health()
	// Routing accuracy (-15) and routing latency (-10).
	if health.Score != 75 {
		t.Errorf("Expected score 75, got %v", health.Score)
	}
	if health.Status != "warning" {
		t.Errorf("Expected warning status, got %s", health.Status)
	}
}

func TestProviderDistributionSumsToOne(t *testing.T) {
	m, _ := createTestMonitor(uniformConfig())

	for i := 0; i < 6; i++ {
		metric := successMetric(500)
		if i < 4 {
			metric.Provider = "openai"
		} else {
			metric.Provider = "anthropic"
		}
		m.Record(metric)
	}
	m.drain()

	snap := m.Snapshot()
	var sum float64
	for _, frac := range snap.ProviderDistribution {
		sum += frac
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("Expected distribution to sum to 1, got %v", sum)
	}
	if snap.ProviderDistribution["openai"] < 0.66 {
		t.Errorf("Expected openai majority share, got %v", snap.ProviderDistribution["openai"])
	}
}

func TestSnapshotRetention(t *testing.T) {
	cfg := uniformConfig()
	cfg.SnapshotRetention = 7 * 24 * time.Hour
	m, _ := createTestMonitor(cfg)

	m.takeSnapshot()

	// Eight days later, the old snapshot falls out of retention.
	m.now = func() time.Time { return testTime.Add(8 * 24 * time.Hour) }
	m.takeSnapshot()

	trends := m.Trends(30 * 24 * time.Hour)
	if len(trends) != 1 {
		t.Errorf("Expected 1 retained snapshot, got %d", len(trends))
	}
}

func TestTrendsWindow(t *testing.T) {
	m, _ := createTestMonitor(uniformConfig())

	m.takeSnapshot()
	m.now = func() time.Time { return testTime.Add(2 * time.Hour) }
	m.takeSnapshot()

	if got := len(m.Trends(time.Hour)); got != 1 {
		t.Errorf("Expected 1 snapshot within the last hour, got %d", got)
	}
	if got := len(m.Trends(24 * time.Hour)); got != 2 {
		t.Errorf("Expected 2 snapshots within the last day, got %d", got)
	}
}

func TestStartStop(t *testing.T) {
	cfg := uniformConfig()
	cfg.DrainInterval = 5 * time.Millisecond
	cfg.SnapshotInterval = time.Hour
	cfg.ResourceInterval = time.Hour
	logger := testLogger()
	alerts := NewAlertLog(time.Minute, logger)
	m := NewMonitor(cfg, alerts, rand.New(rand.NewSource(7)), logger)

	m.Start()
	m.Record(RequestMetric{Provider: "openai", Model: "gpt-4o", ResponseTime: 100, Success: true})
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	if got := m.StoreLen(); got != 1 {
		t.Errorf("Expected the background drain to move the metric, got store length %d", got)
	}

	// Stop is idempotent.
	m.Stop()
}

func TestQueueBounded(t *testing.T) {
	m, _ := createTestMonitor(uniformConfig())

	for i := 0; i < queueCap+100; i++ {
		m.Record(successMetric(100))
	}

	if got := m.Dropped(); got != 100 {
		t.Errorf("Expected 100 dropped metrics, got %d", got)
	}
}

func TestAlertLogCapped(t *testing.T) {
	logger := testLogger()
	l := NewAlertLog(0, logger)

	for i := 0; i < alertCap+1; i++ {
		l.Raise(types.AlertLatencySpike, fmt.Sprintf("key-%d", i), types.SeverityHigh, "spike", 1, 1)
	}

	got := len(l.Alerts(false))
	if got > alertCap {
		t.Errorf("Expected alert list bounded by %d, got %d", alertCap, got)
	}
	if got != alertTrim {
		t.Errorf("Expected trim to %d after overflow, got %d", alertTrim, got)
	}
}

func TestAlertCooldownSuppressesDuplicates(t *testing.T) {
	logger := testLogger()
	l := NewAlertLog(time.Minute, logger)
	l.now = func() time.Time { return testTime }

	l.Raise(types.AlertLatencySpike, "openai|gpt-4o", types.SeverityHigh, "spike", 4000, 3000)
	l.Raise(types.AlertLatencySpike, "openai|gpt-4o", types.SeverityHigh, "spike", 4100, 3000)

	if got := len(l.Alerts(false)); got != 1 {
		t.Errorf("Expected duplicate suppressed within cooldown, got %d alerts", got)
	}

	// A different key is not suppressed.
	l.Raise(types.AlertLatencySpike, "anthropic|claude-3-haiku-20240307", types.SeverityHigh, "spike", 4000, 3000)
	if got := len(l.Alerts(false)); got != 2 {
		t.Errorf("Expected different key to alert, got %d", got)
	}

	// Past the cooldown the same key alerts again.
	l.now = func() time.Time { return testTime.Add(2 * time.Minute) }
	l.Raise(types.AlertLatencySpike, "openai|gpt-4o", types.SeverityHigh, "spike", 4200, 3000)
	if got := len(l.Alerts(false)); got != 3 {
		t.Errorf("Expected alert after cooldown, got %d", got)
	}
}

func TestTypeCooldownOverride(t *testing.T) {
	logger := testLogger()
	l := NewAlertLog(time.Minute, logger)
	l.SetTypeCooldown(types.AlertAccuracyDegradation, 5*time.Minute)
	l.now = func() time.Time { return testTime }

	l.Raise(types.AlertAccuracyDegradation, "openai|gpt-4o", types.SeverityMedium, "accuracy drop", 0.6, 0.8)
	l.Raise(types.AlertLatencySpike, "openai|gpt-4o", types.SeverityHigh, "spike", 4000, 3000)

	// Two minutes in: the default cooldown has elapsed but the override
	// has not, so only the latency alert fires again.
	l.now = func() time.Time { return testTime.Add(2 * time.Minute) }
	l.Raise(types.AlertAccuracyDegradation, "openai|gpt-4o", types.SeverityMedium, "accuracy drop", 0.55, 0.8)
	l.Raise(types.AlertLatencySpike, "openai|gpt-4o", types.SeverityHigh, "spike", 4100, 3000)
	if got := len(l.Alerts(false)); got != 3 {
		t.Errorf("Expected accuracy alert suppressed by longer cooldown, got %d alerts", got)
	}

	// Past the override the accuracy alert fires again.
	l.now = func() time.Time { return testTime.Add(6 * time.Minute) }
	l.Raise(types.AlertAccuracyDegradation, "openai|gpt-4o", types.SeverityMedium, "accuracy drop", 0.5, 0.8)
	if got := len(l.Alerts(false)); got != 4 {
		t.Errorf("Expected accuracy alert after its cooldown, got %d", got)
	}
}

func TestResolveAlert(t *testing.T) {
	logger := testLogger()
	l := NewAlertLog(0, logger)

	l.Raise(types.AlertErrorRateHigh, "global", types.SeverityHigh, "errors", 0.5, 0.1)
	alert := l.Alerts(false)[0]

	if !l.Resolve(alert.ID) {
		t.Fatal("Expected resolve to succeed")
	}
	if got := len(l.Alerts(true)); got != 0 {
		t.Errorf("Expected no unresolved alerts, got %d", got)
	}
	if l.Resolve("nonexistent") {
		t.Error("Expected resolve to fail for unknown ID")
	}
	if l.UnresolvedCount() != 0 {
		t.Errorf("Expected unresolved count 0, got %d", l.UnresolvedCount())
	}
}

func TestAdaptiveSamplingRate(t *testing.T) {
	s := AdaptiveSampling{BaseRate: 0.5, HighVolumeThreshold: 100}

	if got := s.Rate(50); got != 0.5 {
		t.Errorf("Expected base rate below threshold, got %v", got)
	}
	if got := s.Rate(200); got != 0.25 {
		t.Errorf("Expected rate 0.25 at 2x threshold, got %v", got)
	}
	// Rate never exceeds base and floors at 0.1.
	for _, rps := range []float64{0, 10, 100, 1000, 100000} {
		got := s.Rate(rps)
		if got > s.BaseRate {
			t.Errorf("Rate %v exceeds base rate at rps=%v", got, rps)
		}
		if rps > s.HighVolumeThreshold && got < 0.1 {
			t.Errorf("Rate %v below floor at rps=%v", got, rps)
		}
	}
}

func TestTieredSamplingRate(t *testing.T) {
	s := TieredSampling{BaseRate: 0.8}

	tests := []struct {
		rps      float64
		expected float64
	}{
		{50, 0.8},
		{150, 0.10},
		{600, 0.05},
		{1500, 0.01},
	}
	for _, tt := range tests {
		if got := s.Rate(tt.rps); got != tt.expected {
			t.Errorf("Rate(%v) = %v, expected %v", tt.rps, got, tt.expected)
		}
	}
}

func TestStrategyForUnknownFallsBackToUniform(t *testing.T) {
	s := StrategyFor("mystery", 0.3, 100)
	if s.Name() != "uniform" {
		t.Errorf("Expected uniform fallback, got %s", s.Name())
	}
	if got := s.Rate(99999); got != 0.3 {
		t.Errorf("Expected fixed base rate, got %v", got)
	}
}
