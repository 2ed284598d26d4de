package monitor

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/types"
)

const (
	// queueCap bounds the intake queue; metrics past it are dropped.
	queueCap = 10000

	// drainBatch caps how many queued metrics one drain pass processes.
	drainBatch = 1000

	// storeCap/storeTrim bound the main metric store.
	storeCap  = 100000
	storeTrim = 50000

	// responseCap/responseTrim bound the percentile sample.
	responseCap  = 10000
	responseTrim = 5000

	// bucketCount is five minutes of per-second traffic buckets, enough
	// for both the 1-minute RPS window and the 5-minute error rate.
	bucketCount = 300
)

// Config holds the monitor's thresholds, sampling setup and timer intervals.
type Config struct {
	MaxResponseTime      float64 `yaml:"max_response_time"` // milliseconds
	MaxErrorRate         float64 `yaml:"max_error_rate"`    // 0-1
	MaxMemoryMB          float64 `yaml:"max_memory_mb"`
	MinThroughput        float64 `yaml:"min_throughput"` // RPS; 0 disables the check
	MinRoutingAccuracy   float64 `yaml:"min_routing_accuracy"`
	MaxRoutingLatency    float64 `yaml:"max_routing_latency"`    // milliseconds
	SlowRequestThreshold float64 `yaml:"slow_request_threshold"` // milliseconds; always sampled above

	SamplingStrategy    string  `yaml:"sampling_strategy"` // uniform, adaptive, tiered
	BaseSamplingRate    float64 `yaml:"base_sampling_rate"`
	HighVolumeThreshold float64 `yaml:"high_volume_threshold"` // RPS

	DrainInterval     time.Duration `yaml:"drain_interval"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	ResourceInterval  time.Duration `yaml:"resource_interval"`
	SnapshotRetention time.Duration `yaml:"snapshot_retention"`
}

// DefaultConfig returns the standard thresholds and intervals.
func DefaultConfig() Config {
	return Config{
		MaxResponseTime:      3000,
		MaxErrorRate:         0.1,
		MaxMemoryMB:          1024,
		MinThroughput:        0,
		MinRoutingAccuracy:   0.7,
		MaxRoutingLatency:    50,
		SlowRequestThreshold: 3000,
		SamplingStrategy:     "adaptive",
		BaseSamplingRate:     1.0,
		HighVolumeThreshold:  100,
		DrainInterval:        time.Second,
		SnapshotInterval:     time.Minute,
		ResourceInterval:     time.Minute,
		SnapshotRetention:    7 * 24 * time.Hour,
	}
}

// RequestMetric is one routed-request observation fed into the monitor.
type RequestMetric struct {
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	ResponseTime float64   `json:"response_time"` // milliseconds
	Success      bool      `json:"success"`
	Timeout      bool      `json:"timeout"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// secondBucket counts one second of traffic. Buckets are reused modulo the
// window size; a stale sec value means the bucket belongs to an old lap.
type secondBucket struct {
	sec      int64
	requests int
	errors   int
}

// Monitor is the telemetry pipeline: sampled intake into a bounded queue,
// batch drains into a bounded store, rolling percentiles, per-second traffic
// buckets, health scoring, threshold alerts and periodic snapshots. Start
// launches the timers; Stop shuts them down.
type Monitor struct {
	mu       sync.Mutex
	cfg      Config
	strategy SamplingStrategy
	alerts   *AlertLog
	logger   *logrus.Logger
	rng      *rand.Rand
	now      func() time.Time

	queue          []RequestMetric
	dropped        int64
	store          []RequestMetric
	responseTimes  []float64
	buckets        [bucketCount]secondBucket
	totalRequests  int64
	totalErrors    int64
	totalTimeouts  int64
	providerCounts map[string]int64
	snapshots      []types.PerformanceSnapshot

	memoryMB             float64
	routingAccuracy      float64
	routingLatency       float64
	predictionConfidence float64
	hasRoutingStats      bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a performance monitor. The rand source drives sampling
// draws and is injected for reproducibility.
func NewMonitor(cfg Config, alerts *AlertLog, rng *rand.Rand, logger *logrus.Logger) *Monitor {
	return &Monitor{
		cfg:            cfg,
		strategy:       StrategyFor(cfg.SamplingStrategy, cfg.BaseSamplingRate, cfg.HighVolumeThreshold),
		alerts:         alerts,
		logger:         logger,
		rng:            rng,
		now:            time.Now,
		providerCounts: make(map[string]int64),
		done:           make(chan struct{}),
	}
}

// Start launches the drain, snapshot and resource timers.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.logger.WithFields(logrus.Fields{
		"strategy":          m.strategy.Name(),
		"drain_interval":    m.cfg.DrainInterval,
		"snapshot_interval": m.cfg.SnapshotInterval,
	}).Info("Performance monitor started")
}

// Stop shuts the timers down and waits for the run loop to exit. Safe to
// call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	drain := time.NewTicker(m.cfg.DrainInterval)
	snapshot := time.NewTicker(m.cfg.SnapshotInterval)
	resource := time.NewTicker(m.cfg.ResourceInterval)
	defer drain.Stop()
	defer snapshot.Stop()
	defer resource.Stop()

	for {
		select {
		case <-drain.C:
			m.drain()
		case <-snapshot.C:
			m.takeSnapshot()
		case <-resource.C:
			m.sampleResources()
		case <-m.done:
			m.drain()
			return
		}
	}
}

// Record ingests one request observation. Every request counts toward
// traffic and error totals; only sampled ones enter the detail queue.
// Errors and slow requests are always sampled.
func (m *Monitor) Record(metric RequestMetric) {
	if metric.Timestamp.IsZero() {
		metric.Timestamp = m.now()
	}

	m.mu.Lock()
	m.bump(metric)
	rps := m.rpsLocked(metric.Timestamp)

	mustSample := !metric.Success || metric.ResponseTime > m.cfg.SlowRequestThreshold
	if !mustSample && m.rng.Float64() >= m.strategy.Rate(rps) {
		m.mu.Unlock()
		return
	}
	if len(m.queue) >= queueCap {
		m.dropped++
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, metric)
	m.mu.Unlock()

	if metric.ResponseTime > m.cfg.MaxResponseTime {
		severity := types.SeverityHigh
		if metric.ResponseTime > 2*m.cfg.MaxResponseTime {
			severity = types.SeverityCritical
		}
		m.alerts.Raise(types.AlertLatencySpike, metric.Provider+"|"+metric.Model, severity,
			"response time exceeded threshold", metric.ResponseTime, m.cfg.MaxResponseTime)
	}
}

// bump updates the per-second buckets and lifetime counters. Caller holds
// the lock.
func (m *Monitor) bump(metric RequestMetric) {
	sec := metric.Timestamp.Unix()
	b := &m.buckets[sec%bucketCount]
	if b.sec != sec {
		b.sec = sec
		b.requests = 0
		b.errors = 0
	}
	b.requests++
	if !metric.Success {
		b.errors++
		m.totalErrors++
	}
	if metric.Timeout {
		m.totalTimeouts++
	}
	m.totalRequests++
	m.providerCounts[metric.Provider]++
}

// drain moves up to one batch from the queue into the bounded store and
// re-checks the trailing error rate.
func (m *Monitor) drain() {
	m.mu.Lock()
	n := len(m.queue)
	if n > drainBatch {
		n = drainBatch
	}
	batch := m.queue[:n]
	m.queue = m.queue[n:]

	for _, metric := range batch {
		m.store = append(m.store, metric)
		m.responseTimes = append(m.responseTimes, metric.ResponseTime)
	}
	if len(m.store) > storeCap {
		m.store = append([]RequestMetric(nil), m.store[len(m.store)-storeTrim:]...)
	}
	if len(m.responseTimes) > responseCap {
		m.responseTimes = append([]float64(nil), m.responseTimes[len(m.responseTimes)-responseTrim:]...)
	}

	errorRate := m.errorRateLocked(m.now())
	m.mu.Unlock()

	if n > 0 && errorRate > m.cfg.MaxErrorRate {
		severity := types.SeverityHigh
		if errorRate > 2*m.cfg.MaxErrorRate {
			severity = types.SeverityCritical
		}
		m.alerts.Raise(types.AlertErrorRateHigh, "global", severity,
			"trailing error rate exceeded threshold", errorRate, m.cfg.MaxErrorRate)
	}
}

// rpsLocked averages the last minute of per-second buckets.
func (m *Monitor) rpsLocked(now time.Time) float64 {
	nowSec := now.Unix()
	total := 0
	for i := int64(0); i < 60; i++ {
		b := m.buckets[(nowSec-i)%bucketCount]
		if b.sec == nowSec-i {
			total += b.requests
		}
	}
	return float64(total) / 60.0
}

// errorRateLocked computes the trailing five-minute error rate.
func (m *Monitor) errorRateLocked(now time.Time) float64 {
	nowSec := now.Unix()
	requests, errors := 0, 0
	for i := int64(0); i < bucketCount; i++ {
		b := m.buckets[(nowSec-i)%bucketCount]
		if b.sec == nowSec-i {
			requests += b.requests
			errors += b.errors
		}
	}
	if requests == 0 {
		return 0
	}
	return float64(errors) / float64(requests)
}

// percentile indexes a sorted sample at ceil(p*n)-1.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// SetRoutingStats feeds the router's own quality figures into health and
// snapshot computation.
func (m *Monitor) SetRoutingStats(accuracy, latencyMs, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routingAccuracy = accuracy
	m.routingLatency = latencyMs
	m.predictionConfidence = confidence
	m.hasRoutingStats = true
}

// Snapshot builds a point-in-time performance snapshot from current state.
func (m *Monitor) Snapshot() types.PerformanceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() types.PerformanceSnapshot {
	now := m.now()

	sorted := make([]float64, len(m.responseTimes))
	copy(sorted, m.responseTimes)
	sort.Float64s(sorted)

	var avg float64
	for _, rt := range sorted {
		avg += rt
	}
	if len(sorted) > 0 {
		avg /= float64(len(sorted))
	}

	distribution := make(map[string]float64, len(m.providerCounts))
	if m.totalRequests > 0 {
		for provider, count := range m.providerCounts {
			distribution[provider] = float64(count) / float64(m.totalRequests)
		}
	}

	var timeoutRate float64
	if m.totalRequests > 0 {
		timeoutRate = float64(m.totalTimeouts) / float64(m.totalRequests)
	}

	return types.PerformanceSnapshot{
		Timestamp:            now,
		AvgResponseTime:      avg,
		P50ResponseTime:      percentile(sorted, 0.50),
		P95ResponseTime:      percentile(sorted, 0.95),
		P99ResponseTime:      percentile(sorted, 0.99),
		RequestsPerSecond:    m.rpsLocked(now),
		TotalRequests:        m.totalRequests,
		ErrorRate:            m.errorRateLocked(now),
		TimeoutRate:          timeoutRate,
		MemoryUsageMB:        m.memoryMB,
		RoutingAccuracy:      m.routingAccuracy,
		RoutingLatency:       m.routingLatency,
		PredictionConfidence: m.predictionConfidence,
		ProviderDistribution: distribution,
	}
}

// takeSnapshot records a snapshot and drops any past the retention window.
func (m *Monitor) takeSnapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshotLocked()
	m.snapshots = append(m.snapshots, snap)

	cutoff := m.now().Add(-m.cfg.SnapshotRetention)
	first := 0
	for first < len(m.snapshots) && m.snapshots[first].Timestamp.Before(cutoff) {
		first++
	}
	if first > 0 {
		m.snapshots = append([]types.PerformanceSnapshot(nil), m.snapshots[first:]...)
	}
}

// Trends returns the retained snapshots within the given trailing period,
// oldest first.
func (m *Monitor) Trends(period time.Duration) []types.PerformanceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-period)
	var out []types.PerformanceSnapshot
	for _, snap := range m.snapshots {
		if !snap.Timestamp.Before(cutoff) {
			out = append(out, snap)
		}
	}
	return out
}

// Health scores current state from 100 down with a fixed penalty per
// breached threshold.
func (m *Monitor) Health() types.HealthStatus {
	m.mu.Lock()
	snap := m.snapshotLocked()
	hasRouting := m.hasRoutingStats
	m.mu.Unlock()

	score := 100.0
	var issues []string

	if snap.AvgResponseTime > m.cfg.MaxResponseTime {
		score -= 20
		issues = append(issues, "average response time above threshold")
	}
	if snap.ErrorRate > m.cfg.MaxErrorRate {
		score -= 25
		issues = append(issues, "error rate above threshold")
	}
	if m.cfg.MaxMemoryMB > 0 && snap.MemoryUsageMB > m.cfg.MaxMemoryMB {
		score -= 15
		issues = append(issues, "memory usage above threshold")
	}
	if m.cfg.MinThroughput > 0 && snap.RequestsPerSecond < m.cfg.MinThroughput {
		score -= 10
		issues = append(issues, "throughput below threshold")
	}
	if hasRouting && snap.RoutingAccuracy < m.cfg.MinRoutingAccuracy {
		score -= 15
		issues = append(issues, "routing accuracy below threshold")
	}
	if hasRouting && snap.RoutingLatency > m.cfg.MaxRoutingLatency {
		score -= 10
		issues = append(issues, "routing latency above threshold")
	}

	status := "healthy"
	switch {
	case score < 70:
		status = "critical"
	case score < 85:
		status = "warning"
	}

	return types.HealthStatus{
		Status:    status,
		Score:     score,
		Issues:    issues,
		Timestamp: m.now(),
	}
}

// StoreLen reports how many sampled metrics are retained.
func (m *Monitor) StoreLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// Dropped reports how many metrics were rejected by the full queue.
func (m *Monitor) Dropped() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *Monitor) sampleResources() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	m.mu.Lock()
	m.memoryMB = float64(stats.HeapAlloc) / (1024 * 1024)
	m.mu.Unlock()
}
