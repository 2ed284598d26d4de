package types

import (
	"time"
)

// AIResponse is the provider execution result fed back into the engine
// through the learning call.
type AIResponse struct {
	Content      string `json:"content"`
	Usage        Usage  `json:"usage"`
	FinishReason string `json:"finish_reason"` // "stop", "length", "tool_use", ...
}

type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"` // USD
}

// PredictionResult is a single (provider, model) performance estimate.
// Ephemeral: produced, scored and discarded within one routing call.
type PredictionResult struct {
	Provider              string  `json:"provider"`
	Model                 string  `json:"model"`
	PredictedCost         float64 `json:"predicted_cost"`          // USD
	PredictedResponseTime float64 `json:"predicted_response_time"` // milliseconds
	PredictedQuality      float64 `json:"predicted_quality"`       // 0-1
	Confidence            float64 `json:"confidence"`              // 0-1
	Reasoning             string  `json:"reasoning"`
	Score                 float64 `json:"score,omitempty"` // assigned during selection
}

// RouteDecision is what IntelligentRoute always returns. Internal failures
// degrade to fallback values; they never surface as an error.
type RouteDecision struct {
	Provider              string             `json:"provider"`
	Model                 string             `json:"model"`
	PredictedCost         float64            `json:"predicted_cost"`
	PredictedResponseTime float64            `json:"predicted_response_time"`
	PredictedQuality      float64            `json:"predicted_quality"`
	Confidence            float64            `json:"confidence"`
	Reasoning             string             `json:"reasoning"`
	Alternatives          []PredictionResult `json:"alternatives,omitempty"` // up to 3
	Fallback              bool               `json:"fallback"`
	ExperimentID          string             `json:"experiment_id,omitempty"`
	ExperimentVariant     string             `json:"experiment_variant,omitempty"`
	RoutingTimeMs         float64            `json:"routing_time_ms"`
	MonitoringOverheadMs  float64            `json:"monitoring_overhead_ms"`
	Timestamp             time.Time          `json:"timestamp"`
}

// LearningData is one ground-truth observation. The learning dataset is a
// capped FIFO; the oldest entries are dropped past the cap.
type LearningData struct {
	Features           RequestFeatures `json:"features"`
	ActualProvider     string          `json:"actual_provider"`
	ActualModel        string          `json:"actual_model"`
	ActualCost         float64         `json:"actual_cost"`
	ActualResponseTime float64         `json:"actual_response_time"`
	ActualQuality      float64         `json:"actual_quality"`
	UserSatisfaction   *float64        `json:"user_satisfaction,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
}

// AccuracyMetrics aggregates prediction-vs-actual accuracy for one
// provider|model key.
type AccuracyMetrics struct {
	CostAccuracy         float64 `json:"cost_accuracy"`
	ResponseTimeAccuracy float64 `json:"response_time_accuracy"`
	QualityAccuracy      float64 `json:"quality_accuracy"`
	OverallAccuracy      float64 `json:"overall_accuracy"`
	SampleSize           int     `json:"sample_size"`
}

// AlertType enumerates the conditions the engine alerts on.
type AlertType string

const (
	AlertLatencySpike        AlertType = "latency_spike"
	AlertErrorRateHigh       AlertType = "error_rate_high"
	AlertAccuracyDegradation AlertType = "accuracy_degradation"
	AlertDriftDetected       AlertType = "drift_detected"
)

type AlertSeverity string

const (
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

type Alert struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Type      AlertType     `json:"type"`
	Key       string        `json:"key,omitempty"` // provider|model or metric scope
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
	Value     float64       `json:"value"`
	Threshold float64       `json:"threshold"`
	Resolved  bool          `json:"resolved"`
}

// PerformanceSnapshot captures serving health at one instant. Snapshots are
// taken on a fixed interval and retained for seven days.
type PerformanceSnapshot struct {
	Timestamp            time.Time          `json:"timestamp"`
	AvgResponseTime      float64            `json:"avg_response_time"`
	P50ResponseTime      float64            `json:"p50_response_time"`
	P95ResponseTime      float64            `json:"p95_response_time"`
	P99ResponseTime      float64            `json:"p99_response_time"`
	RequestsPerSecond    float64            `json:"requests_per_second"`
	TotalRequests        int64              `json:"total_requests"`
	ErrorRate            float64            `json:"error_rate"`
	TimeoutRate          float64            `json:"timeout_rate"`
	MemoryUsageMB        float64            `json:"memory_usage_mb"`
	RoutingAccuracy      float64            `json:"routing_accuracy"`
	RoutingLatency       float64            `json:"routing_latency"`
	PredictionConfidence float64            `json:"prediction_confidence"`
	ProviderDistribution map[string]float64 `json:"provider_distribution"` // fractions summing to 1
}

// HealthStatus is the summarized health view for dashboards.
type HealthStatus struct {
	Status    string    `json:"status"` // "healthy", "warning", "critical"
	Score     float64   `json:"score"`  // 0-100
	Issues    []string  `json:"issues"`
	Timestamp time.Time `json:"timestamp"`
}

// MLInsights is the aggregate view returned by GetMLInsights.
type MLInsights struct {
	TotalPredictions     int64                      `json:"total_predictions"`
	AverageConfidence    float64                    `json:"average_confidence"`
	AccuracyMetrics      map[string]AccuracyMetrics `json:"accuracy_metrics"`
	ModelRecommendations []PredictionResult         `json:"model_recommendations"`
	Health               *HealthStatus              `json:"health,omitempty"`
	ActiveExperiments    int                        `json:"active_experiments"`
	UnresolvedAlerts     int                        `json:"unresolved_alerts"`
	UserPattern          *UserPatternAnalysis       `json:"user_pattern,omitempty"`
}

// UserPatternAnalysis summarizes one user's recent request behavior.
type UserPatternAnalysis struct {
	UserID            string      `json:"user_id"`
	PatternID         string      `json:"pattern_id,omitempty"`
	DominantType      RequestType `json:"dominant_type"`
	AverageComplexity float64     `json:"average_complexity"`
	SampleSize        int         `json:"sample_size"`
}
