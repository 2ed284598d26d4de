package types

import (
	"time"
)

// AIRequest is the inbound request the engine routes. The engine never
// executes it; execution happens in the caller's provider layer.
type AIRequest struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	MaxTokens *int      `json:"max_tokens,omitempty"`
	Tools     []Tool    `json:"tools,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant", "tool"
	Content string `json:"content"`
}

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// OptimizationType selects the scoring objective for provider selection.
type OptimizationType string

const (
	OptimizeCost     OptimizationType = "cost"
	OptimizeSpeed    OptimizationType = "speed"
	OptimizeQuality  OptimizationType = "quality"
	OptimizeBalanced OptimizationType = "balanced"
)

// RouteOptions carries the caller's objective and hard constraints.
// Unset constraints mean no filtering on that dimension.
type RouteOptions struct {
	OptimizeFor     OptimizationType `json:"optimize_for,omitempty"`
	MaxCost         *float64         `json:"max_cost,omitempty"`
	MinQuality      *float64         `json:"min_quality,omitempty"`
	MaxResponseTime *float64         `json:"max_response_time,omitempty"` // milliseconds
}

// RequestType classifies a request by its dominant intent.
type RequestType string

const (
	RequestTypeSimpleChat       RequestType = "simple_chat"
	RequestTypeCodeGeneration   RequestType = "code_generation"
	RequestTypeDataProcessing   RequestType = "data_processing"
	RequestTypeCreativeWriting  RequestType = "creative_writing"
	RequestTypeTechnicalSupport RequestType = "technical_support"
	RequestTypeComplexAnalysis  RequestType = "complex_analysis"
)

// RequestFeatures is the fixed feature vector derived from a request and
// user identity. Immutable once created.
type RequestFeatures struct {
	PromptLength     int         `json:"prompt_length"`
	MessageCount     int         `json:"message_count"`
	HasSystemMessage bool        `json:"has_system_message"`
	ComplexityScore  float64     `json:"complexity_score"` // 0-1
	RequestType      RequestType `json:"request_type"`
	UserPatternID    string      `json:"user_pattern_id,omitempty"`
	TimeOfDay        int         `json:"time_of_day"` // 0-23
	DayOfWeek        int         `json:"day_of_week"` // 0-6, Sunday=0
}
