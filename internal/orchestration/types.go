package orchestration

import (
	"time"

	"github.com/marketbeam/orchestrator/internal/session"
)

// ExecutionMode governs how a task's capabilities are invoked relative to
// one another.
type ExecutionMode string

const (
	ModeSingle     ExecutionMode = "single"
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// Valid reports whether the mode is one of the recognized values.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSingle, ModeSequential, ModeParallel:
		return true
	}
	return false
}

// Context carries the conversational surroundings of a task. The
// orchestrator treats it as read-only except for PreviousResults, which
// grows as sequential steps complete.
type Context struct {
	TenantID        string             `json:"tenant_id"`
	UserID          string             `json:"user_id"`
	ConversationID  string             `json:"conversation_id,omitempty"`
	History         []session.Message  `json:"history,omitempty"`
	PreviousResults []CapabilityResult `json:"previous_results,omitempty"`
}

// Task is one unit of orchestration work. CapabilityIDs must be non-empty;
// single mode uses exactly the first entry.
type Task struct {
	ID            string        `json:"id"`
	Mode          ExecutionMode `json:"mode"`
	CapabilityIDs []string      `json:"capability_ids"`
	Input         string        `json:"input"`
	Context       Context       `json:"context"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	Priority      int           `json:"priority,omitempty"`
}

// CapabilityResult is the outcome of one capability invocation. Only the
// final attempt's outcome is kept; Error is set iff Success is false.
type CapabilityResult struct {
	CapabilityID string                 `json:"capability_id"`
	Success      bool                   `json:"success"`
	Response     string                 `json:"response"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Suggestions  []string               `json:"suggestions,omitempty"`
	TokensUsed   int                    `json:"tokens_used"`
	CostUSD      float64                `json:"cost_usd"`
	Duration     time.Duration          `json:"duration"`
	Error        string                 `json:"error,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Result is the aggregated outcome of a task. Success is the logical AND
// of all per-capability success flags.
type Result struct {
	TaskID        string             `json:"task_id"`
	Results       []CapabilityResult `json:"results"`
	FinalResponse string             `json:"final_response"`
	TotalTokens   int                `json:"total_tokens"`
	TotalCostUSD  float64            `json:"total_cost_usd"`
	Duration      time.Duration      `json:"duration"`
	Success       bool               `json:"success"`
}

// IntentResult is the outcome of offline intent classification.
type IntentResult struct {
	PrimaryCapability      string   `json:"primary_capability"`
	SupportingCapabilities []string `json:"supporting_capabilities,omitempty"`
	Confidence             float64  `json:"confidence"`
	MatchedKeywords        []string `json:"matched_keywords,omitempty"`
}
