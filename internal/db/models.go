package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB is a map stored as a jsonb column.
type JSONB map[string]interface{}

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
	return json.Unmarshal(data, j)
}

// TaskRecord is one task execution audit row.
type TaskRecord struct {
	ID          uuid.UUID  `db:"id"`
	TaskID      string     `db:"task_id"`
	TenantID    string     `db:"tenant_id"`
	UserID      string     `db:"user_id"`
	Mode        string     `db:"mode"`
	Input       string     `db:"input"`
	Response    string     `db:"response"`
	Success     bool       `db:"success"`
	TotalTokens int        `db:"total_tokens"`
	TotalCost   float64    `db:"total_cost_usd"`
	DurationMs  int64      `db:"duration_ms"`
	Metadata    JSONB      `db:"metadata"`
	StartedAt   time.Time  `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

// CapabilityRecord is one capability invocation audit row, linked to its
// task by TaskID.
type CapabilityRecord struct {
	ID           uuid.UUID `db:"id"`
	TaskID       string    `db:"task_id"`
	CapabilityID string    `db:"capability_id"`
	Success      bool      `db:"success"`
	TokensUsed   int       `db:"tokens_used"`
	CostUSD      float64   `db:"cost_usd"`
	DurationMs   int64     `db:"duration_ms"`
	Error        string    `db:"error"`
	CreatedAt    time.Time `db:"created_at"`
}
