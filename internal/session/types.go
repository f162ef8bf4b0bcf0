package session

import (
	"errors"
	"time"
)

var (
	// ErrConversationNotFound is returned when a conversation doesn't exist
	// for the requesting tenant.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationExpired is returned when a conversation has expired.
	ErrConversationExpired = errors.New("conversation expired")
)

// maxHistory bounds how many messages a conversation retains.
const maxHistory = 100

// Conversation is a tenant-scoped message thread with accumulated usage.
type Conversation struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	UserID    string                 `json:"user_id"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	ExpiresAt time.Time              `json:"expires_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	History   []Message              `json:"history"`

	TotalTokensUsed int     `json:"total_tokens_used"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
}

// Message is one turn in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	CapabilityID string  `json:"capability_id,omitempty"`
	TokensUsed   int     `json:"tokens_used,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// IsExpired checks if the conversation has expired.
func (c *Conversation) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// RecentHistory returns the most recent count messages in order.
func (c *Conversation) RecentHistory(count int) []Message {
	if len(c.History) <= count {
		return c.History
	}
	return c.History[len(c.History)-count:]
}

// AppendMessage adds a message, trimming history to the retention bound.
func (c *Conversation) AppendMessage(msg Message) {
	c.History = append(c.History, msg)
	if len(c.History) > maxHistory {
		c.History = c.History[len(c.History)-maxHistory:]
	}
	c.TotalTokensUsed += msg.TokensUsed
	c.TotalCostUSD += msg.CostUSD
	c.UpdatedAt = time.Now()
}
