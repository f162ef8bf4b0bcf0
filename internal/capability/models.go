// Package capability implements the static capability catalog: the read-only
// mapping from capability identifier to its descriptor (display name,
// required services, model preferences, activation status). The catalog is
// loaded once at process start and never mutated afterwards.
package capability

import "sync"

// Status is a capability's activation status.
type Status string

const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusMaintenance Status = "maintenance"
	StatusError       Status = "error"
)

// ModelPreference declares a preferred provider/model with sampling
// parameters, in priority order (lower = preferred).
type ModelPreference struct {
	Provider         string  `yaml:"provider" json:"provider"`
	Model            string  `yaml:"model" json:"model"`
	Priority         int     `yaml:"priority" json:"priority"`
	MaxTokens        int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Temperature      float64 `yaml:"temperature" json:"temperature,omitempty"`
	TopP             float64 `yaml:"top_p" json:"top_p,omitempty"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `yaml:"presence_penalty" json:"presence_penalty,omitempty"`
}

// Capability is a single catalog entry.
type Capability struct {
	ID               string            `yaml:"id" json:"id"`
	Name             string            `yaml:"name" json:"name"`
	Category         string            `yaml:"category" json:"category"`
	Description      string            `yaml:"description" json:"description"`
	Features         []string          `yaml:"features" json:"features,omitempty"`
	SystemPrompt     string            `yaml:"system_prompt" json:"system_prompt,omitempty"`
	Status           Status            `yaml:"status" json:"status"`
	RequiredServices []string          `yaml:"required_services" json:"required_services,omitempty"`
	ModelPreferences []ModelPreference `yaml:"model_preferences" json:"model_preferences,omitempty"`
}

// IsActive reports whether the capability may be executed.
func (c *Capability) IsActive() bool { return c.Status == StatusActive }

// Summary is a lightweight representation for API responses.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Features    []string `json:"features,omitempty"`
}

// Registry is the in-process capability lookup table. It is populated by
// the loader before serving begins and read-only afterwards; the lock only
// guards the load itself.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]*Capability
	byCategory   map[string][]string
	order        []string // catalog declaration order, for stable listings
}
