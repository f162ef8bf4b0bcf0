package capability

import (
	"fmt"
	"sort"
	"strings"
)

// NewRegistry creates a new empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]*Capability),
		byCategory:   make(map[string][]string),
	}
}

// add registers a capability. Caller must hold the lock.
func (r *Registry) addLocked(c *Capability) error {
	if c.ID == "" {
		return fmt.Errorf("capability missing id")
	}
	if _, ok := r.capabilities[c.ID]; ok {
		return fmt.Errorf("duplicate capability %q", c.ID)
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	switch c.Status {
	case StatusActive, StatusInactive, StatusMaintenance, StatusError:
	default:
		return fmt.Errorf("capability %q has unknown status %q", c.ID, c.Status)
	}

	r.capabilities[c.ID] = c
	r.order = append(r.order, c.ID)
	if c.Category != "" {
		r.byCategory[c.Category] = append(r.byCategory[c.Category], c.ID)
	}
	return nil
}

// Get retrieves a capability by identifier.
func (r *Registry) Get(id string) (*Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[id]
	return c, ok
}

// List returns summaries for all capabilities in catalog order.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, summarize(r.capabilities[id]))
	}
	return out
}

// ListActive returns summaries for active capabilities only.
func (r *Registry) ListActive() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Summary
	for _, id := range r.order {
		if c := r.capabilities[id]; c.IsActive() {
			out = append(out, summarize(c))
		}
	}
	return out
}

// ListByCategory filters capabilities by category, in catalog order.
func (r *Registry) ListByCategory(category string) []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.byCategory[category]
	if !ok {
		return []Summary{}
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		out = append(out, summarize(r.capabilities[id]))
	}
	return out
}

// Search runs a case-insensitive substring match over name, description,
// category, and features.
func (r *Registry) Search(query string) []Summary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return r.List()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Summary
	for _, id := range r.order {
		c := r.capabilities[id]
		if matches(c, q) {
			out = append(out, summarize(c))
		}
	}
	return out
}

// Categories returns all unique categories, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cats := make([]string, 0, len(r.byCategory))
	for cat := range r.byCategory {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.capabilities)
}

func matches(c *Capability, q string) bool {
	if strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.Description), q) ||
		strings.Contains(strings.ToLower(c.Category), q) ||
		strings.Contains(strings.ToLower(c.ID), q) {
		return true
	}
	for _, f := range c.Features {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func summarize(c *Capability) Summary {
	return Summary{
		ID:          c.ID,
		Name:        c.Name,
		Category:    c.Category,
		Description: c.Description,
		Status:      c.Status,
		Features:    c.Features,
	}
}
