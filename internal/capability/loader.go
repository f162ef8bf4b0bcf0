package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile mirrors config/capabilities.yaml.
type catalogFile struct {
	Capabilities []*Capability `yaml:"capabilities"`
}

// LoadFile loads a capability catalog from a YAML file into a new registry.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability catalog %s: %w", path, err)
	}
	return Load(data)
}

// Load parses catalog YAML into a new registry.
func Load(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse capability catalog: %w", err)
	}
	if len(file.Capabilities) == 0 {
		return nil, fmt.Errorf("capability catalog is empty")
	}

	r := NewRegistry()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range file.Capabilities {
		if err := r.addLocked(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultPath resolves the catalog location: CAPABILITIES_PATH env override,
// then ./config/capabilities.yaml.
func DefaultPath() string {
	if p := os.Getenv("CAPABILITIES_PATH"); p != "" {
		return p
	}
	return "./config/capabilities.yaml"
}
