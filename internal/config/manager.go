package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChangeEvent describes a configuration file change.
type ChangeEvent struct {
	File      string                 `json:"file"`
	Action    string                 `json:"action"` // create, modify, reload
	Config    map[string]interface{} `json:"config"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChangeHandler is called when a watched configuration file changes.
type ChangeHandler func(event ChangeEvent) error

// Manager watches a configuration directory and hot-reloads YAML files,
// running registered validators before accepting a change and notifying
// registered handlers afterwards.
type Manager struct {
	configDir string
	logger    *zap.Logger

	mu         sync.RWMutex
	configs    map[string]map[string]interface{}
	handlers   map[string][]ChangeHandler
	validators map[string]func(map[string]interface{}) error
	started    bool

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewManager creates a configuration manager for dir.
func NewManager(dir string, logger *zap.Logger) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("config directory cannot be empty")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Manager{
		configDir:  dir,
		logger:     logger,
		configs:    make(map[string]map[string]interface{}),
		handlers:   make(map[string][]ChangeHandler),
		validators: make(map[string]func(map[string]interface{}) error),
		watcher:    watcher,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start loads all YAML files in the directory and begins watching.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.watcher.Add(m.configDir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	if err := m.loadAll(); err != nil {
		return fmt.Errorf("failed to load initial configs: %w", err)
	}

	m.mu.Lock()
	m.started = true
	loaded := len(m.configs)
	m.mu.Unlock()

	go m.watchLoop()

	m.logger.Info("Configuration manager started",
		zap.String("config_dir", m.configDir),
		zap.Int("loaded_configs", loaded),
	)
	return nil
}

// Stop stops watching for changes.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	close(m.stopCh)
	if err := m.watcher.Close(); err != nil {
		m.logger.Error("Error closing file watcher", zap.Error(err))
	}
	m.started = false
	return nil
}

// RegisterHandler registers a change handler for filename (base name).
func (m *Manager) RegisterHandler(filename string, handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[filename] = append(m.handlers[filename], handler)
}

// RegisterValidator registers a validator run before a change is accepted.
func (m *Manager) RegisterValidator(filename string, validator func(map[string]interface{}) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[filename] = validator
}

// Get returns a copy of the current configuration for filename.
func (m *Manager) Get(filename string) (map[string]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[filename]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out, true
}

func (m *Manager) loadAll() error {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		if err := m.loadFile(filepath.Join(m.configDir, e.Name()), "reload"); err != nil {
			m.logger.Warn("Skipping config file",
				zap.String("file", e.Name()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (m *Manager) loadFile(path, action string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var cfg map[string]interface{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	name := filepath.Base(path)

	m.mu.RLock()
	validator := m.validators[name]
	m.mu.RUnlock()
	if validator != nil {
		if err := validator(cfg); err != nil {
			// Reject the change; the previous config stays authoritative.
			return fmt.Errorf("validation failed for %s: %w", name, err)
		}
	}

	m.mu.Lock()
	m.configs[name] = cfg
	handlers := make([]ChangeHandler, len(m.handlers[name]))
	copy(handlers, m.handlers[name])
	m.mu.Unlock()

	event := ChangeEvent{File: name, Action: action, Config: cfg, Timestamp: time.Now()}
	for _, h := range handlers {
		if err := h(event); err != nil {
			m.logger.Error("Config change handler failed",
				zap.String("file", name),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (m *Manager) watchLoop() {
	// Editors often emit bursts of write events; debounce per file.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("File watcher error", zap.Error(err))
		case now := <-ticker.C:
			for path, ts := range pending {
				if now.Sub(ts) < 200*time.Millisecond {
					continue
				}
				delete(pending, path)
				action := "modify"
				if err := m.loadFile(path, action); err != nil {
					m.logger.Warn("Config reload rejected",
						zap.String("file", filepath.Base(path)),
						zap.Error(err),
					)
					continue
				}
				m.logger.Info("Config reloaded", zap.String("file", filepath.Base(path)))
			}
		}
	}
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
