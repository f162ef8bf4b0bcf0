package pricing

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	pmetrics "github.com/marketbeam/orchestrator/internal/metrics"
)

// table mirrors the pricing section of config/models.yaml.
type table struct {
	Pricing struct {
		Defaults struct {
			CombinedPer1K float64 `yaml:"combined_per_1k"`
		} `yaml:"defaults"`
		Models map[string]map[string]struct {
			InputPer1K    float64 `yaml:"input_per_1k"`
			OutputPer1K   float64 `yaml:"output_per_1k"`
			CombinedPer1K float64 `yaml:"combined_per_1k"`
		} `yaml:"models"`
	} `yaml:"pricing"`
}

var (
	mu          sync.RWMutex
	loaded      *table
	initialized bool
)

// candidate locations inside containers / local dev
var defaultPaths = []string{
	os.Getenv("MODELS_CONFIG_PATH"),
	"/app/config/models.yaml",
	"./config/models.yaml",
	"../../config/models.yaml", // from internal/* packages during tests
}

// findUpConfig searches parent directories for config/models.yaml starting at CWD.
func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "models.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

// loadLocked loads the pricing table - caller must hold mu.Lock().
func loadLocked() {
	var t table
	for _, p := range defaultPaths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp table
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			log.Printf("WARNING: Failed to unmarshal pricing config from %s: %v", p, err)
			continue
		}
		t = tmp
		log.Printf("Loaded pricing configuration from %s", p)
		break
	}
	if t.Pricing.Defaults.CombinedPer1K == 0 && len(t.Pricing.Models) == 0 {
		if path, ok := findUpConfig(); ok {
			if data, err := os.ReadFile(path); err == nil {
				var tmp table
				if err := yaml.Unmarshal(data, &tmp); err == nil {
					t = tmp
					log.Printf("Loaded pricing configuration from %s", path)
				}
			}
		}
	}
	loaded = &t
	initialized = true
}

func get() *table {
	mu.RLock()
	if initialized {
		defer mu.RUnlock()
		return loaded
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		loadLocked()
	}
	return loaded
}

// Reload forces a re-read of pricing configuration. Wired into the config
// manager's change handler for models.yaml.
func Reload() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	loadLocked()
}

// DefaultPerToken returns the default combined price per token.
func DefaultPerToken() float64 {
	t := get()
	if t.Pricing.Defaults.CombinedPer1K > 0 {
		return t.Pricing.Defaults.CombinedPer1K / 1000.0
	}
	// Fallback: $0.002 per 1K tokens
	return 0.000002
}

// PerTokenForModel returns the combined price per token for a model if known.
func PerTokenForModel(model string) (float64, bool) {
	if model == "" {
		return 0, false
	}
	t := get()
	for _, models := range t.Pricing.Models {
		if m, ok := models[model]; ok {
			if m.CombinedPer1K > 0 {
				return m.CombinedPer1K / 1000.0, true
			}
			if m.InputPer1K > 0 && m.OutputPer1K > 0 {
				return ((m.InputPer1K + m.OutputPer1K) / 2.0) / 1000.0, true
			}
		}
	}
	return 0, false
}

// CostForTokens returns cost in USD for total tokens with optional model.
func CostForTokens(model string, tokens int) float64 {
	if tokens < 0 {
		tokens = 0
	}

	if price, ok := PerTokenForModel(model); ok {
		return float64(tokens) * price
	}
	if model == "" {
		pmetrics.PricingFallbacks.WithLabelValues("missing_model").Inc()
	} else {
		pmetrics.PricingFallbacks.WithLabelValues("unknown_model").Inc()
	}
	return float64(tokens) * DefaultPerToken()
}

// ValidateMap validates the pricing section of a raw config map for the
// config manager's hot-reload path.
func ValidateMap(m map[string]interface{}) error {
	p, ok := m["pricing"].(map[string]interface{})
	if !ok {
		return nil
	}
	if d, ok := p["defaults"].(map[string]interface{}); ok {
		if v, ok := d["combined_per_1k"].(float64); ok && v < 0 {
			return errors.New("pricing.defaults.combined_per_1k must be >= 0")
		}
	}
	if provs, ok := p["models"].(map[string]interface{}); ok {
		for provName, pm := range provs {
			models, ok := pm.(map[string]interface{})
			if !ok {
				continue
			}
			for modelName, mv := range models {
				entry, ok := mv.(map[string]interface{})
				if !ok {
					continue
				}
				for _, field := range []string{"input_per_1k", "output_per_1k", "combined_per_1k"} {
					if v, ok := entry[field].(float64); ok && v < 0 {
						return errors.New("negative " + field + " for " + provName + ":" + modelName)
					}
				}
			}
		}
	}
	return nil
}
