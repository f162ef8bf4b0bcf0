package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/marketbeam/orchestrator/internal/tracing"
)

// ServerConfig holds the HTTP surface configuration.
type ServerConfig struct {
	Port        int             `mapstructure:"port"`
	MetricsPort int             `mapstructure:"metrics_port"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds per-tenant request rates on the API surface.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// GatewayConfig holds base URLs for the remote collaborators behind the
// brain gateway.
type GatewayConfig struct {
	CompletionURL      string        `mapstructure:"completion_url"`
	TenantSecretsURL   string        `mapstructure:"tenant_secrets_url"`
	PlatformSecretsURL string        `mapstructure:"platform_secrets_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds conversation store settings.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

// AuditConfig holds optional Postgres audit log settings.
type AuditConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// OrchestratorConfig holds execution knobs.
type OrchestratorConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultModel    string        `mapstructure:"default_model"`
}

// Config is the root service configuration loaded from features.yaml.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Tracing      tracing.Config     `mapstructure:"tracing"`
}

// Load reads features.yaml from CONFIG_PATH (default ./config/features.yaml)
// and applies environment overrides for deployment-sensitive values.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/features.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&c)
	applyEnvOverrides(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.RateLimit.RequestsPerSecond == 0 {
		c.Server.RateLimit.RequestsPerSecond = 10
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 20
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 60 * time.Second
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Orchestrator.MaxRetries == 0 {
		c.Orchestrator.MaxRetries = 3
	}
	if c.Orchestrator.RetryBaseDelay == 0 {
		c.Orchestrator.RetryBaseDelay = time.Second
	}
	if c.Orchestrator.DefaultProvider == "" {
		c.Orchestrator.DefaultProvider = "openai"
	}
	if c.Orchestrator.DefaultModel == "" {
		c.Orchestrator.DefaultModel = "gpt-4o-mini"
	}
	if c.Audit.SSLMode == "" {
		c.Audit.SSLMode = "disable"
	}
}

func applyEnvOverrides(c *Config) {
	c.Gateway.CompletionURL = GetEnv("COMPLETION_URL", c.Gateway.CompletionURL)
	c.Gateway.TenantSecretsURL = GetEnv("TENANT_SECRETS_URL", c.Gateway.TenantSecretsURL)
	c.Gateway.PlatformSecretsURL = GetEnv("PLATFORM_SECRETS_URL", c.Gateway.PlatformSecretsURL)
	c.Redis.Addr = GetEnv("REDIS_ADDR", c.Redis.Addr)
	c.Audit.Host = GetEnv("POSTGRES_HOST", c.Audit.Host)
	c.Audit.User = GetEnv("POSTGRES_USER", c.Audit.User)
	c.Audit.Password = GetEnv("POSTGRES_PASSWORD", c.Audit.Password)
	c.Audit.Database = GetEnv("POSTGRES_DB", c.Audit.Database)
	c.Server.Port = GetEnvInt("SERVER_PORT", c.Server.Port)
	c.Server.MetricsPort = GetEnvInt("METRICS_PORT", c.Server.MetricsPort)
}

// GetEnv returns the environment value for key or def when unset.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetEnvInt returns the integer environment value for key or def when unset
// or unparsable.
func GetEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
