package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// HTTPConfig returns breaker tuning for outbound HTTP dependencies
// (completion endpoint, secret stores), overridable via environment.
func HTTPConfig() Config {
	return Config{
		FailureThreshold: getEnvInt("CB_HTTP_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvInt("CB_HTTP_SUCCESS_THRESHOLD", 2),
		OpenTimeout:      getEnvDuration("CB_HTTP_OPEN_TIMEOUT", 15*time.Second),
		MaxProbes:        getEnvInt("CB_HTTP_MAX_PROBES", 2),
	}
}

// RedisConfig returns breaker tuning for the conversation store.
func RedisConfig() Config {
	return Config{
		FailureThreshold: getEnvInt("CB_REDIS_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvInt("CB_REDIS_SUCCESS_THRESHOLD", 2),
		OpenTimeout:      getEnvDuration("CB_REDIS_OPEN_TIMEOUT", 10*time.Second),
		MaxProbes:        getEnvInt("CB_REDIS_MAX_PROBES", 3),
	}
}

// DatabaseConfig returns breaker tuning for the audit database.
func DatabaseConfig() Config {
	return Config{
		FailureThreshold: getEnvInt("CB_DB_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvInt("CB_DB_SUCCESS_THRESHOLD", 2),
		OpenTimeout:      getEnvDuration("CB_DB_OPEN_TIMEOUT", 30*time.Second),
		MaxProbes:        getEnvInt("CB_DB_MAX_PROBES", 1),
	}
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
