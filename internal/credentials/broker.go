// Package credentials resolves per-tenant service secrets with a
// tenant-then-platform fallback chain, an in-process cache, offline format
// validation, strength scoring, and rotation.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/metrics"
)

// openRouterBaseURL is the fixed routing endpoint implied by the openrouter
// provider; resolved keys for it always pair with this URL.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// defaultKeyType is the key type used for provider completion credentials.
const defaultKeyType = "api_key"

// cacheTTL bounds how long a tenant-scope hit is served without re-fetching.
const cacheTTL = 5 * time.Minute

// CompletionConfig is a resolved provider credential plus routing info.
type CompletionConfig struct {
	Provider         string `json:"provider"`
	APIKey           string `json:"apiKey"`
	BaseURL          string `json:"baseUrl,omitempty"`
	UsingPlatformKey bool   `json:"usingPlatformKey"`
}

// SecretMetadata is a masked, display-safe view of a stored secret.
type SecretMetadata struct {
	Service     string     `json:"service"`
	KeyType     string     `json:"keyType"`
	MaskedValue string     `json:"maskedValue"`
	IsValid     bool       `json:"isValid"`
	UsageCount  int        `json:"usageCount,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

type cacheEntry struct {
	record   *SecretRecord
	cachedAt time.Time
}

// Broker resolves secrets for a single tenant. Instances are created per
// tenant by the registry; the cache is private to the instance.
type Broker struct {
	tenantID string
	tenant   TenantStore
	platform PlatformStore
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// NewBroker creates a broker scoped to tenantID.
func NewBroker(tenantID string, tenant TenantStore, platform PlatformStore, logger *zap.Logger) *Broker {
	return &Broker{
		tenantID: tenantID,
		tenant:   tenant,
		platform: platform,
		logger:   logger.With(zap.String("tenant_id", tenantID)),
		cache:    make(map[string]*cacheEntry),
	}
}

// TenantID returns the tenant this broker is scoped to.
func (b *Broker) TenantID() string { return b.tenantID }

func cacheKey(service, keyType string) string { return service + ":" + keyType }

// Resolve returns the secret value for (service, keyType), preferring a
// tenant record and falling back to the platform store when allowed. Network
// failures resolve as "not available" rather than an error; the broker never
// retries on its own.
func (b *Broker) Resolve(ctx context.Context, service, keyType string, allowPlatformFallback bool) (string, bool) {
	value, source := b.resolveWithSource(ctx, service, keyType, allowPlatformFallback)
	metrics.CredentialResolves.WithLabelValues(service, source).Inc()
	return value, value != ""
}

func (b *Broker) resolveWithSource(ctx context.Context, service, keyType string, allowPlatformFallback bool) (value, source string) {
	key := cacheKey(service, keyType)
	now := time.Now()

	b.mu.Lock()
	if entry, ok := b.cache[key]; ok {
		if now.Sub(entry.cachedAt) < cacheTTL && entry.record.Usable(now) {
			b.mu.Unlock()
			metrics.CredentialCacheHits.Inc()
			return entry.record.Value, "cache"
		}
		delete(b.cache, key)
	}
	b.mu.Unlock()
	metrics.CredentialCacheMisses.Inc()

	rec, err := b.tenant.Get(ctx, b.tenantID, service, keyType)
	switch {
	case err == nil:
		if rec.Usable(now) {
			b.mu.Lock()
			b.cache[key] = &cacheEntry{record: rec, cachedAt: now}
			b.mu.Unlock()
			return rec.Value, "tenant"
		}
		b.logger.Debug("Tenant secret present but not usable",
			zap.String("service", service),
			zap.String("key_type", keyType),
			zap.Bool("expired", rec.Expired(now)))
	case !errors.Is(err, ErrNotFound):
		b.logger.Warn("Tenant secret lookup failed",
			zap.String("service", service),
			zap.String("key_type", keyType),
			zap.Error(err))
	}

	if !allowPlatformFallback {
		return "", "none"
	}

	prec, err := b.platform.Get(ctx, service, keyType)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.Warn("Platform secret lookup failed",
				zap.String("service", service),
				zap.String("key_type", keyType),
				zap.Error(err))
		}
		return "", "none"
	}
	if !prec.Usable(now) {
		return "", "none"
	}
	return prec.Value, "platform"
}

// Store writes a tenant secret through to the store and evicts any cached
// entry so the next Resolve re-fetches the authoritative value.
func (b *Broker) Store(ctx context.Context, service, keyType, value string) error {
	if err := b.tenant.Set(ctx, b.tenantID, service, keyType, value); err != nil {
		metrics.SecretOperations.WithLabelValues("store", "error").Inc()
		return fmt.Errorf("store secret %s:%s: %w", service, keyType, err)
	}
	b.evict(service, keyType)
	metrics.SecretOperations.WithLabelValues("store", "success").Inc()
	return nil
}

// Remove deletes the tenant record and evicts the cache entry.
func (b *Broker) Remove(ctx context.Context, service, keyType string) error {
	if err := b.tenant.Delete(ctx, b.tenantID, service, keyType); err != nil {
		metrics.SecretOperations.WithLabelValues("remove", "error").Inc()
		return fmt.Errorf("remove secret %s:%s: %w", service, keyType, err)
	}
	b.evict(service, keyType)
	metrics.SecretOperations.WithLabelValues("remove", "success").Inc()
	return nil
}

// List returns masked metadata for the tenant's secrets. Raw values never
// leave the broker.
func (b *Broker) List(ctx context.Context) ([]SecretMetadata, error) {
	records, err := b.tenant.List(ctx, b.tenantID)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	out := make([]SecretMetadata, 0, len(records))
	for _, rec := range records {
		out = append(out, SecretMetadata{
			Service:     rec.Service,
			KeyType:     rec.KeyType,
			MaskedValue: Mask(rec.Value),
			IsValid:     rec.IsValid,
			UsageCount:  rec.UsageCount,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
			ExpiresAt:   rec.ExpiresAt,
		})
	}
	return out, nil
}

// TestKey delegates key validation to the remote collaborator. The offline
// format check runs first so obviously malformed values never hit the wire.
func (b *Broker) TestKey(ctx context.Context, service, keyType, rawValue string) (*ValidationResult, error) {
	if fr := ValidateFormat(service, keyType, rawValue); !fr.Valid {
		return &ValidationResult{Valid: false, Error: fr.Reason}, nil
	}
	result, err := b.tenant.Test(ctx, b.tenantID, service, keyType, rawValue)
	if err != nil {
		metrics.SecretOperations.WithLabelValues("test", "error").Inc()
		return nil, fmt.Errorf("test secret %s:%s: %w", service, keyType, err)
	}
	metrics.SecretOperations.WithLabelValues("test", "success").Inc()
	return result, nil
}

// Rotate replaces a tenant secret with newValue. Sequencing: offline format
// check, then remote test, then store. If any step fails the previous value
// remains authoritative; no partial rotation state is observable.
func (b *Broker) Rotate(ctx context.Context, service, keyType, newValue string) error {
	if fr := ValidateFormat(service, keyType, newValue); !fr.Valid {
		metrics.SecretOperations.WithLabelValues("rotate", "invalid_format").Inc()
		return fmt.Errorf("rotate secret %s:%s: %s", service, keyType, fr.Reason)
	}

	result, err := b.tenant.Test(ctx, b.tenantID, service, keyType, newValue)
	if err != nil {
		metrics.SecretOperations.WithLabelValues("rotate", "test_error").Inc()
		return fmt.Errorf("rotate secret %s:%s: test: %w", service, keyType, err)
	}
	if !result.Valid {
		metrics.SecretOperations.WithLabelValues("rotate", "test_failed").Inc()
		reason := result.Error
		if reason == "" {
			reason = "new value failed validation"
		}
		return fmt.Errorf("rotate secret %s:%s: %s", service, keyType, reason)
	}

	if err := b.Store(ctx, service, keyType, newValue); err != nil {
		metrics.SecretOperations.WithLabelValues("rotate", "store_error").Inc()
		return err
	}
	metrics.SecretOperations.WithLabelValues("rotate", "success").Inc()
	b.logger.Info("Secret rotated",
		zap.String("service", service),
		zap.String("key_type", keyType))
	return nil
}

// ResolveCompletionConfig resolves the credential for a completion provider
// and attaches provider-specific routing. Reports whether the key came from
// the platform fallback rather than the tenant's own record.
func (b *Broker) ResolveCompletionConfig(ctx context.Context, provider string) (*CompletionConfig, bool) {
	value, source := b.resolveWithSource(ctx, provider, defaultKeyType, true)
	metrics.CredentialResolves.WithLabelValues(provider, source).Inc()
	if value == "" {
		return nil, false
	}

	cfg := &CompletionConfig{
		Provider:         provider,
		APIKey:           value,
		UsingPlatformKey: source == "platform",
	}
	if provider == "openrouter" {
		cfg.BaseURL = openRouterBaseURL
	}
	return cfg, true
}

func (b *Broker) evict(service, keyType string) {
	b.mu.Lock()
	delete(b.cache, cacheKey(service, keyType))
	b.mu.Unlock()
}
