package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/circuitbreaker"
)

// ErrNotFound indicates the store has no record for the requested key.
var ErrNotFound = errors.New("secret not found")

// SecretRecord is a stored secret with its lifecycle metadata. TenantID is
// empty for platform-level fallback records.
type SecretRecord struct {
	Service    string     `json:"service"`
	KeyType    string     `json:"keyType"`
	Value      string     `json:"value,omitempty"`
	TenantID   string     `json:"tenantId,omitempty"`
	IsValid    bool       `json:"isValid"`
	UsageCount int        `json:"usageCount,omitempty"`
	CreatedAt  time.Time  `json:"createdAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the record's expiry has passed.
func (r *SecretRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Usable reports whether the record may be handed out as a live credential.
func (r *SecretRecord) Usable(now time.Time) bool {
	return r.IsValid && !r.Expired(now)
}

// ValidationResult is the remote key validation verdict.
type ValidationResult struct {
	Valid      bool            `json:"valid"`
	Score      int             `json:"score"`
	Compliance map[string]bool `json:"compliance,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// TenantStore is the tenant-scoped secret store surface the broker consumes.
type TenantStore interface {
	Get(ctx context.Context, tenantID, service, keyType string) (*SecretRecord, error)
	Set(ctx context.Context, tenantID, service, keyType, value string) error
	Delete(ctx context.Context, tenantID, service, keyType string) error
	List(ctx context.Context, tenantID string) ([]*SecretRecord, error)
	Test(ctx context.Context, tenantID, service, keyType, value string) (*ValidationResult, error)
}

// PlatformStore is the read-only platform-level fallback store.
type PlatformStore interface {
	Get(ctx context.Context, service, keyType string) (*SecretRecord, error)
}

// HTTPTenantStore talks to the tenant secret store over HTTP. Tenancy is
// carried in the X-Tenant-ID header on every request.
type HTTPTenantStore struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewHTTPTenantStore creates a tenant store client against baseURL.
func NewHTTPTenantStore(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPTenantStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTenantStore{
		baseURL: baseURL,
		http: circuitbreaker.NewHTTPWrapper(
			&http.Client{Timeout: timeout},
			"tenant-secrets-http",
			"secrets",
			logger,
		),
		logger: logger,
	}
}

func (s *HTTPTenantStore) Get(ctx context.Context, tenantID, service, keyType string) (*SecretRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(service), url.PathEscape(keyType))
	var wire secretWire
	if err := s.roundTrip(ctx, http.MethodGet, endpoint, tenantID, nil, &wire); err != nil {
		return nil, err
	}
	rec := wire.record(service, keyType)
	rec.TenantID = tenantID
	return rec, nil
}

func (s *HTTPTenantStore) Set(ctx context.Context, tenantID, service, keyType, value string) error {
	payload := map[string]string{"service": service, "keyType": keyType, "value": value}
	return s.roundTrip(ctx, http.MethodPost, s.baseURL, tenantID, payload, nil)
}

func (s *HTTPTenantStore) Delete(ctx context.Context, tenantID, service, keyType string) error {
	endpoint := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(service), url.PathEscape(keyType))
	return s.roundTrip(ctx, http.MethodDelete, endpoint, tenantID, nil, nil)
}

func (s *HTTPTenantStore) List(ctx context.Context, tenantID string) ([]*SecretRecord, error) {
	var out struct {
		Secrets []*SecretRecord `json:"secrets"`
	}
	if err := s.roundTrip(ctx, http.MethodGet, s.baseURL, tenantID, nil, &out); err != nil {
		return nil, err
	}
	return out.Secrets, nil
}

func (s *HTTPTenantStore) Test(ctx context.Context, tenantID, service, keyType, value string) (*ValidationResult, error) {
	payload := map[string]string{"service": service, "keyType": keyType, "value": value}
	var out struct {
		Validation ValidationResult `json:"validation"`
	}
	if err := s.roundTrip(ctx, http.MethodPost, s.baseURL+"/test", tenantID, payload, &out); err != nil {
		return nil, err
	}
	return &out.Validation, nil
}

func (s *HTTPTenantStore) roundTrip(ctx context.Context, method, endpoint, tenantID string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal secret request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build secret request: %w", err)
	}
	req.Header.Set("X-Tenant-ID", tenantID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("secret store: %w", err)
	}
	defer resp.Body.Close()
	return decodeStoreResponse(resp, out)
}

// HTTPPlatformStore reads platform-level fallback secrets over HTTP.
type HTTPPlatformStore struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
}

// NewHTTPPlatformStore creates a platform store client against baseURL.
func NewHTTPPlatformStore(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPPlatformStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPlatformStore{
		baseURL: baseURL,
		http: circuitbreaker.NewHTTPWrapper(
			&http.Client{Timeout: timeout},
			"platform-secrets-http",
			"secrets",
			logger,
		),
	}
}

func (s *HTTPPlatformStore) Get(ctx context.Context, service, keyType string) (*SecretRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", s.baseURL, url.PathEscape(service), url.PathEscape(keyType))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build secret request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform secret store: %w", err)
	}
	defer resp.Body.Close()

	var wire secretWire
	if err := decodeStoreResponse(resp, &wire); err != nil {
		return nil, err
	}
	return wire.record(service, keyType), nil
}

// secretWire tolerates both read shapes the stores emit: a bare {"secret"}
// payload and a full record.
type secretWire struct {
	Secret string `json:"secret"`
	SecretRecord
}

func (w *secretWire) record(service, keyType string) *SecretRecord {
	rec := w.SecretRecord
	if rec.Value == "" {
		rec.Value = w.Secret
	}
	// The bare read shape carries no validity flag; a returned secret is live.
	if w.Secret != "" && rec.ExpiresAt == nil && !rec.IsValid {
		rec.IsValid = true
	}
	rec.Service = service
	rec.KeyType = keyType
	return &rec
}

func decodeStoreResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("secret store returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode secret response: %w", err)
	}
	return nil
}
