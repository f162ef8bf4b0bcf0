package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/capability"
	"github.com/marketbeam/orchestrator/internal/completion"
	"github.com/marketbeam/orchestrator/internal/config"
	"github.com/marketbeam/orchestrator/internal/registry"
)

const apiTestCatalog = `
capabilities:
  - id: blog_writer
    name: Blog Writer
    category: content
    description: Long-form blog drafting
    system_prompt: "You are an expert content writer."
    model_preferences:
      - provider: openai
        model: gpt-4o-mini
        priority: 1
  - id: seo_optimizer
    name: SEO Optimizer
    category: seo
    description: Keyword research
`

// fakeGateway stands in for the completion endpoint and both secret
// stores behind one httptest server.
type fakeGateway struct {
	mu      sync.Mutex
	secrets map[string]string // "tenant|service|keyType" (tenant empty = platform)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{secrets: map[string]string{
		"|openai|api_key": "sk-platform-key-0123456789",
	}}
}

func (g *fakeGateway) completionHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(completion.Response{
		Content:    "Here is the draft.\n\nSuggestions:\n- Add a call to action\n- Shorten the intro",
		TokensUsed: 50,
		Cost:       0.0001,
	})
}

func (g *fakeGateway) secretsHandler(platform bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant := ""
		if !platform {
			tenant = r.Header.Get("X-Tenant-ID")
		}
		g.mu.Lock()
		defer g.mu.Unlock()

		path := strings.Trim(r.URL.Path, "/")
		switch {
		case r.Method == http.MethodGet && path == "":
			var out []map[string]interface{}
			for key, value := range g.secrets {
				parts := strings.SplitN(key, "|", 3)
				if parts[0] != tenant {
					continue
				}
				out = append(out, map[string]interface{}{
					"service": parts[1], "keyType": parts[2], "value": value, "isValid": true,
				})
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"secrets": out})
		case r.Method == http.MethodGet:
			parts := strings.SplitN(path, "/", 2)
			value, ok := g.secrets[tenant+"|"+parts[0]+"|"+parts[1]]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"secret": value})
		case r.Method == http.MethodPost && path == "test":
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req)
			valid := !strings.Contains(req["value"], "revoked")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"validation": map[string]interface{}{"valid": valid, "score": 80},
			})
		case r.Method == http.MethodPost:
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req)
			g.secrets[tenant+"|"+req["service"]+"|"+req["keyType"]] = req["value"]
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete:
			parts := strings.SplitN(path, "/", 2)
			delete(g.secrets, tenant+"|"+parts[0]+"|"+parts[1])
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "unhandled", http.StatusBadRequest)
		}
	}
}

func newTestAPI(t *testing.T, rl config.RateLimitConfig) (*httptest.Server, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()

	completionSrv := httptest.NewServer(http.HandlerFunc(gw.completionHandler))
	tenantSrv := httptest.NewServer(gw.secretsHandler(false))
	platformSrv := httptest.NewServer(gw.secretsHandler(true))
	t.Cleanup(func() {
		completionSrv.Close()
		tenantSrv.Close()
		platformSrv.Close()
	})

	caps, err := capability.Load([]byte(apiTestCatalog))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	cfg := &config.Config{}
	cfg.Gateway.CompletionURL = completionSrv.URL
	cfg.Gateway.TenantSecretsURL = tenantSrv.URL
	cfg.Gateway.PlatformSecretsURL = platformSrv.URL
	cfg.Gateway.Timeout = 5 * time.Second
	cfg.Orchestrator.MaxRetries = 1
	cfg.Orchestrator.RetryBaseDelay = time.Millisecond
	cfg.Orchestrator.DefaultProvider = "openai"
	cfg.Orchestrator.DefaultModel = "gpt-4o-mini"

	client := completion.NewClient(completionSrv.URL, 5*time.Second, zap.NewNop())
	reg := registry.New(caps, client, nil, cfg, zap.NewNop())
	server := NewServer(reg, nil, rl, zap.NewNop())

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	api := httptest.NewServer(mux)
	t.Cleanup(api.Close)
	return api, gw
}

func doJSON(t *testing.T, api *httptest.Server, method, path, tenant, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, api.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
		req.Header.Set("X-User-ID", "user-1")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestExecuteTaskRequiresTenant(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{})

	resp, _ := doJSON(t, api, http.MethodPost, "/api/v1/tasks", "", `{"mode":"single","capability_ids":["blog_writer"],"input":"x"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without tenant header, got %d", resp.StatusCode)
	}
}

func TestExecuteTaskEndToEnd(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{})

	resp, out := doJSON(t, api, http.MethodPost, "/api/v1/tasks", "tenant-1",
		`{"mode":"single","capability_ids":["blog_writer"],"input":"Write about spring"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, out)
	}
	if out["success"] != true {
		t.Errorf("expected success, got %v", out)
	}
	results, _ := out["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %v", out["results"])
	}
	first := results[0].(map[string]interface{})
	if first["capability_id"] != "blog_writer" || first["success"] != true {
		t.Errorf("unexpected result: %v", first)
	}
	suggestions, _ := first["suggestions"].([]interface{})
	if len(suggestions) != 2 {
		t.Errorf("expected parsed suggestions, got %v", suggestions)
	}
}

func TestIntentRoute(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{})

	resp, out := doJSON(t, api, http.MethodPost, "/api/v1/intent", "", `{"text":"write a blog post"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if out["primary_capability"] != "blog_writer" {
		t.Errorf("unexpected intent: %v", out)
	}
}

func TestCapabilitiesRoute(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{})

	resp, out := doJSON(t, api, http.MethodGet, "/api/v1/capabilities", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	caps, _ := out["capabilities"].([]interface{})
	if len(caps) != 2 {
		t.Errorf("expected 2 capabilities, got %v", out)
	}

	resp, out = doJSON(t, api, http.MethodGet, "/api/v1/capabilities?category=seo", "", "")
	caps, _ = out["capabilities"].([]interface{})
	if resp.StatusCode != http.StatusOK || len(caps) != 1 {
		t.Errorf("category filter failed: %v", out)
	}

	resp, _ = doJSON(t, api, http.MethodGet, "/api/v1/capabilities/blog_writer", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for known capability, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, api, http.MethodGet, "/api/v1/capabilities/nope", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown capability, got %d", resp.StatusCode)
	}
}

func TestSecretLifecycle(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{})

	// Malformed value rejected offline.
	resp, _ := doJSON(t, api, http.MethodPost, "/api/v1/secrets", "tenant-1",
		`{"service":"openai","keyType":"api_key","value":"short"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for malformed value, got %d", resp.StatusCode)
	}

	// Store a valid key.
	resp, _ = doJSON(t, api, http.MethodPost, "/api/v1/secrets", "tenant-1",
		`{"service":"openai","keyType":"api_key","value":"sk-tenant-key-0123456789"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// List returns it masked.
	resp, out := doJSON(t, api, http.MethodGet, "/api/v1/secrets", "tenant-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	secrets, _ := out["secrets"].([]interface{})
	if len(secrets) != 1 {
		t.Fatalf("expected 1 secret, got %v", out)
	}
	masked := secrets[0].(map[string]interface{})["maskedValue"].(string)
	if strings.Contains(masked, "tenant-key") {
		t.Errorf("raw value leaked in listing: %q", masked)
	}
	if !strings.HasPrefix(masked, "sk-t") || !strings.HasSuffix(masked, "6789") {
		t.Errorf("unexpected mask shape: %q", masked)
	}

	// Rotation with a value the validator rejects leaves the old one.
	resp, _ = doJSON(t, api, http.MethodPost, "/api/v1/secrets/rotate", "tenant-1",
		`{"service":"openai","keyType":"api_key","value":"sk-revoked-key-0123456789"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for failed rotation, got %d", resp.StatusCode)
	}

	// Delete.
	resp, _ = doJSON(t, api, http.MethodDelete, "/api/v1/secrets/openai/api_key", "tenant-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 on delete, got %d", resp.StatusCode)
	}
}

func TestSecretStrengthRoute(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{})

	resp, out := doJSON(t, api, http.MethodPost, "/api/v1/secrets/strength", "", `{"value":"aA1!aA1!aA1!aA1!aA1!aA1!aA1!aA1!"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	score, _ := out["score"].(float64)
	if score <= 50 {
		t.Errorf("unexpectedly low score: %v", score)
	}
}

func TestRateLimitRejects(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	resp, _ := doJSON(t, api, http.MethodGet, "/api/v1/secrets", "tenant-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request should pass, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, api, http.MethodGet, "/api/v1/secrets", "tenant-1", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}

	// Another tenant has its own bucket.
	resp, _ = doJSON(t, api, http.MethodGet, "/api/v1/secrets", "tenant-2", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("tenant buckets shared: got %d", resp.StatusCode)
	}
}

func TestHealthRoutes(t *testing.T) {
	api, _ := newTestAPI(t, config.RateLimitConfig{})

	resp, _ := doJSON(t, api, http.MethodGet, "/healthz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: got %d", resp.StatusCode)
	}
	resp, out := doJSON(t, api, http.MethodGet, "/readyz", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz: got %d: %v", resp.StatusCode, out)
	}
}
