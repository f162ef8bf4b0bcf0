package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHTTPTenantStoreGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Tenant-ID"); got != "tenant-1" {
			t.Errorf("missing tenant header, got %q", got)
		}
		switch r.URL.Path {
		case "/openai/api_key":
			json.NewEncoder(w).Encode(map[string]string{"secret": "sk-live-key-0123456789ab"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := NewHTTPTenantStore(srv.URL, 5*time.Second, zap.NewNop())

	rec, err := store.Get(context.Background(), "tenant-1", "openai", "api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Value != "sk-live-key-0123456789ab" {
		t.Errorf("unexpected value: %q", rec.Value)
	}
	if !rec.IsValid {
		t.Error("bare secret shape should be treated as live")
	}
	if rec.TenantID != "tenant-1" || rec.Service != "openai" || rec.KeyType != "api_key" {
		t.Errorf("record identity not filled: %+v", rec)
	}

	if _, err := store.Get(context.Background(), "tenant-1", "openai", "webhook_secret"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPTenantStoreSetAndDelete(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewHTTPTenantStore(srv.URL, 5*time.Second, zap.NewNop())

	if err := store.Set(context.Background(), "tenant-1", "openai", "api_key", "sk-new-key-0123456789ab"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if gotMethod != http.MethodPost || gotBody["value"] != "sk-new-key-0123456789ab" {
		t.Errorf("unexpected set request: %s %v", gotMethod, gotBody)
	}

	if err := store.Delete(context.Background(), "tenant-1", "openai", "api_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/openai/api_key" {
		t.Errorf("unexpected delete request: %s %s", gotMethod, gotPath)
	}
}

func TestHTTPTenantStoreTest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/test" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"validation": map[string]interface{}{"valid": true, "score": 85},
		})
	}))
	defer srv.Close()

	store := NewHTTPTenantStore(srv.URL, 5*time.Second, zap.NewNop())
	result, err := store.Test(context.Background(), "tenant-1", "openai", "api_key", "sk-test-key-0123456789ab")
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if !result.Valid || result.Score != 85 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestHTTPPlatformStoreGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Tenant-ID") != "" {
			t.Error("platform store must not send a tenant header")
		}
		json.NewEncoder(w).Encode(map[string]string{"secret": "sk-platform-0123456789ab"})
	}))
	defer srv.Close()

	store := NewHTTPPlatformStore(srv.URL, 5*time.Second, zap.NewNop())
	rec, err := store.Get(context.Background(), "openai", "api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Value != "sk-platform-0123456789ab" || rec.TenantID != "" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestStoreSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewHTTPTenantStore(srv.URL, 5*time.Second, zap.NewNop())
	if _, err := store.Get(context.Background(), "tenant-1", "openai", "api_key"); err == nil {
		t.Error("expected error on 500")
	}
	if err := store.Set(context.Background(), "tenant-1", "openai", "api_key", "v"); err == nil {
		t.Error("expected error on 500")
	}
}
