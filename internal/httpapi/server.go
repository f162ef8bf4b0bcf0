// Package httpapi exposes the orchestration and credential surfaces over
// HTTP. Tenancy is carried on every request via the X-Tenant-ID header;
// X-User-ID identifies the acting user where one exists.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/config"
	"github.com/marketbeam/orchestrator/internal/db"
	"github.com/marketbeam/orchestrator/internal/metrics"
	"github.com/marketbeam/orchestrator/internal/registry"
	"github.com/marketbeam/orchestrator/internal/tracing"
)

// Server wires the API handlers to the instance registry.
type Server struct {
	registry *registry.Registry
	audit    *db.AuditWriter
	limiter  *tenantLimiter
	logger   *zap.Logger
}

// NewServer creates the API server. audit may be nil when the audit log
// is disabled.
func NewServer(reg *registry.Registry, audit *db.AuditWriter, cfg config.RateLimitConfig, logger *zap.Logger) *Server {
	return &Server{
		registry: reg,
		audit:    audit,
		limiter:  newTenantLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:   logger,
	}
}

// RegisterRoutes registers all API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/tasks", s.tenant("tasks", s.handleExecuteTask))
	mux.HandleFunc("POST /api/v1/messages", s.tenant("messages", s.handleMessage))
	mux.HandleFunc("POST /api/v1/intent", s.instrument("intent", s.handleIntent))

	mux.HandleFunc("GET /api/v1/capabilities", s.instrument("capabilities", s.handleListCapabilities))
	mux.HandleFunc("GET /api/v1/capabilities/{id}", s.instrument("capabilities", s.handleGetCapability))

	mux.HandleFunc("GET /api/v1/secrets", s.tenant("secrets", s.handleListSecrets))
	mux.HandleFunc("POST /api/v1/secrets", s.tenant("secrets", s.handleStoreSecret))
	mux.HandleFunc("DELETE /api/v1/secrets/{service}/{keyType}", s.tenant("secrets", s.handleDeleteSecret))
	mux.HandleFunc("POST /api/v1/secrets/test", s.tenant("secrets", s.handleTestSecret))
	mux.HandleFunc("POST /api/v1/secrets/rotate", s.tenant("secrets", s.handleRotateSecret))
	mux.HandleFunc("POST /api/v1/secrets/strength", s.instrument("secrets", s.handleSecretStrength))

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
}

// Start runs the API server on port in a background goroutine.
func Start(port int, s *Server, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Starting API server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
		}
	}()
	return srv
}

// tenantHandler receives the resolved tenant and user identity.
type tenantHandler func(w http.ResponseWriter, r *http.Request, tenantID, userID string)

// tenant wraps a handler with tenant extraction, rate limiting, and
// request instrumentation.
func (s *Server) tenant(route string, h tenantHandler) http.HandlerFunc {
	return s.instrument(route, func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		}
		if !s.limiter.Allow(tenantID) {
			metrics.RateLimitRejections.WithLabelValues(route).Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h(w, r, tenantID, r.Header.Get("X-User-ID"))
	})
}

// instrument wraps a handler with tracing, logging, and request metrics.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracing.StartHTTPSpan(r.Context(), r.Method, r.URL.Path)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r.WithContext(ctx))

		duration := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, fmt.Sprintf("%d", rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(duration.Seconds())
		s.logger.Debug("Handled request",
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
		)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness: the capability catalog must be loaded
// and, when configured, Redis and the audit database reachable.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if s.registry.Capabilities().Count() == 0 {
		checks["capabilities"] = "empty catalog"
		ready = false
	} else {
		checks["capabilities"] = "ok"
	}

	if sessions := s.registry.Sessions(); sessions != nil {
		if err := sessions.RedisWrapper().Ping(r.Context()).Err(); err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if s.audit != nil {
		if err := s.audit.Ping(r.Context()); err != nil {
			checks["audit_db"] = err.Error()
			ready = false
		} else {
			checks["audit_db"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"ready": ready, "checks": checks})
}
