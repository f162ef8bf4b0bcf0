// Package registry hands out per-tenant broker and per-tenant-and-user
// orchestrator instances. Instances are created on first use and cached;
// all state is held by this object and injected at startup, never ambient.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/capability"
	"github.com/marketbeam/orchestrator/internal/completion"
	"github.com/marketbeam/orchestrator/internal/config"
	"github.com/marketbeam/orchestrator/internal/credentials"
	"github.com/marketbeam/orchestrator/internal/orchestration"
	"github.com/marketbeam/orchestrator/internal/session"
)

// Registry creates and caches tenant-scoped instances.
type Registry struct {
	capabilities *capability.Registry
	completion   *completion.Client
	sessions     *session.Manager
	cfg          *config.Config
	logger       *zap.Logger

	mu            sync.Mutex
	brokers       map[string]*credentials.Broker
	orchestrators map[string]*orchestration.Orchestrator
}

// New creates a registry. sessions may be nil.
func New(capabilities *capability.Registry, completionClient *completion.Client,
	sessions *session.Manager, cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{
		capabilities:  capabilities,
		completion:    completionClient,
		sessions:      sessions,
		cfg:           cfg,
		logger:        logger,
		brokers:       make(map[string]*credentials.Broker),
		orchestrators: make(map[string]*orchestration.Orchestrator),
	}
}

// Broker returns the tenant's credential broker, creating it on first use.
func (r *Registry) Broker(tenantID string) *credentials.Broker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.brokerLocked(tenantID)
}

func (r *Registry) brokerLocked(tenantID string) *credentials.Broker {
	if b, ok := r.brokers[tenantID]; ok {
		return b
	}

	timeout := r.cfg.Gateway.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b := credentials.NewBroker(
		tenantID,
		credentials.NewHTTPTenantStore(r.cfg.Gateway.TenantSecretsURL, timeout, r.logger),
		credentials.NewHTTPPlatformStore(r.cfg.Gateway.PlatformSecretsURL, timeout, r.logger),
		r.logger,
	)
	r.brokers[tenantID] = b
	r.logger.Debug("Created credential broker", zap.String("tenant_id", tenantID))
	return b
}

// Orchestrator returns the orchestrator for (tenantID, userID), creating
// it on first use. It shares the tenant's broker.
func (r *Registry) Orchestrator(tenantID, userID string) *orchestration.Orchestrator {
	key := tenantID + "|" + userID

	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orchestrators[key]; ok {
		return o
	}

	o := orchestration.New(
		tenantID,
		userID,
		r.capabilities,
		r.brokerLocked(tenantID),
		r.completion,
		r.sessions,
		r.cfg.Orchestrator,
		r.logger,
	)
	r.orchestrators[key] = o
	r.logger.Debug("Created orchestrator",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID))
	return o
}

// Capabilities exposes the shared capability catalog.
func (r *Registry) Capabilities() *capability.Registry { return r.capabilities }

// Sessions exposes the shared conversation manager; may be nil.
func (r *Registry) Sessions() *session.Manager { return r.sessions }
