// Package session persists conversation threads in Redis with a local
// LRU cache. All keys are tenant-prefixed so one tenant can never read
// another tenant's conversations.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/circuitbreaker"
	"github.com/marketbeam/orchestrator/internal/metrics"
)

// Manager handles conversation storage with a Redis backend.
type Manager struct {
	client  *circuitbreaker.RedisWrapper
	logger  *zap.Logger
	ttl     time.Duration
	mu      sync.RWMutex
	local   map[string]*Conversation
	access  map[string]time.Time
	maxSize int
}

// NewManager creates a conversation manager against redisAddr.
func NewManager(redisAddr string, logger *zap.Logger) (*Manager, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Manager{
		client:  client,
		logger:  logger,
		ttl:     24 * time.Hour,
		local:   make(map[string]*Conversation),
		access:  make(map[string]time.Time),
		maxSize: 10000,
	}, nil
}

// Create starts a new conversation for (tenantID, userID).
func (m *Manager) Create(ctx context.Context, tenantID, userID string, metadata map[string]interface{}) (*Conversation, error) {
	return m.CreateWithID(ctx, uuid.New().String(), tenantID, userID, metadata)
}

// CreateWithID starts a conversation with a caller-chosen ID. If the ID
// already exists for this tenant the existing conversation is returned;
// an ID held by a different user gets a fresh generated ID instead.
func (m *Manager) CreateWithID(ctx context.Context, conversationID, tenantID, userID string, metadata map[string]interface{}) (*Conversation, error) {
	existing, err := m.Get(ctx, tenantID, conversationID)
	if err == nil {
		if existing.UserID != userID {
			m.logger.Warn("Conversation ID owned by different user, generating new ID",
				zap.String("requested_conversation_id", conversationID),
				zap.String("requesting_user", userID),
			)
			conversationID = uuid.New().String()
		} else {
			return existing, nil
		}
	}

	now := time.Now()
	conv := &Conversation{
		ID:        conversationID,
		TenantID:  tenantID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Metadata:  metadata,
		History:   make([]Message, 0),
	}

	if err := m.save(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}

	m.cacheStore(conv)

	m.logger.Info("Created conversation",
		zap.String("conversation_id", conv.ID),
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
	)
	metrics.ConversationsCreated.Inc()
	return conv, nil
}

// Get retrieves a conversation. The tenant ID is part of the storage key,
// so a lookup under the wrong tenant misses by construction.
func (m *Manager) Get(ctx context.Context, tenantID, conversationID string) (*Conversation, error) {
	key := m.key(tenantID, conversationID)

	m.mu.RLock()
	if conv, ok := m.local[key]; ok {
		m.mu.RUnlock()
		metrics.ConversationCacheHits.Inc()
		if conv.IsExpired() {
			m.Delete(ctx, tenantID, conversationID)
			return nil, ErrConversationExpired
		}
		m.mu.Lock()
		m.access[key] = time.Now()
		m.mu.Unlock()
		return conv, nil
	}
	m.mu.RUnlock()
	metrics.ConversationCacheMisses.Inc()

	data, err := m.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrConversationNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if conv.IsExpired() {
		m.Delete(ctx, tenantID, conversationID)
		return nil, ErrConversationExpired
	}

	m.cacheStore(&conv)
	return &conv, nil
}

// Update persists a modified conversation.
func (m *Manager) Update(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation is nil")
	}
	conv.UpdatedAt = time.Now()

	if err := m.save(ctx, conv); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	m.mu.Lock()
	m.local[m.key(conv.TenantID, conv.ID)] = conv
	m.mu.Unlock()
	return nil
}

// Delete removes a conversation from Redis and the local cache.
func (m *Manager) Delete(ctx context.Context, tenantID, conversationID string) error {
	key := m.key(tenantID, conversationID)
	if err := m.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	m.mu.Lock()
	delete(m.local, key)
	delete(m.access, key)
	metrics.ConversationCacheSize.Set(float64(len(m.local)))
	m.mu.Unlock()

	m.logger.Info("Deleted conversation",
		zap.String("conversation_id", conversationID),
		zap.String("tenant_id", tenantID))
	return nil
}

// AddMessage appends a message to a conversation's history.
func (m *Manager) AddMessage(ctx context.Context, tenantID, conversationID string, msg Message) error {
	conv, err := m.Get(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	conv.AppendMessage(msg)
	return m.Update(ctx, conv)
}

// ListForTenant returns the tenant's live conversations.
func (m *Manager) ListForTenant(ctx context.Context, tenantID string) ([]*Conversation, error) {
	keys, err := m.client.Keys(ctx, m.key(tenantID, "*")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var out []*Conversation
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}
		if !conv.IsExpired() {
			out = append(out, &conv)
		}
	}
	return out, nil
}

func (m *Manager) key(tenantID, conversationID string) string {
	return fmt.Sprintf("conversation:%s:%s", tenantID, conversationID)
}

func (m *Manager) save(ctx context.Context, conv *Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	ttl := time.Until(conv.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, m.key(conv.TenantID, conv.ID), data, ttl).Err()
}

func (m *Manager) cacheStore(conv *Conversation) {
	m.mu.Lock()
	key := m.key(conv.TenantID, conv.ID)
	m.local[key] = conv
	m.access[key] = time.Now()
	m.evictLocked()
	metrics.ConversationCacheSize.Set(float64(len(m.local)))
	m.mu.Unlock()
}

// evictLocked drops the least recently used half of the cache once it
// exceeds maxSize. Caller holds m.mu.
func (m *Manager) evictLocked() {
	if len(m.local) <= m.maxSize {
		return
	}

	type accessEntry struct {
		key  string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.local))
	for key := range m.local {
		at, ok := m.access[key]
		if !ok {
			at = time.Time{}
		}
		entries = append(entries, accessEntry{key: key, time: at})
	}

	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.maxSize / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.local, entries[i].key)
		delete(m.access, entries[i].key)
		metrics.ConversationCacheEvictions.Inc()
	}
}

// Close closes the underlying Redis client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// RedisWrapper exposes the Redis circuit breaker wrapper for health checks.
func (m *Manager) RedisWrapper() *circuitbreaker.RedisWrapper {
	return m.client
}
