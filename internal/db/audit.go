// Package db writes task execution audit rows to Postgres. Writing is
// asynchronous so a slow or unavailable database never blocks task
// execution; the queue is bounded and drops on overflow.
package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/circuitbreaker"
	"github.com/marketbeam/orchestrator/internal/config"
	"github.com/marketbeam/orchestrator/internal/orchestration"
)

const (
	queueSize    = 1024
	writeTimeout = 5 * time.Second
)

// AuditWriter persists task and capability audit records.
type AuditWriter struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger

	queue  chan *auditEntry
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup
}

type auditEntry struct {
	task         *TaskRecord
	capabilities []*CapabilityRecord
}

// NewAuditWriter connects to Postgres and starts the background writer.
func NewAuditWriter(cfg config.AuditConfig, logger *zap.Logger) (*AuditWriter, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	sqlxDB, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to audit database: %w", err)
	}
	sqlxDB.SetMaxOpenConns(10)
	sqlxDB.SetMaxIdleConns(5)
	sqlxDB.SetConnMaxLifetime(time.Hour)

	w := newAuditWriter(circuitbreaker.NewDatabaseWrapper(sqlxDB, logger), logger)
	return w, nil
}

func newAuditWriter(wrapper *circuitbreaker.DatabaseWrapper, logger *zap.Logger) *AuditWriter {
	w := &AuditWriter{
		db:     wrapper,
		logger: logger,
		queue:  make(chan *auditEntry, queueSize),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// RecordTask enqueues audit rows for a completed task. Never blocks: if
// the queue is full the entry is dropped and counted in the log.
func (w *AuditWriter) RecordTask(task *orchestration.Task, result *orchestration.Result) {
	if task == nil || result == nil {
		return
	}

	now := time.Now()
	completed := now
	entry := &auditEntry{
		task: &TaskRecord{
			ID:          uuid.New(),
			TaskID:      result.TaskID,
			TenantID:    task.Context.TenantID,
			UserID:      task.Context.UserID,
			Mode:        string(task.Mode),
			Input:       task.Input,
			Response:    result.FinalResponse,
			Success:     result.Success,
			TotalTokens: result.TotalTokens,
			TotalCost:   result.TotalCostUSD,
			DurationMs:  result.Duration.Milliseconds(),
			StartedAt:   now.Add(-result.Duration),
			CompletedAt: &completed,
			CreatedAt:   now,
		},
	}
	for _, r := range result.Results {
		entry.capabilities = append(entry.capabilities, &CapabilityRecord{
			ID:           uuid.New(),
			TaskID:       result.TaskID,
			CapabilityID: r.CapabilityID,
			Success:      r.Success,
			TokensUsed:   r.TokensUsed,
			CostUSD:      r.CostUSD,
			DurationMs:   r.Duration.Milliseconds(),
			Error:        r.Error,
			CreatedAt:    now,
		})
	}

	select {
	case w.queue <- entry:
	default:
		w.logger.Warn("Audit queue full, dropping task record",
			zap.String("task_id", result.TaskID))
	}
}

func (w *AuditWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case entry := <-w.queue:
			w.write(entry)
		case <-w.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case entry := <-w.queue:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) write(entry *auditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := w.saveTask(ctx, entry.task); err != nil {
		w.logger.Warn("Failed to write task audit row",
			zap.String("task_id", entry.task.TaskID),
			zap.Error(err))
		return
	}
	for _, rec := range entry.capabilities {
		if err := w.saveCapability(ctx, rec); err != nil {
			w.logger.Warn("Failed to write capability audit row",
				zap.String("task_id", rec.TaskID),
				zap.String("capability_id", rec.CapabilityID),
				zap.Error(err))
		}
	}
}

func (w *AuditWriter) saveTask(ctx context.Context, rec *TaskRecord) error {
	query := `
		INSERT INTO task_executions (
			id, task_id, tenant_id, user_id, mode, input, response, success,
			total_tokens, total_cost_usd, duration_ms, metadata,
			started_at, completed_at, created_at
		) VALUES (
			:id, :task_id, :tenant_id, :user_id, :mode, :input, :response, :success,
			:total_tokens, :total_cost_usd, :duration_ms, :metadata,
			:started_at, :completed_at, :created_at
		)
		ON CONFLICT (task_id) DO UPDATE SET
			response = EXCLUDED.response,
			success = EXCLUDED.success,
			total_tokens = EXCLUDED.total_tokens,
			total_cost_usd = EXCLUDED.total_cost_usd,
			duration_ms = EXCLUDED.duration_ms,
			completed_at = EXCLUDED.completed_at`

	_, err := w.db.NamedExecContext(ctx, query, rec)
	return err
}

func (w *AuditWriter) saveCapability(ctx context.Context, rec *CapabilityRecord) error {
	query := `
		INSERT INTO capability_executions (
			id, task_id, capability_id, success, tokens_used, cost_usd,
			duration_ms, error, created_at
		) VALUES (
			:id, :task_id, :capability_id, :success, :tokens_used, :cost_usd,
			:duration_ms, :error, :created_at
		)`

	_, err := w.db.NamedExecContext(ctx, query, rec)
	return err
}

// Flush blocks until the queue is empty. Intended for tests and shutdown.
func (w *AuditWriter) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for len(w.queue) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// Close stops the writer, draining queued entries first.
func (w *AuditWriter) Close() error {
	w.closed.Do(func() { close(w.done) })
	w.wg.Wait()
	return w.db.Close()
}

// Ping verifies database connectivity.
func (w *AuditWriter) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}
