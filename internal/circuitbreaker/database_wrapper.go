package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DatabaseWrapper wraps the sqlx operations the audit writer uses.
type DatabaseWrapper struct {
	db *sqlx.DB
	b  *Breaker
}

// NewDatabaseWrapper creates a database wrapper with breaker and metrics.
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	b := New("postgres", instrument("postgres", "audit-log", DatabaseConfig()), logger)
	return &DatabaseWrapper{db: db, b: b}
}

// ExecContext wraps sqlx ExecContext.
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := dw.b.Execute(ctx, func() error {
		var execErr error
		res, execErr = dw.db.ExecContext(ctx, query, args...)
		return execErr
	})
	recordRequest("postgres", "audit-log", err == nil)
	return res, err
}

// NamedExecContext wraps sqlx NamedExecContext.
func (dw *DatabaseWrapper) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	var res sql.Result
	err := dw.b.Execute(ctx, func() error {
		var execErr error
		res, execErr = dw.db.NamedExecContext(ctx, query, arg)
		return execErr
	})
	recordRequest("postgres", "audit-log", err == nil)
	return res, err
}

// PingContext wraps database ping for health checks.
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	err := dw.b.Execute(ctx, func() error {
		return dw.db.PingContext(ctx)
	})
	recordRequest("postgres", "audit-log", err == nil)
	return err
}

// Breaker exposes the underlying breaker for health reporting.
func (dw *DatabaseWrapper) Breaker() *Breaker { return dw.b }

// Close closes the underlying database handle.
func (dw *DatabaseWrapper) Close() error { return dw.db.Close() }
