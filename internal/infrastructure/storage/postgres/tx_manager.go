package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"opsdesk/internal/core/tx"
	"opsdesk/pkg/logger"
)

var tracer = otel.Tracer("opsdesk/postgres")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// IsolationLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted
	IsolationLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly
	AccessMode pgx.TxAccessMode

	// StatementTimeout protects against long-running queries (default 30s)
	StatementTimeout time.Duration
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel:   pgx.ReadCommitted,
		AccessMode:       pgx.ReadWrite,
		StatementTimeout: 30 * time.Second,
	}
}

// TxManagerConfig tunes the transaction manager.
type TxManagerConfig struct {
	// MaxAttempts bounds how often an outermost transaction is re-run after
	// a serialization failure or deadlock (default 5).
	MaxAttempts int

	// StatementTimeout overrides DefaultTxOptions().StatementTimeout when set.
	StatementTimeout time.Duration

	// OnRetry is called before every re-run.
	OnRetry func()
}

// TxManager manages database transactions with support for:
// - Nested calls joining the outermost transaction
// - Statement timeout protection
// - Re-running the outermost transaction on serialization failure
// - Distributed tracing integration
type TxManager struct {
	pool *pgxpool.Pool
	cfg  TxManagerConfig
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *Pool, cfg TxManagerConfig) *TxManager {
	return NewTxManagerFromRawPool(pool.Pool, cfg)
}

// NewTxManagerFromRawPool creates a new transaction manager from raw pgxpool.Pool.
func NewTxManagerFromRawPool(pool *pgxpool.Pool, cfg TxManagerConfig) *TxManager {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	return &TxManager{pool: pool, cfg: cfg}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx wraps the pgx.Tx carried in context.
type Tx struct {
	pgx.Tx
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it will be reused.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, m.defaultOptions(), fn)
}

func (m *TxManager) defaultOptions() TxOptions {
	opts := DefaultTxOptions()
	if m.cfg.StatementTimeout > 0 {
		opts.StatementTimeout = m.cfg.StatementTimeout
	}
	return opts
}

// InTransaction implements tx.Manager.
func (m *TxManager) InTransaction(ctx context.Context) bool {
	return m.GetTx(ctx) != nil
}

// RunInTransactionWithOptions executes fn with custom transaction options.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	// Start tracing span
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsolationLevel)),
		))
	defer span.End()

	// Nested calls join the outer transaction; its options win.
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	attempts := 0
	op := func() error {
		attempts++
		err := m.startNewTransaction(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			if attempts < m.cfg.MaxAttempts && m.cfg.OnRetry != nil {
				m.cfg.OnRetry()
			}
			logger.Debug(ctx, "transaction serialization failure, retrying", "attempt", attempts, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, m.retryPolicy(ctx))
}

func (m *TxManager) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 5 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(m.cfg.MaxAttempts-1)), ctx)
}

// startNewTransaction begins a new database transaction.
func (m *TxManager) startNewTransaction(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   opts.IsolationLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Set statement timeout for protection against runaway queries
	if opts.StatementTimeout > 0 {
		_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds()))
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	// Store transaction in context
	wrappedTx := &Tx{Tx: tx}
	txCtx := context.WithValue(ctx, txKey{}, wrappedTx)

	// Execute function
	if err := m.executeWithRollbackProtection(txCtx, tx, fn); err != nil {
		return err
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// executeWithRollbackProtection runs fn and handles rollback on error.
// Context cancellation is handled by pgx internally - no goroutine needed.
func (m *TxManager) executeWithRollbackProtection(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		// Use background context for rollback to ensure it completes
		// even if the original context was cancelled
		if rbErr := tx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}
	return nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx
	}
	return nil
}

// Querier is satisfied by both pgx.Tx and the pool, so repositories work
// inside and outside transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns appropriate querier for context.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if tx := m.GetTx(ctx); tx != nil {
		return tx.Tx
	}
	return m.pool
}

// QuerierProvider hands out the querier for a context.
type QuerierProvider interface {
	GetQuerier(ctx context.Context) Querier
	InTransaction(ctx context.Context) bool
}

// Ping checks database connectivity.
func (m *TxManager) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}
