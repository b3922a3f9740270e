package embedded

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"opsdesk/internal/core/tx"
	"opsdesk/pkg/logger"
)

var tracer = otel.Tracer("opsdesk/embedded")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// TxOptions configures transaction behavior.
type TxOptions struct {
	// MaxAttempts bounds how often an outermost transaction is re-run after
	// badger.ErrConflict (default 10).
	MaxAttempts int

	// OnRetry is called before every re-run.
	OnRetry func()
}

// DefaultTxOptions returns production-safe defaults.
func DefaultTxOptions() TxOptions {
	return TxOptions{MaxAttempts: 10}
}

// TxManager runs functions inside badger read-write transactions carried by
// context. Nested calls reuse the outer transaction.
type TxManager struct {
	db    *badger.DB
	locks *keyLocks
	opts  TxOptions
}

// NewTxManager creates a new transaction manager.
func NewTxManager(db *badger.DB, opts TxOptions) *TxManager {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultTxOptions().MaxAttempts
	}
	return &TxManager{
		db:    db,
		locks: newKeyLocks(),
		opts:  opts,
	}
}

// txKey is the context key for active transaction.
type txKey struct{}

// Tx wraps badger.Txn with the key locks it holds.
type Tx struct {
	*badger.Txn
	// held maps locked keys to their release funcs.
	held map[string]func()
	// dirty holds locked keys this transaction has written.
	dirty map[string]struct{}
}

func (t *Tx) releaseAll() {
	for k, release := range t.held {
		release()
		delete(t.held, k)
	}
}

// DB returns the underlying database.
func (m *TxManager) DB() *badger.DB {
	return m.db
}

// InTransaction implements tx.Manager.
func (m *TxManager) InTransaction(ctx context.Context) bool {
	return m.GetTx(ctx) != nil
}

// GetTx returns the current transaction from context, or nil if none.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// RunInTransaction executes fn within a transaction.
// If a transaction already exists in ctx, it will be reused.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(attribute.String("tx.backend", "badger")))
	defer span.End()

	attempts := 0
	op := func() error {
		attempts++
		err := m.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, badger.ErrConflict) {
			if attempts < m.opts.MaxAttempts && m.opts.OnRetry != nil {
				m.opts.OnRetry()
			}
			logger.Debug(ctx, "transaction conflict, retrying", "attempt", attempts)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(op, m.retryPolicy(ctx))
	if err != nil && errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("transaction conflict after %d attempts: %w", attempts, err)
	}
	return err
}

func (m *TxManager) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 2 * time.Millisecond
	eb.MaxInterval = 100 * time.Millisecond
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(m.opts.MaxAttempts-1)), ctx)
}

// runOnce runs fn in a fresh transaction. Key locks are released only after
// commit or discard.
func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	t := &Tx{
		Txn:   m.db.NewTransaction(true),
		held:  make(map[string]func()),
		dirty: make(map[string]struct{}),
	}
	defer func() {
		t.Discard()
		t.releaseAll()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// lockKey takes the exclusive lock of key for the rest of t.
func (m *TxManager) lockKey(ctx context.Context, t *Tx, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	release, err := m.locks.acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	t.held[key] = release
	return nil
}

// view runs fn against the context transaction, or a read-only one.
func (m *TxManager) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if t := m.GetTx(ctx); t != nil {
		return fn(t.Txn)
	}
	return m.db.View(fn)
}

// update runs fn inside the context transaction, opening one if needed.
func (m *TxManager) update(ctx context.Context, fn func(ctx context.Context, t *Tx) error) error {
	return m.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx, m.GetTx(ctx))
	})
}

// Ping checks that the database accepts reads.
func (m *TxManager) Ping(ctx context.Context) error {
	if m.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return m.db.View(func(*badger.Txn) error { return nil })
}
