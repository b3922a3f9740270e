// Package tx provides transaction management abstractions.
// Domain services depend on Manager; postgres and embedded (badger)
// implementations live in infrastructure/storage.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context. Outermost
	// calls may re-run fn when the backend reports a retryable conflict, so
	// fn must not have side effects outside the transaction.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// InTransaction reports whether ctx already carries an open transaction.
	InTransaction(ctx context.Context) bool
}
