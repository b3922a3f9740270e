package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsdesk/internal/core/id"
)

var (
	// ErrCounterNotFound is returned when no counter exists for a key.
	ErrCounterNotFound = errors.New("counter not found")

	// ErrStoreUnavailable marks durable storage failures. A failed increment
	// never consumes a number.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrCounterExhausted is returned by IncrementAndGet once MaxNumber has
	// been issued. Nothing is consumed.
	ErrCounterExhausted = errors.New("counter exhausted")
)

// Key scopes a counter to one legal entity and one document kind.
type Key struct {
	LegalEntityID id.ID
	Kind          Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.LegalEntityID, k.Kind)
}

// Counter is the persisted numbering state of a key.
type Counter struct {
	LegalEntityID id.ID     `db:"legal_entity_id" json:"legalEntityId"`
	Kind          Kind      `db:"document_kind" json:"documentKind"`
	Prefix        string    `db:"prefix" json:"prefix"`
	NextNumber    int64     `db:"next_number" json:"nextNumber"`
	HighWaterMark int64     `db:"high_water_mark" json:"highWaterMark"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Key returns the counter's key.
func (c Counter) Key() Key {
	return Key{LegalEntityID: c.LegalEntityID, Kind: c.Kind}
}

// NewCounter returns a fresh counter. nextNumber below 1 becomes 1.
func NewCounter(legalEntityID id.ID, kind Kind, prefix string, nextNumber int64) Counter {
	if nextNumber < 1 {
		nextNumber = 1
	}
	return Counter{
		LegalEntityID: legalEntityID,
		Kind:          kind,
		Prefix:        prefix,
		NextNumber:    nextNumber,
		UpdatedAt:     time.Now().UTC(),
	}
}

// CounterUpdate is a partial overwrite. Nil fields are left untouched.
type CounterUpdate struct {
	Prefix     *string
	NextNumber *int64
	// HighWaterMark is only raised by legacy reconciliation.
	HighWaterMark *int64
}

// Increment is the result of one atomic allocation step.
type Increment struct {
	// Value is the consumed number (the pre-increment nextNumber).
	Value int64
	// Prefix is read in the same atomic step as the increment.
	Prefix string
}

// CounterStore is the durable, transactional home of counters.
//
// When ctx carries a transaction (see tx.Manager), every method joins it.
// The store performs no business validation.
type CounterStore interface {
	// Create seeds a counter. Used when a legal entity is created.
	Create(ctx context.Context, c Counter) error

	// IncrementAndGet atomically persists nextNumber+1 and highWaterMark=nextNumber,
	// returning the consumed value. Linearizable per key; callers on other keys
	// never wait on each other. A counter past MaxNumber yields
	// ErrCounterExhausted and is left unchanged.
	IncrementAndGet(ctx context.Context, key Key) (Increment, error)

	// Read returns a read-committed snapshot of the counter.
	Read(ctx context.Context, key Key) (Counter, error)

	// Lock reads the counter and holds a write lock on the key until the
	// enclosing transaction ends. Must be called inside a transaction.
	Lock(ctx context.Context, key Key) (Counter, error)

	// Write unconditionally overwrites the given fields.
	Write(ctx context.Context, key Key, upd CounterUpdate) (Counter, error)

	// List returns all counters of a legal entity ordered by kind.
	List(ctx context.Context, legalEntityID id.ID) ([]Counter, error)
}
