package numbering

import (
	"context"

	"opsdesk/internal/core/id"
)

// MockCounterStore is a test implementation of CounterStore.
// Unset funcs return ErrCounterNotFound.
type MockCounterStore struct {
	CreateFunc          func(ctx context.Context, c Counter) error
	IncrementAndGetFunc func(ctx context.Context, key Key) (Increment, error)
	ReadFunc            func(ctx context.Context, key Key) (Counter, error)
	LockFunc            func(ctx context.Context, key Key) (Counter, error)
	WriteFunc           func(ctx context.Context, key Key, upd CounterUpdate) (Counter, error)
	ListFunc            func(ctx context.Context, legalEntityID id.ID) ([]Counter, error)
}

// Create implements CounterStore.
func (m *MockCounterStore) Create(ctx context.Context, c Counter) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	return nil
}

// IncrementAndGet implements CounterStore.
func (m *MockCounterStore) IncrementAndGet(ctx context.Context, key Key) (Increment, error) {
	if m.IncrementAndGetFunc != nil {
		return m.IncrementAndGetFunc(ctx, key)
	}
	return Increment{}, ErrCounterNotFound
}

// Read implements CounterStore.
func (m *MockCounterStore) Read(ctx context.Context, key Key) (Counter, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, key)
	}
	return Counter{}, ErrCounterNotFound
}

// Lock implements CounterStore.
func (m *MockCounterStore) Lock(ctx context.Context, key Key) (Counter, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, key)
	}
	return Counter{}, ErrCounterNotFound
}

// Write implements CounterStore.
func (m *MockCounterStore) Write(ctx context.Context, key Key, upd CounterUpdate) (Counter, error) {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, key, upd)
	}
	return Counter{}, ErrCounterNotFound
}

// List implements CounterStore.
func (m *MockCounterStore) List(ctx context.Context, legalEntityID id.ID) ([]Counter, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, legalEntityID)
	}
	return nil, nil
}

// Ensure compile-time interface compliance.
var _ CounterStore = (*MockCounterStore)(nil)
