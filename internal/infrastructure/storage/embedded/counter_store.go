package embedded

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
)

// CounterStore implements numbering.CounterStore on badger.
//
// Every mutating method takes the key lock for the rest of the enclosing
// transaction and reads the latest committed value under that lock, so the
// read never comes from a snapshot older than the previous holder's commit.
type CounterStore struct {
	txm *TxManager
}

var _ numbering.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates a counter store.
func NewCounterStore(txm *TxManager) *CounterStore {
	return &CounterStore{txm: txm}
}

// Create implements numbering.CounterStore.
func (s *CounterStore) Create(ctx context.Context, c numbering.Counter) error {
	return s.txm.update(ctx, func(ctx context.Context, t *Tx) error {
		key := counterKey(c.Key())
		if err := s.txm.lockKey(ctx, t, key); err != nil {
			return storeErr("create counter", err)
		}
		found, err := exists(t.Txn, key)
		if err != nil {
			return storeErr("create counter", err)
		}
		if found {
			return fmt.Errorf("counter %s already exists", c.Key())
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = time.Now().UTC()
		}
		if err := setJSON(t.Txn, key, c); err != nil {
			return storeErr("create counter", err)
		}
		t.dirty[key] = struct{}{}
		return nil
	})
}

// IncrementAndGet implements numbering.CounterStore.
func (s *CounterStore) IncrementAndGet(ctx context.Context, key numbering.Key) (numbering.Increment, error) {
	var out numbering.Increment
	err := s.txm.update(ctx, func(ctx context.Context, t *Tx) error {
		k := counterKey(key)
		c, err := s.lockAndRead(ctx, t, k)
		if err != nil {
			return err
		}
		if c.NextNumber > numbering.MaxNumber {
			return numbering.ErrCounterExhausted
		}

		out = numbering.Increment{Value: c.NextNumber, Prefix: c.Prefix}
		c.HighWaterMark = c.NextNumber
		c.NextNumber++
		c.UpdatedAt = time.Now().UTC()

		return s.write(t, k, c)
	})
	return out, err
}

// Read implements numbering.CounterStore.
func (s *CounterStore) Read(ctx context.Context, key numbering.Key) (numbering.Counter, error) {
	var c numbering.Counter
	err := s.txm.view(ctx, func(txn *badger.Txn) error {
		return s.get(txn, counterKey(key), &c)
	})
	return c, err
}

// Lock implements numbering.CounterStore.
func (s *CounterStore) Lock(ctx context.Context, key numbering.Key) (numbering.Counter, error) {
	t := s.txm.GetTx(ctx)
	if t == nil {
		return numbering.Counter{}, errors.New("counter lock requires a transaction")
	}
	return s.lockAndRead(ctx, t, counterKey(key))
}

// Write implements numbering.CounterStore.
func (s *CounterStore) Write(ctx context.Context, key numbering.Key, upd numbering.CounterUpdate) (numbering.Counter, error) {
	var out numbering.Counter
	err := s.txm.update(ctx, func(ctx context.Context, t *Tx) error {
		k := counterKey(key)
		c, err := s.lockAndRead(ctx, t, k)
		if err != nil {
			return err
		}
		if upd.Prefix != nil {
			c.Prefix = *upd.Prefix
		}
		if upd.NextNumber != nil {
			c.NextNumber = *upd.NextNumber
		}
		if upd.HighWaterMark != nil {
			c.HighWaterMark = *upd.HighWaterMark
		}
		c.UpdatedAt = time.Now().UTC()
		out = c
		return s.write(t, k, c)
	})
	return out, err
}

// List implements numbering.CounterStore.
func (s *CounterStore) List(ctx context.Context, legalEntityID id.ID) ([]numbering.Counter, error) {
	out := make([]numbering.Counter, 0, len(numbering.Kinds()))
	err := s.txm.view(ctx, func(txn *badger.Txn) error {
		for _, kind := range numbering.Kinds() {
			var c numbering.Counter
			err := s.get(txn, counterKey(numbering.Key{LegalEntityID: legalEntityID, Kind: kind}), &c)
			if errors.Is(err, numbering.ErrCounterNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

// lockAndRead locks k for t and returns its latest value: t's own pending
// write when there is one, the latest committed value otherwise.
func (s *CounterStore) lockAndRead(ctx context.Context, t *Tx, k string) (numbering.Counter, error) {
	if err := s.txm.lockKey(ctx, t, k); err != nil {
		return numbering.Counter{}, storeErr("lock counter", err)
	}

	var c numbering.Counter
	if _, ok := t.dirty[k]; ok {
		return c, s.get(t.Txn, k, &c)
	}
	err := s.txm.db.View(func(txn *badger.Txn) error {
		return s.get(txn, k, &c)
	})
	return c, err
}

func (s *CounterStore) get(txn *badger.Txn, k string, c *numbering.Counter) error {
	err := getJSON(txn, k, c)
	if errors.Is(err, errNotFound) {
		return numbering.ErrCounterNotFound
	}
	if err != nil {
		return storeErr("read counter", err)
	}
	return nil
}

func (s *CounterStore) write(t *Tx, k string, c numbering.Counter) error {
	if err := setJSON(t.Txn, k, c); err != nil {
		return storeErr("write counter", err)
	}
	t.dirty[k] = struct{}{}
	return nil
}
