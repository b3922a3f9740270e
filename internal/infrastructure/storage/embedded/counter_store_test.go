package embedded

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
)

func seedCounter(t *testing.T, store *CounterStore, prefix string, next int64) numbering.Key {
	t.Helper()
	c := numbering.NewCounter(id.New(), numbering.KindQuote, prefix, next)
	require.NoError(t, store.Create(context.Background(), c))
	return c.Key()
}

func TestCounterStore_IncrementAndGet(t *testing.T) {
	store := NewCounterStore(newTestTxManager(t))
	ctx := context.Background()
	key := seedCounter(t, store, "SQ-", 500)

	inc, err := store.IncrementAndGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(500), inc.Value)
	assert.Equal(t, "SQ-", inc.Prefix)

	c, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(501), c.NextNumber)
	assert.Equal(t, int64(500), c.HighWaterMark)
}

func TestCounterStore_ExhaustedCounterConsumesNothing(t *testing.T) {
	store := NewCounterStore(newTestTxManager(t))
	ctx := context.Background()
	key := seedCounter(t, store, "Q-", numbering.MaxNumber)

	inc, err := store.IncrementAndGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, numbering.MaxNumber, inc.Value)

	for i := 0; i < 2; i++ {
		_, err = store.IncrementAndGet(ctx, key)
		assert.ErrorIs(t, err, numbering.ErrCounterExhausted)
	}

	c, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, numbering.MaxNumber+1, c.NextNumber)
	assert.Equal(t, numbering.MaxNumber, c.HighWaterMark)
}

func TestCounterStore_UnknownKey(t *testing.T) {
	store := NewCounterStore(newTestTxManager(t))
	key := numbering.Key{LegalEntityID: id.New(), Kind: numbering.KindInvoice}

	_, err := store.IncrementAndGet(context.Background(), key)
	assert.ErrorIs(t, err, numbering.ErrCounterNotFound)

	_, err = store.Read(context.Background(), key)
	assert.ErrorIs(t, err, numbering.ErrCounterNotFound)
}

func TestCounterStore_ConcurrentIncrementsAreUnique(t *testing.T) {
	store := NewCounterStore(newTestTxManager(t))
	ctx := context.Background()
	key := seedCounter(t, store, "EST-", 1)

	const n = 200
	var (
		mu     sync.Mutex
		values []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			inc, err := store.IncrementAndGet(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			values = append(values, inc.Value)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	require.Len(t, values, n)
	for i, v := range values {
		assert.Equal(t, int64(i+1), v)
	}

	c, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), c.NextNumber)
	assert.Equal(t, int64(n), c.HighWaterMark)
	assert.Equal(t, 0, store.txm.locks.size())
}

func TestCounterStore_KeysAreIndependent(t *testing.T) {
	txm := newTestTxManager(t)
	store := NewCounterStore(txm)
	ctx := context.Background()
	a := seedCounter(t, store, "A-", 1)
	b := seedCounter(t, store, "B-", 1000)

	// Holding a's lock must not block b.
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := store.Lock(ctx, a); err != nil {
			return err
		}
		done := make(chan error, 1)
		go func() {
			_, err := store.IncrementAndGet(context.Background(), b)
			done <- err
		}()
		return <-done
	})
	require.NoError(t, err)

	ca, err := store.Read(ctx, a)
	require.NoError(t, err)
	cb, err := store.Read(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ca.NextNumber)
	assert.Equal(t, int64(1001), cb.NextNumber)
}

func TestCounterStore_RollbackReturnsNumber(t *testing.T) {
	txm := newTestTxManager(t)
	store := NewCounterStore(txm)
	ctx := context.Background()
	key := seedCounter(t, store, "INV-", 7)

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		inc, err := store.IncrementAndGet(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(7), inc.Value)
		return errors.New("document insert failed")
	})
	require.Error(t, err)

	inc, err := store.IncrementAndGet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inc.Value)
}

func TestCounterStore_LockThenWriteSeesOwnWrites(t *testing.T) {
	txm := newTestTxManager(t)
	store := NewCounterStore(txm)
	ctx := context.Background()
	key := seedCounter(t, store, "Q-", 1)

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		next := int64(2000)
		prefix := "QT-"
		if _, err := store.Write(ctx, key, numbering.CounterUpdate{NextNumber: &next}); err != nil {
			return err
		}
		c, err := store.Write(ctx, key, numbering.CounterUpdate{Prefix: &prefix})
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2000), c.NextNumber)
		assert.Equal(t, "QT-", c.Prefix)

		inc, err := store.IncrementAndGet(ctx, key)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2000), inc.Value)
		return nil
	})
	require.NoError(t, err)

	c, err := store.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2001), c.NextNumber)
	assert.Equal(t, int64(2000), c.HighWaterMark)
}

func TestCounterStore_LockRequiresTransaction(t *testing.T) {
	store := NewCounterStore(newTestTxManager(t))
	key := seedCounter(t, store, "Q-", 1)

	_, err := store.Lock(context.Background(), key)
	assert.Error(t, err)
}

func TestCounterStore_List(t *testing.T) {
	store := NewCounterStore(newTestTxManager(t))
	ctx := context.Background()
	leID := id.New()
	for _, k := range numbering.Kinds() {
		require.NoError(t, store.Create(ctx, numbering.NewCounter(leID, k, k.DefaultPrefix(), 1)))
	}

	counters, err := store.List(ctx, leID)
	require.NoError(t, err)
	require.Len(t, counters, 3)
	assert.Equal(t, numbering.KindQuote, counters[0].Kind)
	assert.Equal(t, numbering.KindCertificate, counters[2].Kind)
}
