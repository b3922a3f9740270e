package embedded

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTransaction_CommitAndRollback(t *testing.T) {
	txm := newTestTxManager(t)
	ctx := context.Background()

	require.NoError(t, txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return txm.GetTx(ctx).Set([]byte("k1"), []byte("v1"))
	}))

	boom := errors.New("boom")
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, txm.GetTx(ctx).Set([]byte("k2"), []byte("v2")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, txm.DB().View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("k1"))
		require.NoError(t, err)
		_, err = txn.Get([]byte("k2"))
		assert.ErrorIs(t, err, badger.ErrKeyNotFound)
		return nil
	}))
}

func TestRunInTransaction_NestedReusesOuter(t *testing.T) {
	txm := newTestTxManager(t)
	ctx := context.Background()

	err := txm.RunInTransaction(ctx, func(outer context.Context) error {
		assert.True(t, txm.InTransaction(outer))
		return txm.RunInTransaction(outer, func(inner context.Context) error {
			assert.Same(t, txm.GetTx(outer), txm.GetTx(inner))
			return nil
		})
	})
	require.NoError(t, err)
	assert.False(t, txm.InTransaction(ctx))
}

func TestRunInTransaction_RetriesConflict(t *testing.T) {
	var retries atomic.Int32
	txm := NewTxManager(openTestDB(t), TxOptions{
		MaxAttempts: 5,
		OnRetry:     func() { retries.Add(1) },
	})
	ctx := context.Background()

	attempts := 0
	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		attempts++
		txn := txm.GetTx(ctx)
		if _, err := txn.Get([]byte("hot")); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if attempts == 1 {
			// A concurrent writer commits the key read above.
			require.NoError(t, txm.DB().Update(func(other *badger.Txn) error {
				return other.Set([]byte("hot"), []byte("theirs"))
			}))
		}
		return txn.Set([]byte("hot"), []byte("ours"))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int32(1), retries.Load())
}

func TestRunInTransaction_ReleasesKeyLocks(t *testing.T) {
	txm := newTestTxManager(t)
	ctx := context.Background()

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, txm.lockKey(ctx, txm.GetTx(ctx), "ctr/a"))
		require.NoError(t, txm.lockKey(ctx, txm.GetTx(ctx), "ctr/a"))
		assert.Equal(t, 1, txm.locks.size())
		return errors.New("rollback")
	})
	require.Error(t, err)
	assert.Equal(t, 0, txm.locks.size())
}

func TestKeyLocks_AcquireHonoursContext(t *testing.T) {
	locks := newKeyLocks()
	release, err := locks.acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locks.acquire(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)

	release()
	release()
	assert.Equal(t, 0, locks.size())
}
