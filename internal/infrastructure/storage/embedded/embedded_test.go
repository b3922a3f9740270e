package embedded

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestTxManager(t *testing.T) *TxManager {
	t.Helper()
	return NewTxManager(openTestDB(t), DefaultTxOptions())
}
