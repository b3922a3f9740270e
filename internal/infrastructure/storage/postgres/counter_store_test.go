package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
)

func testKey() numbering.Key {
	return numbering.Key{LegalEntityID: id.New(), Kind: numbering.KindInvoice}
}

func TestCounterStore_IncrementIsSingleStatement(t *testing.T) {
	db := &fakeDB{row: &fakeRow{vals: []any{int64(1000), "EST-"}}}
	store := NewCounterStore(db)
	key := testKey()

	inc, err := store.IncrementAndGet(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inc.Value)
	assert.Equal(t, "EST-", inc.Prefix)

	require.Len(t, db.calls, 1)
	assert.Equal(t,
		"UPDATE numbering_counters SET next_number = next_number + 1, high_water_mark = next_number, updated_at = now() "+
			"WHERE document_kind = $1 AND legal_entity_id = $2 AND next_number <= $3 RETURNING high_water_mark, prefix",
		db.last().sql)
	assert.Equal(t, []any{numbering.KindInvoice, key.LegalEntityID, numbering.MaxNumber}, db.last().args)
}

func TestCounterStore_IncrementPastMaxNumberIsExhausted(t *testing.T) {
	key := testKey()
	exhausted := &fakeRow{vals: []any{
		key.LegalEntityID, key.Kind, "INV-", numbering.MaxNumber + 1, numbering.MaxNumber, time.Now(),
	}}
	db := &fakeDB{queued: []*fakeRow{{err: pgx.ErrNoRows}, exhausted}}
	store := NewCounterStore(db)

	_, err := store.IncrementAndGet(context.Background(), key)
	assert.ErrorIs(t, err, numbering.ErrCounterExhausted)
	assert.NotErrorIs(t, err, numbering.ErrStoreUnavailable)
	require.Len(t, db.calls, 2)
	assert.Contains(t, db.calls[1].sql, "SELECT")
}

func TestCounterStore_IncrementMissingCounter(t *testing.T) {
	store := NewCounterStore(&fakeDB{})

	_, err := store.IncrementAndGet(context.Background(), testKey())
	assert.ErrorIs(t, err, numbering.ErrCounterNotFound)
}

func TestCounterStore_DatabaseFailureIsStoreUnavailable(t *testing.T) {
	cause := errors.New("connection reset")
	store := NewCounterStore(&fakeDB{row: &fakeRow{err: cause}})

	_, err := store.IncrementAndGet(context.Background(), testKey())
	assert.ErrorIs(t, err, numbering.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestCounterStore_LockRequiresTransaction(t *testing.T) {
	db := &fakeDB{}
	store := NewCounterStore(db)

	_, err := store.Lock(context.Background(), testKey())
	require.Error(t, err)
	assert.Empty(t, db.calls)
}

func TestCounterStore_LockSelectsForUpdate(t *testing.T) {
	db := &fakeDB{inTx: true}
	store := NewCounterStore(db)

	_, err := store.Lock(context.Background(), testKey())
	assert.ErrorIs(t, err, numbering.ErrCounterNotFound)
	assert.Contains(t, db.last().sql, "FROM numbering_counters WHERE document_kind = $1 AND legal_entity_id = $2 FOR UPDATE")
}

func TestCounterStore_WriteOnlySetsGivenFields(t *testing.T) {
	db := &fakeDB{}
	store := NewCounterStore(db)
	next := int64(2000)

	_, _ = store.Write(context.Background(), testKey(), numbering.CounterUpdate{NextNumber: &next})

	sql := db.last().sql
	assert.Contains(t, sql, "next_number = $")
	assert.NotContains(t, sql, "prefix = $")
	assert.NotContains(t, sql, "high_water_mark = $")
	assert.Contains(t, sql, "RETURNING legal_entity_id, document_kind, prefix, next_number, high_water_mark, updated_at")
}

func TestCounterStore_CreateDuplicate(t *testing.T) {
	store := NewCounterStore(&fakeDB{execErr: &pgconn.PgError{Code: pgUniqueViolation}})

	err := store.Create(context.Background(), numbering.NewCounter(id.New(), numbering.KindQuote, "Q-", 1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, numbering.ErrStoreUnavailable)
}
