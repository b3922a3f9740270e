package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
)

// fakeRow scans fixed values into pointer destinations.
type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return errors.New("fakeRow: column count mismatch")
	}
	for i, d := range dest {
		if err := assign(d, r.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func assign(dest, val any) error {
	switch d := dest.(type) {
	case *int64:
		*d = val.(int64)
	case *string:
		*d = val.(string)
	case *id.ID:
		*d = val.(id.ID)
	case *numbering.Kind:
		*d = val.(numbering.Kind)
	case *time.Time:
		*d = val.(time.Time)
	default:
		return errors.New("fakeRow: unsupported destination")
	}
	return nil
}

type call struct {
	sql  string
	args []any
}

// fakeDB records statements. QueryRow pops queued first, then falls back
// to row.
type fakeDB struct {
	mu      sync.Mutex
	inTx    bool
	calls   []call
	queued  []*fakeRow
	row     *fakeRow
	execErr error
}

func (f *fakeDB) GetQuerier(context.Context) Querier { return f }

func (f *fakeDB) InTransaction(context.Context) bool { return f.inTx }

func (f *fakeDB) record(sql string, args []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{sql: sql, args: args})
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.record(sql, args)
	return pgconn.NewCommandTag("UPDATE 1"), f.execErr
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.record(sql, args)
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.record(sql, args)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queued) > 0 {
		r := f.queued[0]
		f.queued = f.queued[1:]
		return r
	}
	if f.row == nil {
		return &fakeRow{err: pgx.ErrNoRows}
	}
	return f.row
}

func (f *fakeDB) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}
