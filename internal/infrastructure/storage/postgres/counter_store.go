package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
)

const counterTable = "numbering_counters"

var counterColumns = ExtractDBColumns[numbering.Counter]()

// CounterStore implements numbering.CounterStore on PostgreSQL.
//
// IncrementAndGet is a single UPDATE ... RETURNING: the row lock it takes is
// the per-key serialization point, and it is held until the enclosing
// transaction ends.
type CounterStore struct {
	db QuerierProvider
}

var _ numbering.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates a counter store.
func NewCounterStore(db QuerierProvider) *CounterStore {
	return &CounterStore{db: db}
}

func (s *CounterStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func whereKey(key numbering.Key) sq.Eq {
	return sq.Eq{"legal_entity_id": key.LegalEntityID, "document_kind": key.Kind}
}

func scanCounter(row pgx.Row) (numbering.Counter, error) {
	var c numbering.Counter
	err := row.Scan(&c.LegalEntityID, &c.Kind, &c.Prefix, &c.NextNumber, &c.HighWaterMark, &c.UpdatedAt)
	return c, err
}

// queryCounter runs a statement returning counterColumns for one row.
func (s *CounterStore) queryCounter(ctx context.Context, op string, b sq.Sqlizer) (numbering.Counter, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return numbering.Counter{}, fmt.Errorf("build %s query: %w", op, err)
	}
	c, err := scanCounter(s.db.GetQuerier(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return numbering.Counter{}, numbering.ErrCounterNotFound
	}
	if err != nil {
		return numbering.Counter{}, storeErr(op, err)
	}
	return c, nil
}

// Create implements numbering.CounterStore.
func (s *CounterStore) Create(ctx context.Context, c numbering.Counter) error {
	query, args, err := s.builder().
		Insert(counterTable).
		Columns("legal_entity_id", "document_kind", "prefix", "next_number", "high_water_mark", "updated_at").
		Values(c.LegalEntityID, c.Kind, c.Prefix, c.NextNumber, c.HighWaterMark, sq.Expr("now()")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build create counter query: %w", err)
	}
	if _, err := s.db.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("counter %s already exists", c.Key())
		}
		return storeErr("create counter", err)
	}
	return nil
}

// incrementQuery consumes next_number and records it as the high-water mark.
// On the right-hand side of SET every column reference sees the old row.
func (s *CounterStore) incrementQuery(key numbering.Key) sq.UpdateBuilder {
	return s.builder().
		Update(counterTable).
		Set("next_number", sq.Expr("next_number + 1")).
		Set("high_water_mark", sq.Expr("next_number")).
		Set("updated_at", sq.Expr("now()")).
		Where(whereKey(key)).
		Where(sq.LtOrEq{"next_number": numbering.MaxNumber}).
		Suffix("RETURNING high_water_mark, prefix")
}

// IncrementAndGet implements numbering.CounterStore.
func (s *CounterStore) IncrementAndGet(ctx context.Context, key numbering.Key) (numbering.Increment, error) {
	query, args, err := s.incrementQuery(key).ToSql()
	if err != nil {
		return numbering.Increment{}, fmt.Errorf("build increment query: %w", err)
	}

	var inc numbering.Increment
	err = s.db.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&inc.Value, &inc.Prefix)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the key is unknown or the bound in the WHERE clause held.
		if _, rerr := s.Read(ctx, key); rerr != nil {
			return numbering.Increment{}, rerr
		}
		return numbering.Increment{}, numbering.ErrCounterExhausted
	}
	if err != nil {
		return numbering.Increment{}, storeErr("increment counter", err)
	}
	return inc, nil
}

func (s *CounterStore) selectQuery(key numbering.Key) sq.SelectBuilder {
	return s.builder().Select(counterColumns...).From(counterTable).Where(whereKey(key))
}

// Read implements numbering.CounterStore.
func (s *CounterStore) Read(ctx context.Context, key numbering.Key) (numbering.Counter, error) {
	return s.queryCounter(ctx, "read counter", s.selectQuery(key))
}

// Lock implements numbering.CounterStore.
func (s *CounterStore) Lock(ctx context.Context, key numbering.Key) (numbering.Counter, error) {
	if !s.db.InTransaction(ctx) {
		return numbering.Counter{}, errors.New("Lock requires a transaction")
	}
	return s.queryCounter(ctx, "lock counter", s.selectQuery(key).Suffix("FOR UPDATE"))
}

// Write implements numbering.CounterStore.
func (s *CounterStore) Write(ctx context.Context, key numbering.Key, upd numbering.CounterUpdate) (numbering.Counter, error) {
	b := s.builder().
		Update(counterTable).
		Set("updated_at", sq.Expr("now()")).
		Where(whereKey(key)).
		Suffix("RETURNING " + strings.Join(counterColumns, ", "))
	if upd.Prefix != nil {
		b = b.Set("prefix", *upd.Prefix)
	}
	if upd.NextNumber != nil {
		b = b.Set("next_number", *upd.NextNumber)
	}
	if upd.HighWaterMark != nil {
		b = b.Set("high_water_mark", *upd.HighWaterMark)
	}
	return s.queryCounter(ctx, "write counter", b)
}

// List implements numbering.CounterStore.
func (s *CounterStore) List(ctx context.Context, legalEntityID id.ID) ([]numbering.Counter, error) {
	query, args, err := s.builder().
		Select(counterColumns...).
		From(counterTable).
		Where(sq.Eq{"legal_entity_id": legalEntityID}).
		OrderBy("document_kind").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list counters query: %w", err)
	}

	var out []numbering.Counter
	if err := pgxscan.Select(ctx, s.db.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, storeErr("list counters", err)
	}
	return out, nil
}
