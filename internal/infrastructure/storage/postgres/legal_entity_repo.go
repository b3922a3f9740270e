package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/domain/legalentity"
)

const legalEntityTable = "legal_entities"

// LegalEntityRepo implements legalentity.Repository on PostgreSQL.
type LegalEntityRepo struct {
	db      QuerierProvider
	columns []string
}

var _ legalentity.Repository = (*LegalEntityRepo)(nil)

// NewLegalEntityRepo creates a legal entity repository.
func NewLegalEntityRepo(db QuerierProvider) *LegalEntityRepo {
	return &LegalEntityRepo{
		db:      db,
		columns: ExtractDBColumns[legalentity.LegalEntity](),
	}
}

func (r *LegalEntityRepo) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (r *LegalEntityRepo) baseSelect() sq.SelectBuilder {
	return r.builder().Select(r.columns...).From(legalEntityTable)
}

// Create implements legalentity.Repository.
func (r *LegalEntityRepo) Create(ctx context.Context, e *legalentity.LegalEntity) error {
	query, args, err := r.builder().
		Insert(legalEntityTable).
		SetMap(StructToMap(e)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return apperror.NewDuplicate("legal entity", "id", e.ID.String())
		}
		return fmt.Errorf("insert legal entity: %w", err)
	}
	return nil
}

func (r *LegalEntityRepo) getOne(ctx context.Context, legalEntityID id.ID, b sq.SelectBuilder) (*legalentity.LegalEntity, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select query: %w", err)
	}
	var e legalentity.LegalEntity
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &e, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewEntityNotFound(legalEntityID)
		}
		return nil, fmt.Errorf("get legal entity: %w", err)
	}
	return &e, nil
}

// Get implements legalentity.Repository.
func (r *LegalEntityRepo) Get(ctx context.Context, legalEntityID id.ID) (*legalentity.LegalEntity, error) {
	return r.getOne(ctx, legalEntityID, r.baseSelect().Where(sq.Eq{"id": legalEntityID}))
}

// GetForShare implements legalentity.Repository. FOR SHARE blocks a
// concurrent archive until the allocating transaction commits.
func (r *LegalEntityRepo) GetForShare(ctx context.Context, legalEntityID id.ID) (*legalentity.LegalEntity, error) {
	if !r.db.InTransaction(ctx) {
		return nil, errors.New("GetForShare requires a transaction")
	}
	return r.getOne(ctx, legalEntityID,
		r.baseSelect().Where(sq.Eq{"id": legalEntityID}).Suffix("FOR SHARE"))
}

// List implements legalentity.Repository.
func (r *LegalEntityRepo) List(ctx context.Context, companyID id.ID) ([]*legalentity.LegalEntity, error) {
	query, args, err := r.baseSelect().
		Where(sq.Eq{"company_id": companyID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	var out []*legalentity.LegalEntity
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list legal entities: %w", err)
	}
	return out, nil
}

// Update implements legalentity.Repository.
func (r *LegalEntityRepo) Update(ctx context.Context, e *legalentity.LegalEntity) error {
	query, args, err := r.builder().
		Update(legalEntityTable).
		Set("display_name", e.DisplayName).
		Set("status", e.Status).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": e.ID, "version": e.Version}).
		Suffix("RETURNING version, updated_at, is_default").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}

	err = r.db.GetQuerier(ctx).QueryRow(ctx, query, args...).Scan(&e.Version, &e.UpdatedAt, &e.IsDefault)
	if pgxscan.NotFound(err) {
		if _, getErr := r.Get(ctx, e.ID); getErr != nil {
			return getErr
		}
		return apperror.NewConcurrentModification("legal_entity", e.ID)
	}
	if err != nil {
		return fmt.Errorf("update legal entity: %w", err)
	}
	return nil
}

// GetDefault implements legalentity.Repository.
func (r *LegalEntityRepo) GetDefault(ctx context.Context, companyID id.ID) (*legalentity.LegalEntity, error) {
	query, args, err := r.baseSelect().
		Where(sq.Eq{"company_id": companyID, "is_default": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build default query: %w", err)
	}
	var e legalentity.LegalEntity
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &e, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get default legal entity: %w", err)
	}
	return &e, nil
}

// SwapDefault implements legalentity.Repository.
//
// All company rows are locked in id order first, so concurrent swaps queue
// instead of deadlocking. The old default is cleared before the new one is
// set because the partial unique index on (company_id) WHERE is_default is
// checked per row.
func (r *LegalEntityRepo) SwapDefault(ctx context.Context, companyID, legalEntityID id.ID) error {
	if !r.db.InTransaction(ctx) {
		return errors.New("SwapDefault requires a transaction")
	}
	q := r.db.GetQuerier(ctx)

	query, args, err := r.builder().
		Select("id").
		From(legalEntityTable).
		Where(sq.Eq{"company_id": companyID}).
		OrderBy("id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock query: %w", err)
	}
	var ids []id.ID
	if err := pgxscan.Select(ctx, q, &ids, query, args...); err != nil {
		return fmt.Errorf("lock company legal entities: %w", err)
	}
	found := false
	for _, v := range ids {
		if v == legalEntityID {
			found = true
			break
		}
	}
	if !found {
		return apperror.NewEntityNotFound(legalEntityID)
	}

	stmts := []sq.UpdateBuilder{
		r.builder().Update(legalEntityTable).
			Set("is_default", false).
			Set("version", sq.Expr("version + 1")).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"company_id": companyID, "is_default": true}).
			Where(sq.NotEq{"id": legalEntityID}),
		r.builder().Update(legalEntityTable).
			Set("is_default", true).
			Set("version", sq.Expr("version + 1")).
			Set("updated_at", sq.Expr("now()")).
			Where(sq.Eq{"id": legalEntityID, "is_default": false}),
	}
	for _, b := range stmts {
		query, args, err := b.ToSql()
		if err != nil {
			return fmt.Errorf("build swap query: %w", err)
		}
		if _, err := q.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("swap default legal entity: %w", err)
		}
	}
	return nil
}
