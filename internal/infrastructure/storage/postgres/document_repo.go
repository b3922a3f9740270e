package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/domain/document"
)

const documentTable = "documents"

// DocumentRepo implements document.Repository on PostgreSQL. Number
// uniqueness is enforced by the (legal_entity_id, kind, number) index.
type DocumentRepo struct {
	db      QuerierProvider
	columns []string
}

var _ document.Repository = (*DocumentRepo)(nil)

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(db QuerierProvider) *DocumentRepo {
	return &DocumentRepo{
		db:      db,
		columns: ExtractDBColumns[document.Document](),
	}
}

func (r *DocumentRepo) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Create implements document.Repository.
func (r *DocumentRepo) Create(ctx context.Context, doc *document.Document) error {
	query, args, err := r.builder().
		Insert(documentTable).
		SetMap(StructToMap(doc)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}
	if _, err := r.db.GetQuerier(ctx).Exec(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return apperror.NewDuplicate("document", "number", doc.Number)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Get implements document.Repository.
func (r *DocumentRepo) Get(ctx context.Context, companyID id.ID, kind numbering.Kind, docID id.ID) (*document.Document, error) {
	query, args, err := r.builder().
		Select(r.columns...).
		From(documentTable).
		Where(sq.Eq{"id": docID, "company_id": companyID, "kind": kind}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select query: %w", err)
	}
	var doc document.Document
	if err := pgxscan.Get(ctx, r.db.GetQuerier(ctx), &doc, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(kind.String(), docID)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepo) listQuery(f document.ListFilter) sq.SelectBuilder {
	b := r.builder().
		Select(r.columns...).
		From(documentTable).
		Where(sq.Eq{"company_id": f.CompanyID, "kind": f.Kind}).
		OrderBy("id DESC")
	if f.LegalEntityID != nil {
		b = b.Where(sq.Eq{"legal_entity_id": *f.LegalEntityID})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	return b
}

// List implements document.Repository. Ids are UUIDv7, so id order is
// creation order.
func (r *DocumentRepo) List(ctx context.Context, f document.ListFilter) ([]*document.Document, error) {
	query, args, err := r.listQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	var out []*document.Document
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return out, nil
}

// Numbers implements document.Repository.
func (r *DocumentRepo) Numbers(ctx context.Context, legalEntityID id.ID, kind numbering.Kind) ([]string, error) {
	query, args, err := r.builder().
		Select("number").
		From(documentTable).
		Where(sq.Eq{"legal_entity_id": legalEntityID, "kind": kind}).
		OrderBy("number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build numbers query: %w", err)
	}
	var out []string
	if err := pgxscan.Select(ctx, r.db.GetQuerier(ctx), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list document numbers: %w", err)
	}
	return out, nil
}
