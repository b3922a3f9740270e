package document

import (
	"context"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
)

// Repository persists documents. Every method joins the transaction carried
// by ctx, if any.
type Repository interface {
	// Create inserts the document. A second document with the same
	// (legal entity, kind, number) is rejected with DUPLICATE_ENTRY.
	Create(ctx context.Context, doc *Document) error

	// Get returns NOT_FOUND unless the document belongs to companyID and kind.
	Get(ctx context.Context, companyID id.ID, kind numbering.Kind, docID id.ID) (*Document, error)

	// List returns documents newest first.
	List(ctx context.Context, f ListFilter) ([]*Document, error)

	// Numbers returns every stored number of (legal entity, kind).
	Numbers(ctx context.Context, legalEntityID id.ID, kind numbering.Kind) ([]string, error)
}
