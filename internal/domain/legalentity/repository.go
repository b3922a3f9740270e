package legalentity

import (
	"context"

	"opsdesk/internal/core/id"
)

// Repository persists legal entities. Every method joins the transaction
// carried by ctx, if any.
//
// Lookups of a missing entity return apperror CodeEntityNotFound.
type Repository interface {
	Create(ctx context.Context, e *LegalEntity) error

	Get(ctx context.Context, legalEntityID id.ID) (*LegalEntity, error)

	// GetForShare reads the entity and keeps concurrent status changes out
	// until the enclosing transaction ends.
	GetForShare(ctx context.Context, legalEntityID id.ID) (*LegalEntity, error)

	// List returns the company's entities ordered by creation.
	List(ctx context.Context, companyID id.ID) ([]*LegalEntity, error)

	// Update saves DisplayName and Status with optimistic locking on Version.
	// IsDefault is ignored; use SwapDefault.
	Update(ctx context.Context, e *LegalEntity) error

	// GetDefault returns the company's default entity, or nil when none is set.
	GetDefault(ctx context.Context, companyID id.ID) (*LegalEntity, error)

	// SwapDefault clears the current default of the company and sets
	// legalEntityID as the new one. Must run inside a transaction.
	SwapDefault(ctx context.Context, companyID, legalEntityID id.ID) error
}
