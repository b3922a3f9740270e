// Package legalentity provides legal entities: the billing identities a
// company issues quotes, invoices and certificates under. Each legal entity
// owns one numbering counter per document kind.
package legalentity

import (
	"context"
	"strings"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/entity"
	"opsdesk/internal/core/id"
)

// Status of a legal entity.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// MaxDisplayNameLength bounds DisplayName.
const MaxDisplayNameLength = 200

// LegalEntity is a billing identity under a company.
type LegalEntity struct {
	entity.BaseEntity

	// CompanyID is the owning tenant. Immutable.
	CompanyID id.ID `db:"company_id" json:"companyId"`

	DisplayName string `db:"display_name" json:"displayName"`

	// IsDefault marks the company's current default billing entity.
	// At most one per company; changed only through SwapDefault.
	IsDefault bool `db:"is_default" json:"isDefault"`

	Status Status `db:"status" json:"status"`
}

// New creates an active, non-default legal entity.
func New(companyID id.ID, displayName string) *LegalEntity {
	return &LegalEntity{
		BaseEntity:  entity.NewBaseEntity(),
		CompanyID:   companyID,
		DisplayName: strings.TrimSpace(displayName),
		Status:      StatusActive,
	}
}

// IsActive reports whether the entity can receive new documents.
func (e *LegalEntity) IsActive() bool {
	return e.Status == StatusActive
}

// Validate implements entity.Validatable.
func (e *LegalEntity) Validate(ctx context.Context) error {
	if id.IsNil(e.CompanyID) {
		return apperror.NewValidation("company is required").WithDetail("field", "companyId")
	}
	if e.DisplayName == "" {
		return apperror.NewValidation("display name is required").WithDetail("field", "displayName")
	}
	if len(e.DisplayName) > MaxDisplayNameLength {
		return apperror.NewValidation("display name is too long").
			WithDetail("field", "displayName").
			WithDetail("max", MaxDisplayNameLength)
	}
	switch e.Status {
	case StatusActive, StatusArchived:
	default:
		return apperror.NewValidation("unknown status").WithDetail("field", "status")
	}
	return nil
}

var _ entity.Validatable = (*LegalEntity)(nil)
