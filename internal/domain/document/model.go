// Package document provides quotes, invoices and certificates: the numbered
// documents of a company. Only the fields relevant to numbering plus a
// title and total are modelled.
package document

import (
	"context"
	"strings"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/entity"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/core/types"
)

// MaxTitleLength bounds Title.
const MaxTitleLength = 300

// Document is a numbered quote, invoice or certificate.
type Document struct {
	entity.BaseEntity

	CompanyID id.ID `db:"company_id" json:"companyId"`

	// LegalEntityID is set at creation and never changes.
	LegalEntityID id.ID `db:"legal_entity_id" json:"legalEntityId"`

	Kind numbering.Kind `db:"kind" json:"kind"`

	// Number is the formatted reference, assigned once and never recomputed.
	Number string `db:"number" json:"number"`

	Title string      `db:"title" json:"title"`
	Total types.Money `db:"total" json:"total"`
}

// New creates an unnumbered document.
func New(companyID, legalEntityID id.ID, kind numbering.Kind, title string, total types.Money) *Document {
	return &Document{
		BaseEntity:    entity.NewBaseEntity(),
		CompanyID:     companyID,
		LegalEntityID: legalEntityID,
		Kind:          kind,
		Title:         strings.TrimSpace(title),
		Total:         total,
	}
}

// Validate implements entity.Validatable.
func (d *Document) Validate(ctx context.Context) error {
	if id.IsNil(d.CompanyID) {
		return apperror.NewValidation("company is required").WithDetail("field", "companyId")
	}
	if !d.Kind.Valid() {
		return apperror.NewValidation("unknown document kind").WithDetail("field", "kind")
	}
	if len(d.Title) > MaxTitleLength {
		return apperror.NewValidation("title is too long").
			WithDetail("field", "title").
			WithDetail("max", MaxTitleLength)
	}
	if err := types.ValidateAmount(d.Total); err != nil {
		return apperror.NewValidation(err.Error()).WithDetail("field", "total")
	}
	return nil
}

// ListFilter narrows List results.
type ListFilter struct {
	CompanyID     id.ID
	Kind          numbering.Kind
	LegalEntityID *id.ID
	Limit         int
	Offset        int
}

// DefaultLimit applies when ListFilter.Limit is zero.
const DefaultLimit = 50

var _ entity.Validatable = (*Document)(nil)
