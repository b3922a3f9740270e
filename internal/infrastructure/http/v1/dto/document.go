package dto

import (
	"time"

	"github.com/samber/lo"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/core/types"
	"opsdesk/internal/domain/document"
)

// CreateDocumentRequest is the DTO for creating a quote, invoice or certificate.
type CreateDocumentRequest struct {
	// LegalEntityID picks the issuing entity; empty uses the company default.
	LegalEntityID *id.ID      `json:"legalEntityId"`
	Title         string      `json:"title" binding:"max=300"`
	Total         types.Money `json:"total"`
}

func (r CreateDocumentRequest) ToInput(companyID id.ID) document.CreateInput {
	return document.CreateInput{
		CompanyID:     companyID,
		LegalEntityID: r.LegalEntityID,
		Title:         r.Title,
		Total:         r.Total,
	}
}

// ListDocumentsQuery holds list filters.
type ListDocumentsQuery struct {
	LegalEntityID string `form:"legalEntityId" binding:"omitempty,uuid"`
	Limit         int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset        int    `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts the query. LegalEntityID is already validated as a UUID.
func (q ListDocumentsQuery) ToFilter(companyID id.ID, kind numbering.Kind) document.ListFilter {
	f := document.ListFilter{
		CompanyID: companyID,
		Kind:      kind,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if q.LegalEntityID != "" {
		if leID, err := id.Parse(q.LegalEntityID); err == nil {
			f.LegalEntityID = &leID
		}
	}
	return f
}

// DocumentResponse is the DTO for returning document data.
type DocumentResponse struct {
	ID            id.ID          `json:"id"`
	LegalEntityID id.ID          `json:"legalEntityId"`
	Kind          numbering.Kind `json:"kind"`
	Number        string         `json:"number"`
	Title         string         `json:"title"`
	Total         types.Money    `json:"total"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func FromDocument(d *document.Document) DocumentResponse {
	return DocumentResponse{
		ID:            d.ID,
		LegalEntityID: d.LegalEntityID,
		Kind:          d.Kind,
		Number:        d.Number,
		Title:         d.Title,
		Total:         d.Total,
		CreatedAt:     d.CreatedAt,
	}
}

func FromDocuments(list []*document.Document) []DocumentResponse {
	return lo.Map(list, func(d *document.Document, _ int) DocumentResponse {
		return FromDocument(d)
	})
}
