package dto

import (
	"time"

	"github.com/samber/lo"

	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/domain/legalentity"
)

// CounterSeedRequest sets the starting state of one counter.
type CounterSeedRequest struct {
	Prefix     *string `json:"prefix" binding:"omitempty,max=32"`
	NextNumber int64   `json:"nextNumber" binding:"omitempty,min=1"`
}

// CreateLegalEntityRequest is the DTO for creating a legal entity.
type CreateLegalEntityRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=200"`
	IsDefault   bool   `json:"isDefault"`
	// Counters is keyed by document kind.
	Counters map[string]CounterSeedRequest `json:"counters" binding:"omitempty,dive,keys,doc_kind,endkeys"`
}

// ToInput converts the request. Keys are validated by the doc_kind binding.
func (r CreateLegalEntityRequest) ToInput(companyID id.ID) legalentity.CreateInput {
	in := legalentity.CreateInput{
		CompanyID:   companyID,
		DisplayName: r.DisplayName,
		IsDefault:   r.IsDefault,
	}
	if len(r.Counters) > 0 {
		in.Counters = make(map[numbering.Kind]legalentity.CounterSeed, len(r.Counters))
		for raw, seed := range r.Counters {
			kind, err := numbering.ParseKind(raw)
			if err != nil {
				continue
			}
			in.Counters[kind] = legalentity.CounterSeed{Prefix: seed.Prefix, NextNumber: seed.NextNumber}
		}
	}
	return in
}

// UpdateLegalEntityRequest is the DTO for renaming a legal entity.
type UpdateLegalEntityRequest struct {
	DisplayName string `json:"displayName" binding:"required,max=200"`
	Version     int    `json:"version" binding:"required,min=1"`
}

// LegalEntityResponse is the DTO for returning legal entity data.
type LegalEntityResponse struct {
	ID          id.ID              `json:"id"`
	CompanyID   id.ID              `json:"companyId"`
	DisplayName string             `json:"displayName"`
	IsDefault   bool               `json:"isDefault"`
	Status      legalentity.Status `json:"status"`
	Version     int                `json:"version"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

func FromLegalEntity(e *legalentity.LegalEntity) LegalEntityResponse {
	return LegalEntityResponse{
		ID:          e.ID,
		CompanyID:   e.CompanyID,
		DisplayName: e.DisplayName,
		IsDefault:   e.IsDefault,
		Status:      e.Status,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func FromLegalEntities(list []*legalentity.LegalEntity) []LegalEntityResponse {
	return lo.Map(list, func(e *legalentity.LegalEntity, _ int) LegalEntityResponse {
		return FromLegalEntity(e)
	})
}

// UpdateCounterRequest changes a counter's prefix, next number, or both.
type UpdateCounterRequest struct {
	Prefix     *string `json:"prefix" binding:"omitempty,max=32"`
	NextNumber *int64  `json:"nextNumber"`
}

// CounterResponse shows a counter as the settings screen needs it.
type CounterResponse struct {
	LegalEntityID id.ID          `json:"legalEntityId"`
	Kind          numbering.Kind `json:"kind"`
	Prefix        string         `json:"prefix"`
	NextNumber    int64          `json:"nextNumber"`
	HighWaterMark int64          `json:"highWaterMark"`
	// Preview is the number the next allocation will produce.
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func FromCounter(c numbering.Counter) CounterResponse {
	return CounterResponse{
		LegalEntityID: c.LegalEntityID,
		Kind:          c.Kind,
		Prefix:        c.Prefix,
		NextNumber:    c.NextNumber,
		HighWaterMark: c.HighWaterMark,
		Preview:       numbering.Format(c.Prefix, c.NextNumber),
		UpdatedAt:     c.UpdatedAt,
	}
}

func FromCounters(list []numbering.Counter) []CounterResponse {
	return lo.Map(list, func(c numbering.Counter, _ int) CounterResponse {
		return FromCounter(c)
	})
}
