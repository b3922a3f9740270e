package dto

import (
	"time"

	"github.com/samber/lo"

	"opsdesk/internal/core/id"
	"opsdesk/internal/domain/audit"
)

// AuditEntryResponse is one audit trail record.
type AuditEntryResponse struct {
	ID         id.ID          `json:"id"`
	EntityType string         `json:"entityType"`
	Action     audit.Action   `json:"action"`
	Actor      string         `json:"actor"`
	Changes    map[string]any `json:"changes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func FromAuditEntries(entries []audit.Entry) []AuditEntryResponse {
	return lo.Map(entries, func(e audit.Entry, _ int) AuditEntryResponse {
		return AuditEntryResponse{
			ID:         e.ID,
			EntityType: e.EntityType,
			Action:     e.Action,
			Actor:      e.Actor,
			Changes:    e.Changes,
			CreatedAt:  e.CreatedAt,
		}
	})
}
