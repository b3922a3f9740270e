// Package audit defines the audit trail contract for numbering changes.
// Storage backends implement Recorder; entries are written inside the
// transaction of the change they describe.
package audit

import (
	"context"
	"time"

	appctx "opsdesk/internal/core/context"
	"opsdesk/internal/core/id"
)

// Action represents the type of audited operation.
type Action string

const (
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionArchive       Action = "archive"
	ActionSetDefault    Action = "set_default"
	ActionSetNextNumber Action = "set_next_number"
	ActionSetPrefix     Action = "set_prefix"
	ActionReconcile     Action = "reconcile"
)

// Entity types used in entries.
const (
	EntityLegalEntity = "legal_entity"
	EntityCounter     = "numbering_counter"
)

// Entry is a single audit record.
type Entry struct {
	ID         id.ID          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   id.ID          `json:"entityId"`
	Action     Action         `json:"action"`
	Actor      string         `json:"actor"`
	Changes    map[string]any `json:"changes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Recorder persists audit entries. Record joins the transaction carried by ctx.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Entry, error)
}

// Enrich fills ID, timestamp and actor from context when unset.
func Enrich(ctx context.Context, entry *Entry) {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = appctx.GetActor(ctx)
	}
}

// Change builds a {"old": ..., "new": ...} pair for Entry.Changes.
func Change(oldVal, newVal any) map[string]any {
	return map[string]any{"old": oldVal, "new": newVal}
}

// Nop discards entries. Used where no trail is configured.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error { return nil }

// History implements Recorder.
func (Nop) History(context.Context, string, id.ID, int) ([]Entry, error) { return nil, nil }

var _ Recorder = Nop{}
