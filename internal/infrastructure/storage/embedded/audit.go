package embedded

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"opsdesk/internal/core/id"
	"opsdesk/internal/domain/audit"
)

// AuditRecorder implements audit.Recorder on badger. Entries are stored as
// JSON under audit/<entityType>/<entityID>/<auditID>; UUIDv7 ids keep them
// in creation order.
type AuditRecorder struct {
	txm *TxManager
}

var _ audit.Recorder = (*AuditRecorder)(nil)

// NewAuditRecorder creates an audit recorder.
func NewAuditRecorder(txm *TxManager) *AuditRecorder {
	return &AuditRecorder{txm: txm}
}

func auditPrefix(entityType string, entityID id.ID) string {
	return prefixAudit + entityType + "/" + entityID.String() + "/"
}

// Record implements audit.Recorder.
func (r *AuditRecorder) Record(ctx context.Context, entry audit.Entry) error {
	audit.Enrich(ctx, &entry)
	return r.txm.update(ctx, func(ctx context.Context, t *Tx) error {
		return setJSON(t.Txn, auditPrefix(entry.EntityType, entry.EntityID)+entry.ID.String(), entry)
	})
}

// History implements audit.Recorder. Newest entries come first.
func (r *AuditRecorder) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Entry, error) {
	var out []audit.Entry
	err := r.txm.view(ctx, func(txn *badger.Txn) error {
		prefix := auditPrefix(entityType, entityID)
		for _, suffix := range scanKeys(txn, prefix, true) {
			var e audit.Entry
			if err := getJSON(txn, prefix+suffix, &e); err != nil {
				return err
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}
