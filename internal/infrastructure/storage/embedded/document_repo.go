package embedded

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/domain/document"
)

// DocumentRepo implements document.Repository on badger.
type DocumentRepo struct {
	txm *TxManager
}

var _ document.Repository = (*DocumentRepo)(nil)

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(txm *TxManager) *DocumentRepo {
	return &DocumentRepo{txm: txm}
}

func documentKey(docID id.ID) string {
	return prefixDocument + docID.String()
}

func companyDocPrefix(companyID id.ID, kind numbering.Kind) string {
	return prefixDocCompany + companyID.String() + "/" + kind.String() + "/"
}

func docNumberPrefix(legalEntityID id.ID, kind numbering.Kind) string {
	return prefixDocNumber + legalEntityID.String() + "/" + kind.String() + "/"
}

// Create implements document.Repository.
func (r *DocumentRepo) Create(ctx context.Context, doc *document.Document) error {
	return r.txm.update(ctx, func(ctx context.Context, t *Tx) error {
		numKey := docNumberPrefix(doc.LegalEntityID, doc.Kind) + doc.Number
		taken, err := exists(t.Txn, numKey)
		if err != nil {
			return err
		}
		if taken {
			return apperror.NewDuplicate("document", "number", doc.Number)
		}

		if err := setJSON(t.Txn, documentKey(doc.ID), doc); err != nil {
			return err
		}
		if err := t.Set([]byte(numKey), []byte(doc.ID.String())); err != nil {
			return fmt.Errorf("set number index: %w", err)
		}
		return t.Set([]byte(companyDocPrefix(doc.CompanyID, doc.Kind)+doc.ID.String()), nil)
	})
}

// Get implements document.Repository.
func (r *DocumentRepo) Get(ctx context.Context, companyID id.ID, kind numbering.Kind, docID id.ID) (*document.Document, error) {
	var doc document.Document
	err := r.txm.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, documentKey(docID), &doc)
	})
	if errors.Is(err, errNotFound) || (err == nil && (doc.CompanyID != companyID || doc.Kind != kind)) {
		return nil, apperror.NewNotFound(kind.String(), docID)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List implements document.Repository.
func (r *DocumentRepo) List(ctx context.Context, f document.ListFilter) ([]*document.Document, error) {
	var out []*document.Document
	err := r.txm.view(ctx, func(txn *badger.Txn) error {
		skipped := 0
		for _, raw := range scanKeys(txn, companyDocPrefix(f.CompanyID, f.Kind), true) {
			docID, err := id.Parse(raw)
			if err != nil {
				return fmt.Errorf("corrupt document index entry %q: %w", raw, err)
			}
			var doc document.Document
			if err := getJSON(txn, documentKey(docID), &doc); err != nil {
				return err
			}
			if f.LegalEntityID != nil && doc.LegalEntityID != *f.LegalEntityID {
				continue
			}
			if skipped < f.Offset {
				skipped++
				continue
			}
			out = append(out, &doc)
			if f.Limit > 0 && len(out) >= f.Limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// Numbers implements document.Repository.
func (r *DocumentRepo) Numbers(ctx context.Context, legalEntityID id.ID, kind numbering.Kind) ([]string, error) {
	var out []string
	err := r.txm.view(ctx, func(txn *badger.Txn) error {
		out = scanKeys(txn, docNumberPrefix(legalEntityID, kind), false)
		return nil
	})
	return out, err
}
