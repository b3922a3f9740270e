package embedded

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/domain/legalentity"
)

// LegalEntityRepo implements legalentity.Repository on badger.
//
// Reads made inside a transaction join its conflict set, so a concurrent
// status change or default swap forces a retry instead of a stale commit.
type LegalEntityRepo struct {
	txm *TxManager
}

var _ legalentity.Repository = (*LegalEntityRepo)(nil)

// NewLegalEntityRepo creates a legal entity repository.
func NewLegalEntityRepo(txm *TxManager) *LegalEntityRepo {
	return &LegalEntityRepo{txm: txm}
}

func entityKey(legalEntityID id.ID) string {
	return prefixLegalEntity + legalEntityID.String()
}

func companyEntityPrefix(companyID id.ID) string {
	return prefixEntityCompany + companyID.String() + "/"
}

// Create implements legalentity.Repository.
func (r *LegalEntityRepo) Create(ctx context.Context, e *legalentity.LegalEntity) error {
	return r.txm.update(ctx, func(ctx context.Context, t *Tx) error {
		key := entityKey(e.ID)
		found, err := exists(t.Txn, key)
		if err != nil {
			return err
		}
		if found {
			return apperror.NewDuplicate("legal entity", "id", e.ID.String())
		}
		if err := setJSON(t.Txn, key, e); err != nil {
			return err
		}
		return t.Set([]byte(companyEntityPrefix(e.CompanyID)+e.ID.String()), nil)
	})
}

// Get implements legalentity.Repository.
func (r *LegalEntityRepo) Get(ctx context.Context, legalEntityID id.ID) (*legalentity.LegalEntity, error) {
	var e *legalentity.LegalEntity
	err := r.txm.view(ctx, func(txn *badger.Txn) error {
		var err error
		e, err = r.get(txn, legalEntityID)
		return err
	})
	return e, err
}

// GetForShare implements legalentity.Repository. Inside a transaction the
// read is part of the conflict set, which is what keeps archive out.
func (r *LegalEntityRepo) GetForShare(ctx context.Context, legalEntityID id.ID) (*legalentity.LegalEntity, error) {
	if !r.txm.InTransaction(ctx) {
		return nil, errors.New("GetForShare requires a transaction")
	}
	return r.Get(ctx, legalEntityID)
}

// List implements legalentity.Repository.
func (r *LegalEntityRepo) List(ctx context.Context, companyID id.ID) ([]*legalentity.LegalEntity, error) {
	var out []*legalentity.LegalEntity
	err := r.txm.view(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = r.list(txn, companyID)
		return err
	})
	return out, err
}

// Update implements legalentity.Repository.
func (r *LegalEntityRepo) Update(ctx context.Context, e *legalentity.LegalEntity) error {
	return r.txm.update(ctx, func(ctx context.Context, t *Tx) error {
		stored, err := r.get(t.Txn, e.ID)
		if err != nil {
			return err
		}
		if stored.Version != e.Version {
			return apperror.NewConcurrentModification("legal_entity", e.ID)
		}

		e.IsDefault = stored.IsDefault
		e.CompanyID = stored.CompanyID
		e.CreatedAt = stored.CreatedAt
		e.Touch()
		return setJSON(t.Txn, entityKey(e.ID), e)
	})
}

// GetDefault implements legalentity.Repository.
func (r *LegalEntityRepo) GetDefault(ctx context.Context, companyID id.ID) (*legalentity.LegalEntity, error) {
	var out *legalentity.LegalEntity
	err := r.txm.view(ctx, func(txn *badger.Txn) error {
		all, err := r.list(txn, companyID)
		if err != nil {
			return err
		}
		for _, e := range all {
			if e.IsDefault {
				out = e
				return nil
			}
		}
		return nil
	})
	return out, err
}

// SwapDefault implements legalentity.Repository. It reads every entity of
// the company, so two concurrent swaps for one company always conflict.
func (r *LegalEntityRepo) SwapDefault(ctx context.Context, companyID, legalEntityID id.ID) error {
	t := r.txm.GetTx(ctx)
	if t == nil {
		return errors.New("SwapDefault requires a transaction")
	}

	all, err := r.list(t.Txn, companyID)
	if err != nil {
		return err
	}

	found := false
	for _, e := range all {
		if e.ID == legalEntityID {
			found = true
		}
	}
	if !found {
		return apperror.NewEntityNotFound(legalEntityID)
	}

	now := time.Now().UTC()
	for _, e := range all {
		want := e.ID == legalEntityID
		if e.IsDefault == want {
			continue
		}
		e.IsDefault = want
		e.Version++
		e.UpdatedAt = now
		if err := setJSON(t.Txn, entityKey(e.ID), e); err != nil {
			return err
		}
	}
	return nil
}

func (r *LegalEntityRepo) get(txn *badger.Txn, legalEntityID id.ID) (*legalentity.LegalEntity, error) {
	var e legalentity.LegalEntity
	err := getJSON(txn, entityKey(legalEntityID), &e)
	if errors.Is(err, errNotFound) {
		return nil, apperror.NewEntityNotFound(legalEntityID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LegalEntityRepo) list(txn *badger.Txn, companyID id.ID) ([]*legalentity.LegalEntity, error) {
	ids := scanKeys(txn, companyEntityPrefix(companyID), false)
	out := make([]*legalentity.LegalEntity, 0, len(ids))
	for _, raw := range ids {
		legalEntityID, err := id.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt company index entry %q: %w", raw, err)
		}
		e, err := r.get(txn, legalEntityID)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
