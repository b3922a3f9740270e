package legalentity

import (
	"context"
	"fmt"
	"strings"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/core/tx"
	"opsdesk/internal/domain/audit"
	"opsdesk/pkg/logger"
)

// CounterSeed sets the initial state of one counter on entity creation.
type CounterSeed struct {
	// Prefix overrides the configured default prefix when set.
	Prefix *string
	// NextNumber is the first number to allocate. Zero means 1.
	NextNumber int64
}

// CreateInput describes a new legal entity.
type CreateInput struct {
	CompanyID   id.ID
	DisplayName string
	// IsDefault makes the new entity the company default. The first entity
	// of a company always becomes the default.
	IsDefault bool
	Counters  map[numbering.Kind]CounterSeed
}

// ServiceConfig configures the legal entity service.
type ServiceConfig struct {
	Repo      Repository
	Counters  numbering.CounterStore
	TxManager tx.Manager
	Audit     audit.Recorder
	// DefaultPrefixes per kind; kinds without an entry use Kind.DefaultPrefix.
	DefaultPrefixes map[numbering.Kind]string
}

// Service manages legal entities and resolves which entity a new document
// belongs to.
type Service struct {
	repo      Repository
	counters  numbering.CounterStore
	txManager tx.Manager
	audit     audit.Recorder
	prefixes  map[numbering.Kind]string
}

// NewService creates a new legal entity service.
func NewService(cfg ServiceConfig) *Service {
	rec := cfg.Audit
	if rec == nil {
		rec = audit.Nop{}
	}
	prefixes := make(map[numbering.Kind]string, len(numbering.Kinds()))
	for _, k := range numbering.Kinds() {
		prefixes[k] = k.DefaultPrefix()
		if p, ok := cfg.DefaultPrefixes[k]; ok {
			prefixes[k] = p
		}
	}
	return &Service{
		repo:      cfg.Repo,
		counters:  cfg.Counters,
		txManager: cfg.TxManager,
		audit:     rec,
		prefixes:  prefixes,
	}
}

// Create inserts the entity together with its three counters.
func (s *Service) Create(ctx context.Context, in CreateInput) (*LegalEntity, error) {
	e := New(in.CompanyID, in.DisplayName)
	if err := e.Validate(ctx); err != nil {
		return nil, err
	}

	seeds, err := s.buildCounters(e.ID, in.Counters)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetDefault(ctx, e.CompanyID)
		if err != nil {
			return err
		}

		if err := s.repo.Create(ctx, e); err != nil {
			return err
		}
		for _, c := range seeds {
			if err := s.counters.Create(ctx, c); err != nil {
				return fmt.Errorf("seed %s counter: %w", c.Kind, err)
			}
		}

		if in.IsDefault || current == nil {
			if err := s.repo.SwapDefault(ctx, e.CompanyID, e.ID); err != nil {
				return err
			}
			e.IsDefault = true
		}

		changes := map[string]any{
			"displayName": e.DisplayName,
			"isDefault":   e.IsDefault,
		}
		for _, c := range seeds {
			changes[c.Kind.String()] = map[string]any{"prefix": c.Prefix, "nextNumber": c.NextNumber}
		}
		return s.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityLegalEntity,
			EntityID:   e.ID,
			Action:     audit.ActionCreate,
			Changes:    changes,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "legal entity created",
		"legal_entity_id", e.ID,
		"company_id", e.CompanyID,
		"is_default", e.IsDefault,
	)
	return e, nil
}

func (s *Service) buildCounters(legalEntityID id.ID, seeds map[numbering.Kind]CounterSeed) ([]numbering.Counter, error) {
	for k := range seeds {
		if !k.Valid() {
			return nil, apperror.NewValidation("unknown document kind").
				WithDetail("field", "counters").
				WithDetail("kind", string(k))
		}
	}

	out := make([]numbering.Counter, 0, len(numbering.Kinds()))
	for _, k := range numbering.Kinds() {
		seed := seeds[k]
		prefix := s.prefixes[k]
		if seed.Prefix != nil {
			prefix = *seed.Prefix
		}
		if err := numbering.ValidatePrefix(prefix); err != nil {
			return nil, apperror.NewValidation(err.Error()).
				WithDetail("field", "prefix").
				WithDetail("kind", k.String())
		}
		if seed.NextNumber < 0 {
			return nil, apperror.NewValidation("nextNumber must be at least 1").
				WithDetail("field", "nextNumber").
				WithDetail("kind", k.String())
		}
		if seed.NextNumber > numbering.MaxNumber {
			return nil, apperror.NewValidation(fmt.Sprintf("nextNumber must not exceed %d", numbering.MaxNumber)).
				WithDetail("field", "nextNumber").
				WithDetail("kind", k.String())
		}
		out = append(out, numbering.NewCounter(legalEntityID, k, prefix, seed.NextNumber))
	}
	return out, nil
}

// Get returns a legal entity of the company. A nil companyID skips the
// ownership check (administrative callers).
func (s *Service) Get(ctx context.Context, companyID, legalEntityID id.ID) (*LegalEntity, error) {
	e, err := s.repo.Get(ctx, legalEntityID)
	if err != nil {
		return nil, err
	}
	if !id.IsNil(companyID) && e.CompanyID != companyID {
		return nil, apperror.NewEntityNotFound(legalEntityID)
	}
	return e, nil
}

// List returns the company's legal entities.
func (s *Service) List(ctx context.Context, companyID id.ID) ([]*LegalEntity, error) {
	return s.repo.List(ctx, companyID)
}

// Rename changes the display name. version must match the stored version.
func (s *Service) Rename(ctx context.Context, companyID, legalEntityID id.ID, displayName string, version int) (*LegalEntity, error) {
	var out *LegalEntity
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		e, err := s.Get(ctx, companyID, legalEntityID)
		if err != nil {
			return err
		}
		if e.Version != version {
			return apperror.NewConcurrentModification(audit.EntityLegalEntity, legalEntityID)
		}

		old := e.DisplayName
		e.DisplayName = strings.TrimSpace(displayName)
		if err := e.Validate(ctx); err != nil {
			return err
		}
		if e.DisplayName == old {
			out = e
			return nil
		}
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		out = e
		return s.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityLegalEntity,
			EntityID:   e.ID,
			Action:     audit.ActionUpdate,
			Changes:    map[string]any{"displayName": audit.Change(old, e.DisplayName)},
		})
	})
	return out, err
}

// Archive freezes allocation for the entity. Its counters are kept.
// The company default cannot be archived; switch the default first.
func (s *Service) Archive(ctx context.Context, companyID, legalEntityID id.ID) (*LegalEntity, error) {
	var out *LegalEntity
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		e, err := s.Get(ctx, companyID, legalEntityID)
		if err != nil {
			return err
		}
		out = e
		if !e.IsActive() {
			return nil
		}
		if e.IsDefault {
			return apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"The default legal entity cannot be archived, select another default first").
				WithDetail("legal_entity_id", legalEntityID)
		}

		e.Status = StatusArchived
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityLegalEntity,
			EntityID:   e.ID,
			Action:     audit.ActionArchive,
			Changes:    map[string]any{"status": audit.Change(StatusActive, StatusArchived)},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetDefault makes legalEntityID the company's only default entity.
// The previous default is cleared in the same transaction.
func (s *Service) SetDefault(ctx context.Context, companyID, legalEntityID id.ID) (*LegalEntity, error) {
	var out *LegalEntity
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		e, err := s.Get(ctx, companyID, legalEntityID)
		if err != nil {
			return err
		}
		if !e.IsActive() {
			return apperror.NewEntityArchived(legalEntityID)
		}
		out = e
		if e.IsDefault {
			return nil
		}

		previous, err := s.repo.GetDefault(ctx, e.CompanyID)
		if err != nil {
			return err
		}
		if err := s.repo.SwapDefault(ctx, e.CompanyID, e.ID); err != nil {
			return err
		}
		e.IsDefault = true

		var previousID any
		if previous != nil {
			previousID = previous.ID
		}
		return s.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityLegalEntity,
			EntityID:   e.ID,
			Action:     audit.ActionSetDefault,
			Changes:    map[string]any{"default": audit.Change(previousID, e.ID)},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "default legal entity switched",
		"legal_entity_id", legalEntityID,
		"company_id", out.CompanyID,
	)
	return out, nil
}

// GetDefault returns the company default or NO_DEFAULT_ENTITY.
func (s *Service) GetDefault(ctx context.Context, companyID id.ID) (*LegalEntity, error) {
	e, err := s.repo.GetDefault(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperror.NewNoDefaultEntity(companyID)
	}
	return e, nil
}

// Resolve picks the legal entity for a new document: the explicit selection
// when given, the company default otherwise. The result is always active.
func (s *Service) Resolve(ctx context.Context, companyID id.ID, explicit *id.ID) (*LegalEntity, error) {
	var (
		e   *LegalEntity
		err error
	)
	if explicit != nil && !id.IsNil(*explicit) {
		e, err = s.Get(ctx, companyID, *explicit)
	} else {
		e, err = s.GetDefault(ctx, companyID)
	}
	if err != nil {
		return nil, err
	}
	if !e.IsActive() {
		return nil, apperror.NewEntityArchived(e.ID)
	}
	return e, nil
}

// Counters returns the numbering state of the entity, one per kind.
func (s *Service) Counters(ctx context.Context, companyID, legalEntityID id.ID) ([]numbering.Counter, error) {
	if _, err := s.Get(ctx, companyID, legalEntityID); err != nil {
		return nil, err
	}
	counters, err := s.counters.List(ctx, legalEntityID)
	if err != nil {
		return nil, apperror.NewStoreUnavailable(err)
	}
	return counters, nil
}
