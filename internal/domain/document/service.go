package document

import (
	"context"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/core/tx"
	"opsdesk/internal/core/types"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/internal/domain/sequence"
	"opsdesk/pkg/logger"
)

// Resolver picks the legal entity of a new document.
type Resolver interface {
	Resolve(ctx context.Context, companyID id.ID, explicit *id.ID) (*legalentity.LegalEntity, error)
}

// Allocator consumes document numbers.
type Allocator interface {
	Allocate(ctx context.Context, legalEntityID id.ID, kind numbering.Kind) (sequence.Allocation, error)
}

// CreateInput describes a new document.
type CreateInput struct {
	CompanyID id.ID
	// LegalEntityID selects the issuing entity; nil uses the company default.
	LegalEntityID *id.ID
	Title         string
	Total         types.Money
}

// Service creates and reads numbered documents.
type Service struct {
	repo      Repository
	resolver  Resolver
	allocator Allocator
	txManager tx.Manager
}

// NewService creates a new document service.
func NewService(repo Repository, resolver Resolver, allocator Allocator, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		resolver:  resolver,
		allocator: allocator,
		txManager: txManager,
	}
}

// Create resolves the legal entity, allocates a number and inserts the
// document in one transaction. Any allocation error aborts the creation.
func (s *Service) Create(ctx context.Context, kind numbering.Kind, in CreateInput) (*Document, error) {
	var doc *Document
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		le, err := s.resolver.Resolve(ctx, in.CompanyID, in.LegalEntityID)
		if err != nil {
			return err
		}

		doc = New(in.CompanyID, le.ID, kind, in.Title, in.Total)
		if err := doc.Validate(ctx); err != nil {
			return err
		}

		// Allocate last, right before the insert, so the counter row lock
		// is held for as short a time as possible.
		alloc, err := s.allocator.Allocate(ctx, le.ID, kind)
		if err != nil {
			return err
		}
		doc.Number = alloc.Number

		return s.repo.Create(ctx, doc)
	})
	if err != nil {
		// Insert, commit and retry failures carry no AppError of their own.
		if !apperror.IsAppError(err) {
			err = apperror.NewStoreUnavailable(err)
		}
		return nil, err
	}

	logger.Info(ctx, "document created",
		"document_id", doc.ID,
		"kind", kind,
		"legal_entity_id", doc.LegalEntityID,
		"number", doc.Number,
	)
	return doc, nil
}

// Get returns one document of the company.
func (s *Service) Get(ctx context.Context, companyID id.ID, kind numbering.Kind, docID id.ID) (*Document, error) {
	return s.repo.Get(ctx, companyID, kind, docID)
}

// List returns the company's documents of one kind.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Document, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	return s.repo.List(ctx, f)
}
