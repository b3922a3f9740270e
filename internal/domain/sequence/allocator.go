// Package sequence allocates per-legal-entity document numbers.
//
// Allocator is the only component that mutates a counter's nextNumber.
// Every allocation consumes exactly one value through a single atomic
// CounterStore step; a value, once consumed, is never handed out again.
// When the enclosing document transaction rolls back the increment rolls
// back with it. When allocation runs in its own transaction and the caller
// later fails, the value stays consumed and the sequence has a gap.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/core/tx"
	"opsdesk/internal/domain/audit"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/pkg/logger"
)

var tracer = otel.Tracer("opsdesk/sequence")

// Outcome labels reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// EntityReader is the part of the legal entity repository the allocator needs.
type EntityReader interface {
	Get(ctx context.Context, legalEntityID id.ID) (*legalentity.LegalEntity, error)
	GetForShare(ctx context.Context, legalEntityID id.ID) (*legalentity.LegalEntity, error)
}

// Observer receives allocation and override outcomes (metrics).
type Observer interface {
	ObserveAllocation(kind numbering.Kind, outcome string, elapsed time.Duration)
	ObserveOverride(kind numbering.Kind, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveAllocation(numbering.Kind, string, time.Duration) {}
func (nopObserver) ObserveOverride(numbering.Kind, string)                  {}

// Allocation is one consumed number.
type Allocation struct {
	LegalEntityID id.ID          `json:"legalEntityId"`
	Kind          numbering.Kind `json:"documentKind"`
	Prefix        string         `json:"prefix"`
	Value         int64          `json:"value"`
	// Number is the formatted reference, prefix + zero-padded Value.
	Number string `json:"number"`
}

// Config configures the allocator.
type Config struct {
	Store     numbering.CounterStore
	Entities  EntityReader
	TxManager tx.Manager
	Audit     audit.Recorder
	Observer  Observer
}

// Allocator hands out document numbers and guards counter overrides.
type Allocator struct {
	store     numbering.CounterStore
	entities  EntityReader
	txManager tx.Manager
	audit     audit.Recorder
	observer  Observer
}

// New creates an allocator.
func New(cfg Config) *Allocator {
	a := &Allocator{
		store:     cfg.Store,
		entities:  cfg.Entities,
		txManager: cfg.TxManager,
		audit:     cfg.Audit,
		observer:  cfg.Observer,
	}
	if a.audit == nil {
		a.audit = audit.Nop{}
	}
	if a.observer == nil {
		a.observer = nopObserver{}
	}
	return a
}

// Allocate consumes the next number of (legalEntityID, kind).
//
// It joins the transaction in ctx when there is one, so a document insert
// and its number commit or roll back together. Errors are AppErrors:
// ENTITY_NOT_FOUND, ENTITY_ARCHIVED, VALIDATION_ERROR, COUNTER_EXHAUSTED or
// STORE_UNAVAILABLE.
func (a *Allocator) Allocate(ctx context.Context, legalEntityID id.ID, kind numbering.Kind) (Allocation, error) {
	ctx, span := tracer.Start(ctx, "sequence.allocate")
	defer span.End()
	span.SetAttributes(
		attribute.String("legal_entity_id", legalEntityID.String()),
		attribute.String("document_kind", kind.String()),
	)

	start := time.Now()
	if !kind.Valid() {
		a.observer.ObserveAllocation(kind, OutcomeRejected, time.Since(start))
		return Allocation{}, apperror.NewValidation("unknown document kind").WithDetail("kind", string(kind))
	}

	var out Allocation
	err := a.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		e, err := a.entities.GetForShare(ctx, legalEntityID)
		if err != nil {
			return err
		}
		if !e.IsActive() {
			return apperror.NewEntityArchived(legalEntityID)
		}

		inc, err := a.store.IncrementAndGet(ctx, numbering.Key{LegalEntityID: legalEntityID, Kind: kind})
		if errors.Is(err, numbering.ErrCounterExhausted) {
			return apperror.NewCounterExhausted(legalEntityID, kind.String()).WithCause(err)
		}
		if err != nil {
			return storeError(legalEntityID, err)
		}

		out = Allocation{
			LegalEntityID: legalEntityID,
			Kind:          kind,
			Prefix:        inc.Prefix,
			Value:         inc.Value,
			Number:        numbering.Format(inc.Prefix, inc.Value),
		}
		return nil
	})
	if err != nil {
		err = asAppError(err)
		outcome := OutcomeRejected
		if apperror.HasCode(err, apperror.CodeStoreUnavailable) {
			outcome = OutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, "allocation failed")
		}
		a.observer.ObserveAllocation(kind, outcome, time.Since(start))
		return Allocation{}, err
	}

	a.observer.ObserveAllocation(kind, OutcomeOK, time.Since(start))
	span.SetAttributes(attribute.String("number", out.Number))
	logger.Debug(ctx, "number allocated",
		"legal_entity_id", legalEntityID,
		"kind", kind,
		"number", out.Number,
	)
	return out, nil
}

// SetNextNumber moves the counter to proposed, which must lie in
// [1, numbering.MaxNumber]. It is rejected with COLLIDES_WITH_EXISTING when
// proposed does not exceed the highest number already issued. Archived
// entities accept overrides.
func (a *Allocator) SetNextNumber(ctx context.Context, legalEntityID id.ID, kind numbering.Kind, proposed int64) (numbering.Counter, error) {
	ctx, span := tracer.Start(ctx, "sequence.set_next_number")
	defer span.End()
	span.SetAttributes(
		attribute.String("legal_entity_id", legalEntityID.String()),
		attribute.String("document_kind", kind.String()),
		attribute.Int64("proposed", proposed),
	)

	if !kind.Valid() {
		return numbering.Counter{}, apperror.NewValidation("unknown document kind").WithDetail("kind", string(kind))
	}
	if proposed < 1 {
		a.observer.ObserveOverride(kind, OutcomeRejected)
		return numbering.Counter{}, apperror.NewValidation("nextNumber must be at least 1").
			WithDetail("field", "nextNumber").
			WithDetail("proposed", proposed)
	}
	if proposed > numbering.MaxNumber {
		a.observer.ObserveOverride(kind, OutcomeRejected)
		return numbering.Counter{}, apperror.NewValidation(fmt.Sprintf("nextNumber must not exceed %d", numbering.MaxNumber)).
			WithDetail("field", "nextNumber").
			WithDetail("proposed", proposed)
	}

	var out numbering.Counter
	err := a.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := a.entities.Get(ctx, legalEntityID); err != nil {
			return err
		}

		key := numbering.Key{LegalEntityID: legalEntityID, Kind: kind}
		current, err := a.store.Lock(ctx, key)
		if err != nil {
			return storeError(legalEntityID, err)
		}
		if proposed <= current.HighWaterMark {
			return apperror.NewCollidesWithExisting(current.HighWaterMark, proposed)
		}
		if proposed == current.NextNumber {
			out = current
			return nil
		}

		out, err = a.store.Write(ctx, key, numbering.CounterUpdate{NextNumber: &proposed})
		if err != nil {
			return storeError(legalEntityID, err)
		}
		return a.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityCounter,
			EntityID:   legalEntityID,
			Action:     audit.ActionSetNextNumber,
			Changes: map[string]any{
				"kind":       kind,
				"nextNumber": audit.Change(current.NextNumber, proposed),
			},
		})
	})
	if err != nil {
		err = asAppError(err)
		outcome := OutcomeRejected
		if apperror.HasCode(err, apperror.CodeStoreUnavailable) {
			outcome = OutcomeError
			span.RecordError(err)
		}
		a.observer.ObserveOverride(kind, outcome)
		return numbering.Counter{}, err
	}

	a.observer.ObserveOverride(kind, OutcomeOK)
	logger.Info(ctx, "counter next number set",
		"legal_entity_id", legalEntityID,
		"kind", kind,
		"next_number", out.NextNumber,
		"high_water_mark", out.HighWaterMark,
	)
	return out, nil
}

// SetPrefix changes the prefix of future numbers. Already issued numbers
// keep their formatted value.
func (a *Allocator) SetPrefix(ctx context.Context, legalEntityID id.ID, kind numbering.Kind, prefix string) (numbering.Counter, error) {
	if !kind.Valid() {
		return numbering.Counter{}, apperror.NewValidation("unknown document kind").WithDetail("kind", string(kind))
	}
	if err := numbering.ValidatePrefix(prefix); err != nil {
		return numbering.Counter{}, apperror.NewValidation(err.Error()).WithDetail("field", "prefix")
	}

	var out numbering.Counter
	err := a.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := a.entities.Get(ctx, legalEntityID); err != nil {
			return err
		}

		key := numbering.Key{LegalEntityID: legalEntityID, Kind: kind}
		current, err := a.store.Lock(ctx, key)
		if err != nil {
			return storeError(legalEntityID, err)
		}
		if current.Prefix == prefix {
			out = current
			return nil
		}

		out, err = a.store.Write(ctx, key, numbering.CounterUpdate{Prefix: &prefix})
		if err != nil {
			return storeError(legalEntityID, err)
		}
		return a.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityCounter,
			EntityID:   legalEntityID,
			Action:     audit.ActionSetPrefix,
			Changes: map[string]any{
				"kind":   kind,
				"prefix": audit.Change(current.Prefix, prefix),
			},
		})
	})
	if err != nil {
		return numbering.Counter{}, asAppError(err)
	}
	return out, nil
}

// UpdateSettings applies a prefix change and a next-number override in one
// transaction; either both take effect or neither does. Nil arguments are
// left untouched.
func (a *Allocator) UpdateSettings(ctx context.Context, legalEntityID id.ID, kind numbering.Kind, prefix *string, nextNumber *int64) (numbering.Counter, error) {
	if prefix == nil && nextNumber == nil {
		return numbering.Counter{}, apperror.NewValidation("prefix or nextNumber is required")
	}

	var out numbering.Counter
	err := a.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		if prefix != nil {
			if out, err = a.SetPrefix(ctx, legalEntityID, kind, *prefix); err != nil {
				return err
			}
		}
		if nextNumber != nil {
			if out, err = a.SetNextNumber(ctx, legalEntityID, kind, *nextNumber); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return numbering.Counter{}, asAppError(err)
	}
	return out, nil
}

// Counter returns a snapshot of one counter.
func (a *Allocator) Counter(ctx context.Context, legalEntityID id.ID, kind numbering.Kind) (numbering.Counter, error) {
	c, err := a.store.Read(ctx, numbering.Key{LegalEntityID: legalEntityID, Kind: kind})
	if err != nil {
		return numbering.Counter{}, storeError(legalEntityID, err)
	}
	return c, nil
}

// storeError maps CounterStore failures to AppErrors.
func storeError(legalEntityID id.ID, err error) error {
	if errors.Is(err, numbering.ErrCounterNotFound) {
		return apperror.NewEntityNotFound(legalEntityID).WithCause(err)
	}
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewStoreUnavailable(err)
}

// asAppError treats any non-AppError escaping a transaction (begin, commit,
// exhausted retries) as a storage failure.
func asAppError(err error) error {
	if apperror.IsAppError(err) {
		return err
	}
	return apperror.NewStoreUnavailable(err)
}
