package sequence

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/domain/audit"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/pkg/logger"
)

// Reconcile raises the counter of key so that it never re-issues observed,
// a number known to exist on a stored document. It returns the resulting
// counter and whether anything changed.
func (a *Allocator) Reconcile(ctx context.Context, key numbering.Key, observed int64) (numbering.Counter, bool, error) {
	var (
		out     numbering.Counter
		changed bool
	)
	err := a.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := a.store.Lock(ctx, key)
		if err != nil {
			return storeError(key.LegalEntityID, err)
		}
		out = current
		if observed <= current.HighWaterMark {
			return nil
		}
		if observed > numbering.MaxNumber {
			return apperror.NewValidation(fmt.Sprintf("stored number %d exceeds %d", observed, numbering.MaxNumber)).
				WithDetail("kind", key.Kind.String())
		}

		upd := numbering.CounterUpdate{HighWaterMark: &observed}
		if current.NextNumber <= observed {
			next := observed + 1
			upd.NextNumber = &next
		}
		out, err = a.store.Write(ctx, key, upd)
		if err != nil {
			return storeError(key.LegalEntityID, err)
		}
		changed = true
		return a.audit.Record(ctx, audit.Entry{
			EntityType: audit.EntityCounter,
			EntityID:   key.LegalEntityID,
			Action:     audit.ActionReconcile,
			Changes: map[string]any{
				"kind":          key.Kind,
				"highWaterMark": audit.Change(current.HighWaterMark, out.HighWaterMark),
				"nextNumber":    audit.Change(current.NextNumber, out.NextNumber),
			},
		})
	})
	if err != nil {
		return numbering.Counter{}, false, asAppError(err)
	}
	return out, changed, nil
}

// NumberSource lists the formatted numbers already stored on documents.
type NumberSource interface {
	Numbers(ctx context.Context, legalEntityID id.ID, kind numbering.Kind) ([]string, error)
}

// EntityLister lists a company's legal entities.
type EntityLister interface {
	List(ctx context.Context, companyID id.ID) ([]*legalentity.LegalEntity, error)
}

// BackfillResult reports one reconciled key.
type BackfillResult struct {
	Key numbering.Key
	// Scanned is the number of stored document numbers inspected.
	Scanned int
	// Skipped counts numbers that do not parse under the current prefix.
	Skipped int
	// Highest is the greatest parsed number, 0 when none.
	Highest int64
	Counter numbering.Counter
	Changed bool
}

// Backfiller reconciles counters with numbers on stored documents, for data
// imported from the company-level numbering era.
type Backfiller struct {
	allocator   *Allocator
	entities    EntityLister
	numbers     NumberSource
	concurrency int
}

// NewBackfiller creates a backfiller. concurrency bounds the number of legal
// entities processed at once.
func NewBackfiller(allocator *Allocator, entities EntityLister, numbers NumberSource, concurrency int) *Backfiller {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Backfiller{
		allocator:   allocator,
		entities:    entities,
		numbers:     numbers,
		concurrency: concurrency,
	}
}

// Run reconciles every counter of every legal entity of the company.
func (b *Backfiller) Run(ctx context.Context, companyID id.ID) ([]BackfillResult, error) {
	entities, err := b.entities.List(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list legal entities: %w", err)
	}

	var (
		mu      sync.Mutex
		results = make([]BackfillResult, 0, len(entities)*len(numbering.Kinds()))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, e := range entities {
		g.Go(func() error {
			for _, kind := range numbering.Kinds() {
				res, err := b.reconcileKey(gctx, numbering.Key{LegalEntityID: e.ID, Kind: kind})
				if err != nil {
					return fmt.Errorf("backfill %s/%s: %w", e.ID, kind, err)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Backfiller) reconcileKey(ctx context.Context, key numbering.Key) (BackfillResult, error) {
	res := BackfillResult{Key: key}

	current, err := b.allocator.Counter(ctx, key.LegalEntityID, key.Kind)
	if err != nil {
		return res, err
	}
	numbers, err := b.numbers.Numbers(ctx, key.LegalEntityID, key.Kind)
	if err != nil {
		return res, apperror.NewStoreUnavailable(err)
	}

	res.Scanned = len(numbers)
	for _, formatted := range numbers {
		n, err := numbering.Parse(formatted, current.Prefix)
		if err != nil {
			res.Skipped++
			continue
		}
		if n > res.Highest {
			res.Highest = n
		}
	}
	if res.Skipped > 0 {
		logger.Warn(ctx, "backfill skipped numbers not matching current prefix",
			"key", key.String(),
			"prefix", current.Prefix,
			"skipped", res.Skipped,
		)
	}

	res.Counter, res.Changed, err = b.allocator.Reconcile(ctx, key, res.Highest)
	return res, err
}
