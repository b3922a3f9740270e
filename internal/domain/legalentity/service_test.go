package legalentity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"opsdesk/internal/core/apperror"
	appctx "opsdesk/internal/core/context"
	"opsdesk/internal/core/id"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/domain/audit"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/internal/infrastructure/storage/embedded"
)

type fixture struct {
	svc       *legalentity.Service
	counters  *embedded.CounterStore
	audit     *embedded.AuditRecorder
	companyID id.ID
}

func newFixture(t *testing.T, prefixes map[numbering.Kind]string) *fixture {
	t.Helper()
	db, err := embedded.Open(embedded.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	txm := embedded.NewTxManager(db, embedded.DefaultTxOptions())
	f := &fixture{
		counters:  embedded.NewCounterStore(txm),
		audit:     embedded.NewAuditRecorder(txm),
		companyID: id.New(),
	}
	f.svc = legalentity.NewService(legalentity.ServiceConfig{
		Repo:            embedded.NewLegalEntityRepo(txm),
		Counters:        f.counters,
		TxManager:       txm,
		Audit:           f.audit,
		DefaultPrefixes: prefixes,
	})
	return f
}

func (f *fixture) create(t *testing.T, name string, isDefault bool) *legalentity.LegalEntity {
	t.Helper()
	e, err := f.svc.Create(context.Background(), legalentity.CreateInput{
		CompanyID:   f.companyID,
		DisplayName: name,
		IsDefault:   isDefault,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) defaults(t *testing.T) []id.ID {
	t.Helper()
	all, err := f.svc.List(context.Background(), f.companyID)
	require.NoError(t, err)
	var out []id.ID
	for _, e := range all {
		if e.IsDefault {
			out = append(out, e.ID)
		}
	}
	return out
}

func TestCreate_SeedsAllCounters(t *testing.T) {
	f := newFixture(t, map[numbering.Kind]string{numbering.KindInvoice: "TAX-"})
	ctx := context.Background()
	quotePrefix := "SQ-"

	e, err := f.svc.Create(ctx, legalentity.CreateInput{
		CompanyID:   f.companyID,
		DisplayName: "  North Electrical  ",
		Counters: map[numbering.Kind]legalentity.CounterSeed{
			numbering.KindQuote: {Prefix: &quotePrefix, NextNumber: 500},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "North Electrical", e.DisplayName)
	assert.True(t, e.IsDefault, "first entity of a company becomes the default")

	counters, err := f.svc.Counters(ctx, f.companyID, e.ID)
	require.NoError(t, err)
	require.Len(t, counters, len(numbering.Kinds()))

	byKind := make(map[numbering.Kind]numbering.Counter)
	for _, c := range counters {
		byKind[c.Kind] = c
	}
	assert.Equal(t, "SQ-", byKind[numbering.KindQuote].Prefix)
	assert.Equal(t, int64(500), byKind[numbering.KindQuote].NextNumber)
	assert.Equal(t, "TAX-", byKind[numbering.KindInvoice].Prefix)
	assert.Equal(t, int64(1), byKind[numbering.KindInvoice].NextNumber)
	assert.Equal(t, numbering.KindCertificate.DefaultPrefix(), byKind[numbering.KindCertificate].Prefix)
	for _, c := range counters {
		assert.Zero(t, c.HighWaterMark)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	bad := "A B"

	tests := []struct {
		name string
		in   legalentity.CreateInput
	}{
		{"blank name", legalentity.CreateInput{CompanyID: f.companyID, DisplayName: "   "}},
		{"unknown kind", legalentity.CreateInput{
			CompanyID: f.companyID, DisplayName: "X",
			Counters: map[numbering.Kind]legalentity.CounterSeed{"receipt": {}},
		}},
		{"bad prefix", legalentity.CreateInput{
			CompanyID: f.companyID, DisplayName: "X",
			Counters: map[numbering.Kind]legalentity.CounterSeed{numbering.KindQuote: {Prefix: &bad}},
		}},
		{"negative next number", legalentity.CreateInput{
			CompanyID: f.companyID, DisplayName: "X",
			Counters: map[numbering.Kind]legalentity.CounterSeed{numbering.KindQuote: {NextNumber: -5}},
		}},
		{"next number past the maximum", legalentity.CreateInput{
			CompanyID: f.companyID, DisplayName: "X",
			Counters: map[numbering.Kind]legalentity.CounterSeed{numbering.KindInvoice: {NextNumber: numbering.MaxNumber + 1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.in)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}

	all, err := f.svc.List(ctx, f.companyID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSetDefault_ExactlyOne(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.create(t, "A", false)
	b := f.create(t, "B", false)
	c := f.create(t, "C", true)

	assert.Equal(t, []id.ID{c.ID}, f.defaults(t))

	_, err := f.svc.SetDefault(ctx, f.companyID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{b.ID}, f.defaults(t))

	// Idempotent.
	_, err = f.svc.SetDefault(ctx, f.companyID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{b.ID}, f.defaults(t))

	def, err := f.svc.GetDefault(ctx, f.companyID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	_, err = f.svc.SetDefault(ctx, id.New(), a.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeEntityNotFound))
}

func TestSetDefault_ConcurrentSwitchesLeaveOneDefault(t *testing.T) {
	f := newFixture(t, nil)
	ids := []id.ID{
		f.create(t, "A", false).ID,
		f.create(t, "B", false).ID,
		f.create(t, "C", false).ID,
		f.create(t, "D", false).ID,
	}

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 8; i++ {
		target := ids[i%len(ids)]
		g.Go(func() error {
			_, err := f.svc.SetDefault(ctx, f.companyID, target)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, f.defaults(t), 1)
}

func TestSetDefault_ArchivedRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.create(t, "Main", false)
	side := f.create(t, "Side", false)

	_, err := f.svc.Archive(ctx, f.companyID, side.ID)
	require.NoError(t, err)

	_, err = f.svc.SetDefault(ctx, f.companyID, side.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeEntityArchived))
}

func TestArchive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	main := f.create(t, "Main", false)
	side := f.create(t, "Side", false)

	_, err := f.svc.Archive(ctx, f.companyID, main.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))

	archived, err := f.svc.Archive(ctx, f.companyID, side.ID)
	require.NoError(t, err)
	assert.Equal(t, legalentity.StatusArchived, archived.Status)

	// Counters survive archiving.
	counters, err := f.svc.Counters(ctx, f.companyID, side.ID)
	require.NoError(t, err)
	assert.Len(t, counters, len(numbering.Kinds()))

	// Archiving twice is a no-op.
	_, err = f.svc.Archive(ctx, f.companyID, side.ID)
	require.NoError(t, err)
}

func TestResolve(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Resolve(ctx, f.companyID, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeNoDefaultEntity))

	main := f.create(t, "Main", false)
	side := f.create(t, "Side", false)

	got, err := f.svc.Resolve(ctx, f.companyID, nil)
	require.NoError(t, err)
	assert.Equal(t, main.ID, got.ID)

	got, err = f.svc.Resolve(ctx, f.companyID, &side.ID)
	require.NoError(t, err)
	assert.Equal(t, side.ID, got.ID)

	nilID := id.Nil()
	got, err = f.svc.Resolve(ctx, f.companyID, &nilID)
	require.NoError(t, err)
	assert.Equal(t, main.ID, got.ID)

	_, err = f.svc.Archive(ctx, f.companyID, side.ID)
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, f.companyID, &side.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeEntityArchived))

	other := id.New()
	_, err = f.svc.Resolve(ctx, other, &main.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeEntityNotFound))
}

func TestRename(t *testing.T) {
	f := newFixture(t, nil)
	e := f.create(t, "Old Name", false)
	ctx := appctx.WithCompany(context.Background(), &appctx.CompanyContext{CompanyID: f.companyID, Actor: "dana"})

	renamed, err := f.svc.Rename(ctx, f.companyID, e.ID, "New Name", e.Version)
	require.NoError(t, err)
	assert.Equal(t, "New Name", renamed.DisplayName)

	_, err = f.svc.Rename(ctx, f.companyID, e.ID, "Stale", e.Version)
	assert.True(t, apperror.IsConcurrentModification(err))

	history, err := f.audit.History(ctx, audit.EntityLegalEntity, e.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, audit.ActionUpdate, history[0].Action)
	assert.Equal(t, "dana", history[0].Actor)
	assert.Equal(t, audit.ActionCreate, history[1].Action)
}
