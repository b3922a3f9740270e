package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/app"
	"opsdesk/internal/config"
	"opsdesk/internal/core/apperror"
	"opsdesk/internal/core/id"
	"opsdesk/internal/domain/audit"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/pkg/logger"
)

type harness struct {
	t         *testing.T
	app       *app.App
	companyID id.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Embedded.InMemory = true
	a, err := app.New(context.Background(), cfg, logger.NewNop(), app.Options{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return &harness{t: t, app: a, companyID: id.New()}
}

// run executes one opsctl invocation against the shared in-memory app.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	c := newCLI(&out)
	c.cfg = h.app.Config
	c.log = logger.NewNop()
	c.open = func(context.Context, *config.Configuration, *logger.Logger) (*app.App, func(), error) {
		return h.app, func() {}, nil
	}

	root := newRootCmd(c)
	root.SetArgs(append([]string{"--company", h.companyID.String(), "--actor", "ops-oncall"}, args...))
	err := root.ExecuteContext(context.Background())
	c.close()
	return out.String(), err
}

func (h *harness) entity(name string) *legalentity.LegalEntity {
	h.t.Helper()
	e, err := h.app.LegalEntities.Create(context.Background(), legalentity.CreateInput{
		CompanyID:   h.companyID,
		DisplayName: name,
	})
	require.NoError(h.t, err)
	return e
}

func TestEntitiesCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("entities", "create", "--name", "North Electrical")
	require.NoError(t, err)
	assert.Contains(t, out, "North Electrical")

	side := h.entity("South Electrical")
	out, err = h.run("entities", "set-default", side.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "South Electrical")

	out, err = h.run("entities", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "North Electrical")
	assert.Contains(t, out, "South Electrical")

	def, err := h.app.LegalEntities.GetDefault(context.Background(), h.companyID)
	require.NoError(t, err)
	assert.Equal(t, side.ID, def.ID)

	history, err := h.app.Backend.Audit.History(context.Background(), audit.EntityLegalEntity, side.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "ops-oncall", history[0].Actor)
}

func TestCountersCommands(t *testing.T) {
	h := newHarness(t)
	e := h.entity("Main")

	_, err := h.run("counters", "set-next", e.ID.String(), "quote", "1000")
	require.NoError(t, err)

	out, err := h.run("counters", "set-prefix", e.ID.String(), "quotes", "EST-")
	require.NoError(t, err)
	assert.Contains(t, out, "EST-001000")

	out, err = h.run("counters", "show", e.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "quote")
	assert.Contains(t, out, "invoice")
	assert.Contains(t, out, "certificate")

	_, err = h.app.Allocator.Allocate(context.Background(), e.ID, "quote")
	require.NoError(t, err)

	_, err = h.run("counters", "set-next", e.ID.String(), "quote", "1000")
	assert.True(t, apperror.HasCode(err, apperror.CodeCollidesWithExisting))

	_, err = h.run("counters", "set-next", e.ID.String(), "receipt", "5")
	assert.ErrorContains(t, err, "unknown document kind")
}

func TestCommandsRequireCompany(t *testing.T) {
	h := newHarness(t)
	e := h.entity("Main")

	var out bytes.Buffer
	c := newCLI(&out)
	root := newRootCmd(c)
	root.SetArgs([]string{"counters", "show", e.ID.String()})
	assert.ErrorContains(t, root.Execute(), "--company is required")

	// Another company cannot touch the entity.
	other := &harness{t: t, app: h.app, companyID: id.New()}
	_, err := other.run("counters", "set-next", e.ID.String(), "quote", "50")
	assert.True(t, apperror.HasCode(err, apperror.CodeEntityNotFound))
}

func TestBackfillCommand(t *testing.T) {
	h := newHarness(t)
	h.entity("Main")

	out, err := h.run("backfill")
	require.NoError(t, err)
	assert.Contains(t, out, "SCANNED")
	assert.Contains(t, out, "certificate")
}

func TestMigrateRequiresPostgres(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("migrate", "version")
	assert.ErrorContains(t, err, "postgres storage driver only")
}
