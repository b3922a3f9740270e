// Package app wires storage, domain services and instrumentation together
// for the server and the operator CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"opsdesk/internal/config"
	"opsdesk/internal/domain/document"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/internal/domain/sequence"
	"opsdesk/internal/infrastructure/metrics"
	"opsdesk/pkg/logger"
)

// App is the assembled application.
type App struct {
	Config  *config.Configuration
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Backend *Backend

	LegalEntities *legalentity.Service
	Allocator     *sequence.Allocator
	Documents     *document.Service
	Backfiller    *sequence.Backfiller
}

// Options tune New.
type Options struct {
	// Registerer receives the Prometheus collectors. Nil disables metrics.
	Registerer prometheus.Registerer

	// Migrate applies schema migrations before returning.
	Migrate bool
}

// New opens the configured backend and builds the services on top of it.
func New(ctx context.Context, cfg *config.Configuration, log *logger.Logger, opts Options) (*App, error) {
	prefixes, err := cfg.Numbering.Prefixes()
	if err != nil {
		return nil, fmt.Errorf("numbering prefixes: %w", err)
	}

	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.New(opts.Registerer)
	}

	backend, err := OpenBackend(ctx, cfg, log, m)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	if opts.Migrate && backend.Migrate != nil {
		if err := backend.Migrate(ctx); err != nil {
			backend.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrations applied")
	}

	entities := legalentity.NewService(legalentity.ServiceConfig{
		Repo:            backend.Entities,
		Counters:        backend.Counters,
		TxManager:       backend.TxManager,
		Audit:           backend.Audit,
		DefaultPrefixes: prefixes,
	})

	seqCfg := sequence.Config{
		Store:     backend.Counters,
		Entities:  backend.Entities,
		TxManager: backend.TxManager,
		Audit:     backend.Audit,
	}
	if m != nil {
		seqCfg.Observer = m
	}
	allocator := sequence.New(seqCfg)

	return &App{
		Config:        cfg,
		Logger:        log,
		Metrics:       m,
		Backend:       backend,
		LegalEntities: entities,
		Allocator:     allocator,
		Documents:     document.NewService(backend.Documents, entities, allocator, backend.TxManager),
		Backfiller:    sequence.NewBackfiller(allocator, entities, backend.Documents, cfg.Numbering.BackfillConcurrency),
	}, nil
}

// Close releases the backend.
func (a *App) Close() {
	a.Backend.Close()
}
