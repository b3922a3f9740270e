package app

import (
	"context"
	"fmt"

	"opsdesk/internal/config"
	"opsdesk/internal/core/numbering"
	"opsdesk/internal/core/tx"
	"opsdesk/internal/domain/audit"
	"opsdesk/internal/domain/document"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/internal/infrastructure/metrics"
	"opsdesk/internal/infrastructure/storage/embedded"
	"opsdesk/internal/infrastructure/storage/postgres"
	"opsdesk/pkg/logger"
)

// Backend bundles one storage implementation of every repository.
type Backend struct {
	Name      string
	TxManager tx.Manager
	Counters  numbering.CounterStore
	Entities  legalentity.Repository
	Documents document.Repository
	Audit     audit.Recorder

	// Migrate applies schema migrations; nil for schemaless backends.
	Migrate func(ctx context.Context) error

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks that the storage is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

// Close releases the storage.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackend opens the storage selected by cfg.Storage.Driver. m may be nil.
func OpenBackend(ctx context.Context, cfg *config.Configuration, log *logger.Logger, m *metrics.Metrics) (*Backend, error) {
	var onRetry func()
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if m != nil {
			onRetry = m.TxRetryHook("postgres")
		}
		return openPostgres(ctx, cfg, log, m, onRetry)
	case config.DriverEmbedded:
		if m != nil {
			onRetry = m.TxRetryHook("badger")
		}
		return openEmbedded(cfg, log, onRetry)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openPostgres(ctx context.Context, cfg *config.Configuration, log *logger.Logger, m *metrics.Metrics, onRetry func()) (*Backend, error) {
	pc := cfg.Storage.Postgres
	pool, err := postgres.NewPool(ctx, pc)
	if err != nil {
		return nil, err
	}

	txm := postgres.NewTxManager(pool, postgres.TxManagerConfig{
		MaxAttempts:      cfg.Tx.MaxAttempts,
		StatementTimeout: cfg.Tx.StatementTimeout,
		OnRetry:          onRetry,
	})

	recorder, err := postgres.NewAuditRecorder(txm, pc.AuditCompressMin)
	if err != nil {
		pool.Close()
		return nil, err
	}

	if m != nil {
		m.RegisterGauge("pg_pool_acquired_conns", "Connections currently acquired from the pool.", func() float64 {
			return float64(pool.Stats().AcquiredConns)
		})
		m.RegisterGauge("pg_pool_idle_conns", "Idle connections in the pool.", func() float64 {
			return float64(pool.Stats().IdleConns)
		})
	}

	log.Infow("storage opened", "driver", config.DriverPostgres, "max_conns", pool.Stats().MaxConns)

	return &Backend{
		Name:      config.DriverPostgres,
		TxManager: txm,
		Counters:  postgres.NewCounterStore(txm),
		Entities:  postgres.NewLegalEntityRepo(txm),
		Documents: postgres.NewDocumentRepo(txm),
		Audit:     recorder,
		Migrate: func(ctx context.Context) error {
			mg, err := postgres.NewMigrator(pool)
			if err != nil {
				return err
			}
			defer mg.Close()
			if err := mg.Up(); err != nil {
				return err
			}
			pool.LogStats(ctx)
			return nil
		},
		ping:  txm.Ping,
		close: pool.Close,
	}, nil
}

func openEmbedded(cfg *config.Configuration, log *logger.Logger, onRetry func()) (*Backend, error) {
	ec := cfg.Storage.Embedded
	dbCfg := embedded.DefaultConfig(ec.Path)
	if ec.InMemory {
		dbCfg = embedded.InMemoryConfig()
	}
	dbCfg.SyncWrites = ec.SyncWrites && !ec.InMemory
	dbCfg.Logger = log

	db, err := embedded.Open(dbCfg)
	if err != nil {
		return nil, err
	}

	txm := embedded.NewTxManager(db, embedded.TxOptions{
		MaxAttempts: cfg.Tx.MaxAttempts,
		OnRetry:     onRetry,
	})

	log.Infow("storage opened", "driver", config.DriverEmbedded, "path", ec.Path, "in_memory", ec.InMemory)

	return &Backend{
		Name:      config.DriverEmbedded,
		TxManager: txm,
		Counters:  embedded.NewCounterStore(txm),
		Entities:  embedded.NewLegalEntityRepo(txm),
		Documents: embedded.NewDocumentRepo(txm),
		Audit:     embedded.NewAuditRecorder(txm),
		ping:      txm.Ping,
		close: func() {
			if err := db.Close(); err != nil {
				log.Errorw("close badger", "error", err)
			}
		},
	}, nil
}
