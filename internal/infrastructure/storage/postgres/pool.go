// Package postgres provides the PostgreSQL storage backend: connection pool,
// transaction manager, counter store, repositories, audit trail and schema
// migrations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"opsdesk/internal/config"
	"opsdesk/pkg/logger"
)

// ApplicationName tags every session so numbering traffic is identifiable in
// pg_stat_activity.
const ApplicationName = "opsdesk"

const (
	fallbackMaxConns        int32 = 25
	fallbackMaxConnLifetime       = time.Hour
	fallbackMaxConnIdleTime       = 30 * time.Minute
	healthCheckPeriod             = time.Minute
)

// NewPoolConfig turns the storage.postgres settings into a pgxpool config.
// Unset limits fall back to the service defaults and MinConns never
// exceeds MaxConns, so a partial config file still yields a usable pool.
func NewPoolConfig(pc config.PostgresConfig) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(pc.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pcfg.MaxConns = pc.MaxConns
	if pcfg.MaxConns <= 0 {
		pcfg.MaxConns = fallbackMaxConns
	}
	pcfg.MinConns = min(max(pc.MinConns, 0), pcfg.MaxConns)

	pcfg.MaxConnLifetime = pc.MaxConnLifetime
	if pcfg.MaxConnLifetime <= 0 {
		pcfg.MaxConnLifetime = fallbackMaxConnLifetime
	}
	pcfg.MaxConnIdleTime = pc.MaxConnIdleTime
	if pcfg.MaxConnIdleTime <= 0 {
		pcfg.MaxConnIdleTime = fallbackMaxConnIdleTime
	}
	pcfg.HealthCheckPeriod = healthCheckPeriod

	if _, ok := pcfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pcfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	return pcfg, nil
}

// Pool is the shared pgx pool behind the transaction manager.
type Pool struct {
	*pgxpool.Pool
}

func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// NewPool opens the pool described by pc and pings it once.
func NewPool(ctx context.Context, pc config.PostgresConfig) (*Pool, error) {
	pcfg, err := NewPoolConfig(pc)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// PoolStats is the slice of pgxpool.Stat exported as gauges.
type PoolStats struct {
	TotalConns    int32
	AcquiredConns int32
	IdleConns     int32
	MaxConns      int32
}

func (p *Pool) Stats() PoolStats {
	stat := p.Stat()
	return PoolStats{
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// LogStats writes the current pool occupancy at info level.
func (p *Pool) LogStats(ctx context.Context) {
	stats := p.Stats()
	logger.Info(ctx, "postgres pool stats",
		"total", stats.TotalConns,
		"acquired", stats.AcquiredConns,
		"idle", stats.IdleConns,
		"max", stats.MaxConns,
	)
}
