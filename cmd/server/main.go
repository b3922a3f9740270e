// Package main is the entry point for the opsdesk API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"opsdesk/internal/app"
	"opsdesk/internal/config"
	v1 "opsdesk/internal/infrastructure/http/v1"
	"opsdesk/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("OPSDESK_CONFIG_FILE"))
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting opsdesk server", "version", version, "storage", cfg.Storage.Driver)

	opts := app.Options{Migrate: cfg.Storage.Postgres.MigrateOnStart}
	if cfg.Metrics.Enabled {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	application, err := app.New(ctx, cfg, log, opts)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer application.Close()

	routerCfg := v1.RouterConfig{
		Logger:        log,
		LegalEntities: application.LegalEntities,
		Allocator:     application.Allocator,
		Documents:     application.Documents,
		Audit:         application.Backend.Audit,
		Storage:       application.Backend,
		StorageDriver: application.Backend.Name,
		Version:       version,
	}
	if application.Metrics != nil {
		routerCfg.Metrics = application.Metrics
		routerCfg.Gatherer = prometheus.DefaultGatherer
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      v1.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("server listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	}

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
