// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opsdesk/internal/domain/audit"
	"opsdesk/internal/domain/document"
	"opsdesk/internal/domain/legalentity"
	"opsdesk/internal/domain/sequence"
	"opsdesk/internal/infrastructure/http/v1/dto"
	"opsdesk/internal/infrastructure/http/v1/handlers"
	"opsdesk/internal/infrastructure/http/v1/middleware"
	"opsdesk/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	LegalEntities *legalentity.Service
	Allocator     *sequence.Allocator
	Documents     *document.Service
	Audit         audit.Recorder

	// Storage backs the readiness probe.
	Storage       handlers.Pinger
	StorageDriver string
	Version       string

	// Metrics records HTTP requests; nil disables request metrics.
	Metrics middleware.HTTPObserver

	// Gatherer is exposed on MetricsPath when set.
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	dto.RegisterValidators()

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Storage, cfg.StorageDriver, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	if cfg.Gatherer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	base := handlers.NewBaseHandler()
	entityHandler := handlers.NewLegalEntityHandler(base, cfg.LegalEntities, cfg.Audit)
	counterHandler := handlers.NewCounterHandler(base, cfg.LegalEntities, cfg.Allocator)
	documentHandler := handlers.NewDocumentHandler(base, cfg.Documents)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Company())
	{
		entities := v1.Group("/legal-entities")
		entities.GET("", entityHandler.List)
		entities.POST("", entityHandler.Create)
		entities.GET("/:id", entityHandler.Get)
		entities.PATCH("/:id", entityHandler.Update)
		entities.POST("/:id/archive", entityHandler.Archive)
		entities.POST("/:id/default", entityHandler.SetDefault)
		entities.GET("/:id/audit", entityHandler.History)
		entities.GET("/:id/counters", counterHandler.List)
		entities.PUT("/:id/counters/:kind", counterHandler.Update)

		documents := v1.Group("/documents/:kind")
		documents.GET("", documentHandler.List)
		documents.POST("", documentHandler.Create)
		documents.GET("/:id", documentHandler.Get)
	}

	return router
}
