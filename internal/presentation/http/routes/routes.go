// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/hivewatch/hivewatch-go/internal/application/container"
	"github.com/hivewatch/hivewatch-go/internal/presentation/http/handlers"
	"github.com/hivewatch/hivewatch-go/internal/presentation/http/middleware"
	"github.com/hivewatch/hivewatch-go/pkg/config"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	enrichHandlers := handlers.NewEnrichHandlers(container.EnrichmentService, container.Logger)
	adminHandlers := handlers.NewAdminHandlers(
		container.EnrichmentService,
		container.Telemetry,
		container.CleanupWorker,
		container.CleanupReporter,
		container.QuotaManager,
		container.Logger,
	)

	api := r.Group("/api/v1")
	{
		api.GET("/health", adminHandlers.Health)

		api.POST("/enrich/session", enrichHandlers.PostSession)
		api.POST("/enrich/file", enrichHandlers.PostFile)

		api.GET("/cache/stats", adminHandlers.CacheStats)
		api.POST("/cache/cleanup", adminHandlers.CleanupRun)
		api.GET("/cache/cleanup/runs", adminHandlers.CleanupRuns)

		api.GET("/quota", adminHandlers.Quota)

		api.GET("/logging/levels", adminHandlers.LogLevels)
		api.PUT("/logging/levels", adminHandlers.SetLogLevel)

		if config.EnableTelemetry {
			api.GET("/telemetry", adminHandlers.Telemetry)
		}
	}

	return r
}
