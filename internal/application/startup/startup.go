// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hivewatch/hivewatch-go/internal/application/container"
	"github.com/hivewatch/hivewatch-go/internal/presentation/http/server"
	"github.com/hivewatch/hivewatch-go/pkg/config"
)

// Initialize performs the complete startup sequence: configuration,
// dependency container, cleanup worker, HTTP server, and graceful
// shutdown on SIGINT/SIGTERM.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	// Step 1: Load configuration
	log.Println("Loading configuration...")
	config.Initialize()

	// Step 2: Create dependency injection container
	log.Println("Initializing dependency injection container...")
	containerStart := time.Now()
	appContainer, err := container.NewContainer()
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}

	logger := appContainer.Logger
	logger.LogStartupPhase("container", time.Since(containerStart), true)
	logger.Startup().Info("Container initialization complete - switching to channeled logging")

	// Step 3: Start background cleanup worker
	logger.Startup().Info("Starting background cleanup worker...")
	appContainer.CleanupWorker.Start()

	// Step 4: Start HTTP server
	serverStart := time.Now()
	port := config.Port
	httpServer := server.New(port, appContainer)
	logger.LogStartupPhase("http_server", time.Since(serverStart), true)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start).String(),
		"port", port,
		"skipEnrich", config.SkipEnrich)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Closing service container...")
	if err := appContainer.Close(); err != nil {
		log.Printf("Error closing container: %v", err)
	}

	log.Printf("Application shutdown complete (uptime %s, shutdown %s)",
		time.Since(start), time.Since(shutdownStart))

	return nil
}

// setupLogging configures framework logging before the channeled logger
// exists.
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
}
