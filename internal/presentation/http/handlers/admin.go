package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hivewatch/hivewatch-go/internal/application/services"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/cleanup"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/telemetry"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/providers"
)

// AdminHandlers exposes health, telemetry, cache and quota introspection
type AdminHandlers struct {
	enrichmentService *services.EnrichmentService
	telemetry         *telemetry.Collector
	cleanupWorker     *cleanup.Worker
	cleanupReporter   *cleanup.Reporter
	quota             *providers.QuotaManager
	logger            *logging.ChanneledLogger
	startedAt         time.Time
}

// NewAdminHandlers creates admin handlers with dependencies
func NewAdminHandlers(
	enrichmentService *services.EnrichmentService,
	collector *telemetry.Collector,
	cleanupWorker *cleanup.Worker,
	cleanupReporter *cleanup.Reporter,
	quota *providers.QuotaManager,
	logger *logging.ChanneledLogger,
) *AdminHandlers {
	return &AdminHandlers{
		enrichmentService: enrichmentService,
		telemetry:         collector,
		cleanupWorker:     cleanupWorker,
		cleanupReporter:   cleanupReporter,
		quota:             quota,
		logger:            logger,
		startedAt:         time.Now(),
	}
}

// Health handles GET /api/v1/health
func (h *AdminHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Telemetry handles GET /api/v1/telemetry
func (h *AdminHandlers) Telemetry(c *gin.Context) {
	c.JSON(http.StatusOK, h.telemetry.GetSnapshot())
}

// CacheStats handles GET /api/v1/cache/stats
func (h *AdminHandlers) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": h.enrichmentService.CacheStats()})
}

// CleanupRun handles POST /api/v1/cache/cleanup, triggering a sweep
func (h *AdminHandlers) CleanupRun(c *gin.Context) {
	run := h.cleanupWorker.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, run)
}

// CleanupRuns handles GET /api/v1/cache/cleanup/runs
func (h *AdminHandlers) CleanupRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": h.cleanupReporter.Recent()})
}

// LogLevels handles GET /api/v1/logging/levels
func (h *AdminHandlers) LogLevels(c *gin.Context) {
	if h.logger == nil {
		c.JSON(http.StatusOK, gin.H{"channels": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": h.logger.GetChannelLevels()})
}

// SetLogLevel handles PUT /api/v1/logging/levels
func (h *AdminHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(req.Level)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown level: " + req.Level})
		return
	}
	if h.logger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "logging is not configured"})
		return
	}
	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "level": level.String()})
}

// Quota handles GET /api/v1/quota
func (h *AdminHandlers) Quota(c *gin.Context) {
	if h.quota == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	snap := h.quota.Snapshot(c.Request.Context())
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"enabled": true, "error": "quota snapshot unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":         true,
		"snapshot":        snap,
		"daily_percent":   snap.DailyPercent(),
		"hourly_percent":  snap.HourlyPercent(),
		"monthly_percent": snap.MonthlyPercent(),
	})
}
