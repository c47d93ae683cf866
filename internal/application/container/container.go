// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hivewatch/hivewatch-go/internal/application/services"
	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/cleanup"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/manager"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/stores"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/telemetry"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/providers"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/ratelimit"
	"github.com/hivewatch/hivewatch-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Logger    *logging.ChanneledLogger
	Telemetry *telemetry.Collector

	CacheManager    *manager.Manager
	CleanupWorker   *cleanup.Worker
	CleanupReporter *cleanup.Reporter

	Limiters       *ratelimit.Limiters
	Retrier        *ratelimit.Retrier
	SessionFactory *providers.SessionFactory
	QuotaManager   *providers.QuotaManager

	EnrichmentService *services.EnrichmentService
}

// NewContainer creates and wires all singleton services from the
// environment configuration.
func NewContainer() (*Container, error) {
	logger, err := logging.NewChanneledLogger(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	collector := telemetry.NewCollector()
	policy := interfaces.TTLPolicy{
		enrichment.ServiceDShield:    config.DShieldTTL,
		enrichment.ServiceURLHaus:    config.URLHausTTL,
		enrichment.ServiceSpur:       config.SpurTTL,
		enrichment.ServiceVirusTotal: config.VTTTL,
	}

	// Cache tiers, fastest first. The durable tier is redis when enabled,
	// the sqlite file otherwise; the filesystem tier always closes the
	// hierarchy.
	tiers := []interfaces.Store{stores.NewMemoryStore(policy, logger)}
	if config.EnableRedisCache {
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		tiers = append(tiers, stores.NewRedisStore(client, policy, logger))
	} else if config.EnableDBCache {
		dbStore, err := stores.NewSQLiteStore(config.DBCachePath, policy, logger)
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("failed to open durable cache: %w", err)
		}
		tiers = append(tiers, dbStore)
	}
	fsStore := stores.NewFilesystemStore(config.CacheBaseDir, policy, logger)
	tiers = append(tiers, fsStore)

	cacheManager := manager.NewManager(tiers, collector, logger)

	reporter := cleanup.NewReporter(0)
	worker := cleanup.NewWorker(fsStore, cleanup.DefaultConfig(), reporter, logger)

	limiters := ratelimit.NewLimiters(ratelimit.DefaultLimits(), config.EnableRateLimiting, logger)
	retrier := ratelimit.NewRetrier(ratelimit.DefaultPolicy(), logger)
	factory := providers.NewSessionFactory(config.HTTPTimeout, nil)

	deps := providers.Deps{
		Factory:   factory,
		Cache:     cacheManager,
		Limiters:  limiters,
		Retrier:   retrier,
		Telemetry: collector,
		Logger:    logger,
	}

	var quota *providers.QuotaManager
	if config.EnableVTQuotaManagement && config.VTAPIKey != "" {
		quota = providers.NewQuotaManager(deps, config.VTBaseURL, config.VTAPIKey,
			config.QuotaSnapshotTTL, config.VTQuotaThresholdPercent)
	}

	enrichmentService := services.NewEnrichmentService(
		cacheManager,
		providers.NewDShieldClient(deps, config.DShieldBaseURL, config.DShieldEmail, config.SkipEnrich),
		providers.NewURLHausClient(deps, config.URLHausBaseURL, config.URLHausAPIKey, config.SkipEnrich, config.URLHausWallClockTimeout),
		providers.NewSpurClient(deps, config.SpurBaseURL, config.SpurAPIToken, config.SkipEnrich),
		providers.NewVirusTotalClient(deps, config.VTBaseURL, config.VTAPIKey, config.SkipEnrich, quota),
		factory,
		collector,
		logger,
		config.SkipEnrich,
	)

	return &Container{
		Logger:            logger,
		Telemetry:         collector,
		CacheManager:      cacheManager,
		CleanupWorker:     worker,
		CleanupReporter:   reporter,
		Limiters:          limiters,
		Retrier:           retrier,
		SessionFactory:    factory,
		QuotaManager:      quota,
		EnrichmentService: enrichmentService,
	}, nil
}

// Close releases every owned resource in reverse dependency order
func (c *Container) Close() error {
	c.CleanupWorker.Stop()
	err := c.EnrichmentService.Close()
	if closeErr := c.Logger.Close(); err == nil {
		err = closeErr
	}
	return err
}
