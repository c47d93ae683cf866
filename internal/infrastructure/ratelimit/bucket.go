// Package ratelimit provides per-service token buckets and the retry
// policy for outbound intelligence lookups.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/pkg/config"
)

// ServiceLimit is the token bucket shape for one upstream service
type ServiceLimit struct {
	Rate  float64 // sustained requests per second
	Burst int
}

// Limiters holds one token bucket per upstream service. A service without a
// configured bucket is not throttled. Disabled limiting makes Acquire a
// no-op; the buckets are still constructed so enabling at a later restart
// needs no migration.
type Limiters struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	enabled bool
	logger  *logging.ChanneledLogger
}

// DefaultLimits returns the per-service bucket shapes from the environment
func DefaultLimits() map[string]ServiceLimit {
	return map[string]ServiceLimit{
		enrichment.ServiceDShield:    {Rate: config.DShieldRate, Burst: config.DShieldBurst},
		enrichment.ServiceURLHaus:    {Rate: config.URLHausRate, Burst: config.URLHausBurst},
		enrichment.ServiceSpur:       {Rate: config.SpurRate, Burst: config.SpurBurst},
		enrichment.ServiceVirusTotal: {Rate: config.VTRate, Burst: config.VTBurst},
	}
}

// NewLimiters builds the per-service buckets
func NewLimiters(limits map[string]ServiceLimit, enabled bool, logger *logging.ChanneledLogger) *Limiters {
	buckets := make(map[string]*rate.Limiter, len(limits))
	for service, limit := range limits {
		buckets[service] = rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)
	}
	if logger != nil {
		logger.Rate().Info("Initializing rate limiters", "services", len(buckets), "enabled", enabled)
	}
	return &Limiters{buckets: buckets, enabled: enabled, logger: logger}
}

// Acquire blocks until a token is available for the service, the context is
// cancelled, or its deadline cannot accommodate the wait.
func (l *Limiters) Acquire(ctx context.Context, service string) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	bucket := l.buckets[service]
	l.mu.Unlock()
	if bucket == nil {
		return nil
	}

	start := time.Now()
	if err := bucket.Wait(ctx); err != nil {
		return err
	}

	if waited := time.Since(start); waited > 100*time.Millisecond && l.logger != nil {
		l.logger.Rate().Debug("Rate limiter delayed request",
			"service", service,
			"waited", waited.String())
	}
	return nil
}
