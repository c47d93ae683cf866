// Package manager composes the cache tiers into a single read-through,
// write-through hierarchy.
package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/stores"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/telemetry"
)

// Manager coordinates the configured cache tiers, fastest first. Tiers are
// independent and may disagree; read takes the highest-tier value found and
// opportunistically back-fills the tiers above it. Absent tiers compose
// out. Write-through fans out to every tier; individual tier write failures
// are logged and never fail the request.
type Manager struct {
	tiers     []interfaces.Store
	fsStore   *stores.FilesystemStore
	telemetry *telemetry.Collector
	logger    *logging.ChanneledLogger
}

// NewManager composes the given tiers, ordered fastest first. Any tier may
// be nil.
func NewManager(tiers []interfaces.Store, collector *telemetry.Collector, logger *logging.ChanneledLogger) *Manager {
	m := &Manager{telemetry: collector, logger: logger}
	names := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		if tier == nil {
			continue
		}
		m.tiers = append(m.tiers, tier)
		names = append(names, tier.Name())
		if fs, ok := tier.(*stores.FilesystemStore); ok {
			m.fsStore = fs
		}
	}
	if logger != nil {
		logger.Cache().Info("Initializing cache manager", "tiers", names)
	}
	return m
}

// Filesystem returns the filesystem tier, or nil when not configured. The
// cleanup job and the file-scanner's disk-first optimization use it
// directly.
func (m *Manager) Filesystem() *stores.FilesystemStore { return m.fsStore }

// Get walks the tiers in order and returns the first hit, back-filling the
// missed tiers above it best-effort.
func (m *Manager) Get(ctx context.Context, service, key string) (json.RawMessage, bool) {
	start := time.Now()

	for i, tier := range m.tiers {
		payload, ok := tier.Get(ctx, service, key)
		if !ok {
			m.telemetry.RecordTierMiss(tier.Name())
			continue
		}
		m.telemetry.RecordTierHit(tier.Name())
		m.backfill(ctx, service, key, payload, i)
		if m.logger != nil {
			m.logger.LogCacheOperation("get", tier.Name(), service, key, true, time.Since(start))
		}
		return payload, true
	}

	return nil, false
}

// backfill promotes a hit into the tiers that missed, best-effort.
func (m *Manager) backfill(ctx context.Context, service, key string, payload json.RawMessage, hitIndex int) {
	for _, tier := range m.tiers[:hitIndex] {
		if err := tier.Put(ctx, service, key, payload); err != nil {
			m.telemetry.RecordTierError(tier.Name())
			if m.logger != nil {
				m.logger.Cache().Debug("Cache backfill failed", "tier", tier.Name(), "service", service, "key", key, "error", err.Error())
			}
			continue
		}
		m.telemetry.RecordTierStore(tier.Name())
	}
}

// Put writes the sanitized payload through every tier. Tier failures are
// logged and do not fail the request.
func (m *Manager) Put(ctx context.Context, service, key string, payload json.RawMessage) {
	for _, tier := range m.tiers {
		if err := tier.Put(ctx, service, key, payload); err != nil {
			m.telemetry.RecordTierError(tier.Name())
			if m.logger != nil {
				m.logger.Cache().Warn("Cache write-through failed", "tier", tier.Name(), "service", service, "key", key, "error", err.Error())
			}
			continue
		}
		m.telemetry.RecordTierStore(tier.Name())
	}
}

// Delete removes an entry from every tier, best-effort
func (m *Manager) Delete(ctx context.Context, service, key string) {
	for _, tier := range m.tiers {
		if err := tier.Delete(ctx, service, key); err != nil {
			m.telemetry.RecordTierError(tier.Name())
		}
	}
}

// Stats returns per-tier counters keyed by tier name
func (m *Manager) Stats() map[string]interfaces.Stats {
	out := make(map[string]interfaces.Stats, len(m.tiers))
	for _, tier := range m.tiers {
		out[tier.Name()] = tier.Stats()
	}
	return out
}

// Close releases any tier holding external resources
func (m *Manager) Close() error {
	var firstErr error
	for _, tier := range m.tiers {
		closer, ok := tier.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
