// Package telemetry tracks cache, provider and enrichment counters for
// HiveWatch with concurrent-safe updates and on-demand snapshots.
package telemetry

import (
	"sync"
	"time"
)

// TierCounters aggregates cache activity for a single tier
type TierCounters struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Stores int64 `json:"stores"`
	Errors int64 `json:"errors"`
}

// ProviderCounters aggregates upstream call activity for a single service
type ProviderCounters struct {
	Calls     int64 `json:"calls"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Snapshot is a point-in-time copy of all counters
type Snapshot struct {
	Tiers     map[string]TierCounters     `json:"tiers"`
	Providers map[string]ProviderCounters `json:"providers"`

	SessionsEnriched int64         `json:"sessionsEnriched"`
	FilesEnriched    int64         `json:"filesEnriched"`
	AvgEnrichLatency time.Duration `json:"avgEnrichLatency"`

	Uptime     time.Duration `json:"uptime"`
	ObservedAt time.Time     `json:"observedAt"`
}

// Collector accumulates enrichment telemetry. All methods are safe for
// concurrent use. A nil *Collector is valid and records nothing, so callers
// never need to guard their instrumentation sites.
type Collector struct {
	mu        sync.Mutex
	tiers     map[string]*TierCounters
	providers map[string]*ProviderCounters

	sessionsEnriched int64
	filesEnriched    int64
	enrichCount      int64
	enrichTotal      time.Duration

	started time.Time
}

// NewCollector creates a telemetry collector
func NewCollector() *Collector {
	return &Collector{
		tiers:     make(map[string]*TierCounters),
		providers: make(map[string]*ProviderCounters),
		started:   time.Now(),
	}
}

func (c *Collector) tier(name string) *TierCounters {
	t, ok := c.tiers[name]
	if !ok {
		t = &TierCounters{}
		c.tiers[name] = t
	}
	return t
}

func (c *Collector) provider(name string) *ProviderCounters {
	p, ok := c.providers[name]
	if !ok {
		p = &ProviderCounters{}
		c.providers[name] = p
	}
	return p
}

// RecordTierHit increments the hit counter for a cache tier
func (c *Collector) RecordTierHit(tier string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Hits++
}

// RecordTierMiss increments the miss counter for a cache tier
func (c *Collector) RecordTierMiss(tier string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Misses++
}

// RecordTierStore increments the store counter for a cache tier
func (c *Collector) RecordTierStore(tier string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Stores++
}

// RecordTierError increments the error counter for a cache tier
func (c *Collector) RecordTierError(tier string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tier(tier).Errors++
}

// RecordProviderCall records one upstream exchange and its outcome
func (c *Collector) RecordProviderCall(service string, success bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.provider(service)
	p.Calls++
	if success {
		p.Successes++
	} else {
		p.Failures++
	}
}

// RecordSessionEnriched records a completed session enrichment
func (c *Collector) RecordSessionEnriched(duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionsEnriched++
	c.enrichCount++
	c.enrichTotal += duration
}

// RecordFileEnriched records a completed file enrichment
func (c *Collector) RecordFileEnriched(duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filesEnriched++
	c.enrichCount++
	c.enrichTotal += duration
}

// GetSnapshot returns a copy of all counters at this instant
func (c *Collector) GetSnapshot() Snapshot {
	if c == nil {
		return Snapshot{ObservedAt: time.Now()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Tiers:            make(map[string]TierCounters, len(c.tiers)),
		Providers:        make(map[string]ProviderCounters, len(c.providers)),
		SessionsEnriched: c.sessionsEnriched,
		FilesEnriched:    c.filesEnriched,
		Uptime:           time.Since(c.started),
		ObservedAt:       time.Now(),
	}
	for name, t := range c.tiers {
		snap.Tiers[name] = *t
	}
	for name, p := range c.providers {
		snap.Providers[name] = *p
	}
	if c.enrichCount > 0 {
		snap.AvgEnrichLatency = c.enrichTotal / time.Duration(c.enrichCount)
	}
	return snap
}
