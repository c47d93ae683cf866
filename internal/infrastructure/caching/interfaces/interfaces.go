// Package interfaces defines the cache store contract shared by every tier
// of the enrichment cache hierarchy.
package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
)

// Tier names used for telemetry and composition.
const (
	TierMemory     = "memory"
	TierRedis      = "redis"
	TierDB         = "db"
	TierFilesystem = "filesystem"
)

// Store is the contract every cache tier implements. Payloads are sanitized
// compact JSON; the tiers never inspect them. Get returns ok=false on miss,
// on expiry, and on any I/O fault (faults are logged by the tier, never
// surfaced).
type Store interface {
	Name() string
	Get(ctx context.Context, service, key string) (json.RawMessage, bool)
	Put(ctx context.Context, service, key string, payload json.RawMessage) error
	Delete(ctx context.Context, service, key string) error
	Stats() Stats
}

// Stats are per-tier cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Stores  int64 `json:"stores"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`
}

// TTLPolicy maps a service name to its cache time-to-live. TTL is per
// service, not global.
type TTLPolicy map[string]time.Duration

// DefaultTTL applies to services without an explicit policy entry.
const DefaultTTL = 24 * time.Hour

// For returns the TTL for a service, falling back to DefaultTTL.
func (p TTLPolicy) For(service string) time.Duration {
	if ttl, ok := p[service]; ok && ttl > 0 {
		return ttl
	}
	return DefaultTTL
}

// DefaultTTLPolicy returns the recommended per-service TTLs.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		enrichment.ServiceDShield:    7 * 24 * time.Hour,
		enrichment.ServiceURLHaus:    24 * time.Hour,
		enrichment.ServiceSpur:       7 * 24 * time.Hour,
		enrichment.ServiceVirusTotal: 30 * 24 * time.Hour,
	}
}
