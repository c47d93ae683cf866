// Package stores provides the concrete cache tier implementations
package stores

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
)

// MemoryStore is the L1 in-memory tier: a mutex-guarded map with per-entry
// store times checked against the per-service TTL policy on read.
type MemoryStore struct {
	entries map[string]*memoryEntry
	policy  interfaces.TTLPolicy
	mu      sync.RWMutex
	stats   interfaces.Stats
	statsMu sync.Mutex
	logger  *logging.ChanneledLogger
	now     func() time.Time
}

type memoryEntry struct {
	payload  json.RawMessage
	storedAt time.Time
}

// NewMemoryStore creates the in-memory cache tier
func NewMemoryStore(policy interfaces.TTLPolicy, logger *logging.ChanneledLogger) *MemoryStore {
	if logger != nil {
		logger.Cache().Info("Initializing memory cache store")
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		policy:  policy,
		logger:  logger,
		now:     time.Now,
	}
}

func (ms *MemoryStore) Name() string { return interfaces.TierMemory }

func memoryKey(service, key string) string { return service + ":" + key }

// Get returns the cached payload for (service, key), treating expired
// entries as misses and evicting them.
func (ms *MemoryStore) Get(_ context.Context, service, key string) (json.RawMessage, bool) {
	start := ms.now()

	ms.mu.RLock()
	entry, found := ms.entries[memoryKey(service, key)]
	ms.mu.RUnlock()

	if !found {
		ms.count(func(s *interfaces.Stats) { s.Misses++ })
		if ms.logger != nil {
			ms.logger.LogCacheOperation("get", ms.Name(), service, key, false, time.Since(start))
		}
		return nil, false
	}

	if ms.now().Sub(entry.storedAt) > ms.policy.For(service) {
		ms.mu.Lock()
		delete(ms.entries, memoryKey(service, key))
		ms.mu.Unlock()
		ms.count(func(s *interfaces.Stats) { s.Misses++ })
		if ms.logger != nil {
			ms.logger.LogCacheOperation("get_expired", ms.Name(), service, key, false, time.Since(start))
		}
		return nil, false
	}

	ms.count(func(s *interfaces.Stats) { s.Hits++ })
	if ms.logger != nil {
		ms.logger.LogCacheOperation("get", ms.Name(), service, key, true, time.Since(start))
	}
	return entry.payload, true
}

// Put stores a sanitized payload for (service, key)
func (ms *MemoryStore) Put(_ context.Context, service, key string, payload json.RawMessage) error {
	stored := make(json.RawMessage, len(payload))
	copy(stored, payload)

	ms.mu.Lock()
	ms.entries[memoryKey(service, key)] = &memoryEntry{payload: stored, storedAt: ms.now()}
	ms.mu.Unlock()

	ms.count(func(s *interfaces.Stats) { s.Stores++ })
	return nil
}

// Delete removes an entry if present
func (ms *MemoryStore) Delete(_ context.Context, service, key string) error {
	ms.mu.Lock()
	delete(ms.entries, memoryKey(service, key))
	ms.mu.Unlock()

	ms.count(func(s *interfaces.Stats) { s.Deletes++ })
	return nil
}

// Stats returns a copy of the tier counters
func (ms *MemoryStore) Stats() interfaces.Stats {
	ms.statsMu.Lock()
	defer ms.statsMu.Unlock()
	return ms.stats
}

// Len reports the number of live entries, expired or not
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries)
}

func (ms *MemoryStore) count(update func(*interfaces.Stats)) {
	ms.statsMu.Lock()
	update(&ms.stats)
	ms.statsMu.Unlock()
}
