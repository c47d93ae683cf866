package stores

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
)

// RedisStore is the durable shared tier: an out-of-process key-value store
// shared across service instances. Keys use the {service}:{key} namespace
// and values are the same sanitized JSON payload the other tiers hold; TTL
// is delegated to the server via expiry on SET.
type RedisStore struct {
	client  *redis.Client
	policy  interfaces.TTLPolicy
	stats   interfaces.Stats
	statsMu sync.Mutex
	logger  *logging.ChanneledLogger
}

// NewRedisStore creates the redis durable cache tier
func NewRedisStore(client *redis.Client, policy interfaces.TTLPolicy, logger *logging.ChanneledLogger) *RedisStore {
	if logger != nil {
		logger.Cache().Info("Initializing redis cache store")
	}
	return &RedisStore{
		client: client,
		policy: policy,
		logger: logger,
	}
}

func (rs *RedisStore) Name() string { return interfaces.TierRedis }

func redisKey(service, key string) string { return service + ":" + key }

// Get fetches a payload from redis; connection faults count as misses.
func (rs *RedisStore) Get(ctx context.Context, service, key string) (json.RawMessage, bool) {
	start := time.Now()

	payload, err := rs.client.Get(ctx, redisKey(service, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rs.count(func(s *interfaces.Stats) { s.Errors++ })
			if rs.logger != nil {
				rs.logger.Cache().Warn("Redis read failed, treating as miss", "service", service, "key", key, "error", err.Error())
			}
		}
		rs.count(func(s *interfaces.Stats) { s.Misses++ })
		if rs.logger != nil {
			rs.logger.LogCacheOperation("get", rs.Name(), service, key, false, time.Since(start))
		}
		return nil, false
	}

	rs.count(func(s *interfaces.Stats) { s.Hits++ })
	if rs.logger != nil {
		rs.logger.LogCacheOperation("get", rs.Name(), service, key, true, time.Since(start))
	}
	return payload, true
}

// Put stores a payload with the service TTL as server-side expiry
func (rs *RedisStore) Put(ctx context.Context, service, key string, payload json.RawMessage) error {
	err := rs.client.Set(ctx, redisKey(service, key), []byte(payload), rs.policy.For(service)).Err()
	if err != nil {
		rs.count(func(s *interfaces.Stats) { s.Errors++ })
		return err
	}
	rs.count(func(s *interfaces.Stats) { s.Stores++ })
	return nil
}

// Delete removes an entry
func (rs *RedisStore) Delete(ctx context.Context, service, key string) error {
	if err := rs.client.Del(ctx, redisKey(service, key)).Err(); err != nil {
		rs.count(func(s *interfaces.Stats) { s.Errors++ })
		return err
	}
	rs.count(func(s *interfaces.Stats) { s.Deletes++ })
	return nil
}

// Stats returns a copy of the tier counters
func (rs *RedisStore) Stats() interfaces.Stats {
	rs.statsMu.Lock()
	defer rs.statsMu.Unlock()
	return rs.stats
}

// Close releases the underlying connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func (rs *RedisStore) count(update func(*interfaces.Stats)) {
	rs.statsMu.Lock()
	update(&rs.stats)
	rs.statsMu.Unlock()
}
