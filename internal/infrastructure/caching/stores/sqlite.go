package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
)

// SQLiteStore is the DB-backed durable tier, used when redis is not
// available to a deployment. Entries live in a single enrich_cache table;
// expiry is checked on read against stored_at.
type SQLiteStore struct {
	db      *sql.DB
	policy  interfaces.TTLPolicy
	stats   interfaces.Stats
	statsMu sync.Mutex
	logger  *logging.ChanneledLogger
	now     func() time.Time
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS enrich_cache (
	service   TEXT NOT NULL,
	key       TEXT NOT NULL,
	payload   BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (service, key)
)`

// NewSQLiteStore opens (creating if needed) the cache database at path
func NewSQLiteStore(path string, policy interfaces.TTLPolicy, logger *logging.ChanneledLogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create enrich_cache table: %w", err)
	}

	if logger != nil {
		logger.Cache().Info("Initializing sqlite cache store", "path", path)
	}

	return &SQLiteStore{
		db:     db,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (ss *SQLiteStore) Name() string { return interfaces.TierDB }

// Get reads a payload, treating expired rows as misses and deleting them
func (ss *SQLiteStore) Get(ctx context.Context, service, key string) (json.RawMessage, bool) {
	start := ss.now()

	var payload []byte
	var storedAt int64
	err := ss.db.QueryRowContext(ctx,
		`SELECT payload, stored_at FROM enrich_cache WHERE service = ? AND key = ?`,
		service, key,
	).Scan(&payload, &storedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			ss.count(func(s *interfaces.Stats) { s.Errors++ })
			if ss.logger != nil {
				ss.logger.Cache().Warn("SQLite read failed, treating as miss", "service", service, "key", key, "error", err.Error())
			}
		}
		ss.count(func(s *interfaces.Stats) { s.Misses++ })
		if ss.logger != nil {
			ss.logger.LogCacheOperation("get", ss.Name(), service, key, false, time.Since(start))
		}
		return nil, false
	}

	if ss.now().Sub(time.Unix(storedAt, 0)) > ss.policy.For(service) {
		_ = ss.Delete(ctx, service, key)
		ss.count(func(s *interfaces.Stats) { s.Misses++ })
		if ss.logger != nil {
			ss.logger.LogCacheOperation("get_expired", ss.Name(), service, key, false, time.Since(start))
		}
		return nil, false
	}

	ss.count(func(s *interfaces.Stats) { s.Hits++ })
	if ss.logger != nil {
		ss.logger.LogCacheOperation("get", ss.Name(), service, key, true, time.Since(start))
	}
	return payload, true
}

// Put upserts a payload with the current time as stored_at
func (ss *SQLiteStore) Put(ctx context.Context, service, key string, payload json.RawMessage) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO enrich_cache (service, key, payload, stored_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (service, key) DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at`,
		service, key, []byte(payload), ss.now().Unix(),
	)
	if err != nil {
		ss.count(func(s *interfaces.Stats) { s.Errors++ })
		return err
	}
	ss.count(func(s *interfaces.Stats) { s.Stores++ })
	return nil
}

// Delete removes a row if present
func (ss *SQLiteStore) Delete(ctx context.Context, service, key string) error {
	if _, err := ss.db.ExecContext(ctx,
		`DELETE FROM enrich_cache WHERE service = ? AND key = ?`, service, key,
	); err != nil {
		ss.count(func(s *interfaces.Stats) { s.Errors++ })
		return err
	}
	ss.count(func(s *interfaces.Stats) { s.Deletes++ })
	return nil
}

// Stats returns a copy of the tier counters
func (ss *SQLiteStore) Stats() interfaces.Stats {
	ss.statsMu.Lock()
	defer ss.statsMu.Unlock()
	return ss.stats
}

// Close releases the database handle
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}

func (ss *SQLiteStore) count(update func(*interfaces.Stats)) {
	ss.statsMu.Lock()
	update(&ss.stats)
	ss.statsMu.Unlock()
}
