package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
)

// FilesystemStore is the L3 fallback tier. Layout is deterministic so the
// cleanup job can enumerate: {base}/{service}/{shard}/{digest}.json, where
// digest is the hex SHA-256 of the key and shard its first two hex bytes.
// Each file holds the sanitized payload verbatim; mtime is authoritative
// for TTL. Directory creation is lazy.
//
// For the IP-context service only, a read that misses the exact key falls
// back to entries cached under shorter dotted prefixes of the same IP. The
// heuristic is confined to this tier.
type FilesystemStore struct {
	base    string
	policy  interfaces.TTLPolicy
	stats   interfaces.Stats
	statsMu sync.Mutex
	logger  *logging.ChanneledLogger
	now     func() time.Time
}

// NewFilesystemStore creates the filesystem cache tier rooted at base
func NewFilesystemStore(base string, policy interfaces.TTLPolicy, logger *logging.ChanneledLogger) *FilesystemStore {
	if logger != nil {
		logger.Cache().Info("Initializing filesystem cache store", "base", base)
	}
	return &FilesystemStore{
		base:   base,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

func (fs *FilesystemStore) Name() string { return interfaces.TierFilesystem }

// Base returns the cache root directory
func (fs *FilesystemStore) Base() string { return fs.base }

// pathFor returns the deterministic entry path for (service, key)
func (fs *FilesystemStore) pathFor(service, key string) string {
	digest := sha256.Sum256([]byte(key))
	hexDigest := hex.EncodeToString(digest[:])
	return filepath.Join(fs.base, service, hexDigest[:2], hexDigest+".json")
}

// Get reads an entry, treating stale files as misses and unlinking them
func (fs *FilesystemStore) Get(ctx context.Context, service, key string) (json.RawMessage, bool) {
	start := fs.now()

	for _, candidate := range fs.candidateKeys(service, key) {
		payload, ok := fs.readFresh(service, candidate)
		if ok {
			fs.count(func(s *interfaces.Stats) { s.Hits++ })
			if fs.logger != nil {
				fs.logger.LogCacheOperation("get", fs.Name(), service, candidate, true, time.Since(start))
			}
			return payload, true
		}
		if ctx.Err() != nil {
			break
		}
	}

	fs.count(func(s *interfaces.Stats) { s.Misses++ })
	if fs.logger != nil {
		fs.logger.LogCacheOperation("get", fs.Name(), service, key, false, time.Since(start))
	}
	return nil, false
}

// candidateKeys returns the exact key plus, for the IP-context service,
// dotted-prefix fallbacks in decreasing specificity.
func (fs *FilesystemStore) candidateKeys(service, key string) []string {
	keys := []string{key}
	if service != enrichment.ServiceSpur {
		return keys
	}
	parts := strings.Split(key, ".")
	for len(parts) > 2 {
		parts = parts[:len(parts)-1]
		keys = append(keys, strings.Join(parts, "."))
	}
	return keys
}

// readFresh reads one entry if it exists and is within TTL; stale entries
// are deleted.
func (fs *FilesystemStore) readFresh(service, key string) (json.RawMessage, bool) {
	path := fs.pathFor(service, key)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	if fs.now().Sub(info.ModTime()) > fs.policy.For(service) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fs.count(func(s *interfaces.Stats) { s.Errors++ })
		}
		return nil, false
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		// Racing cleanup or reader; a vanished file is just a miss.
		if !os.IsNotExist(err) {
			fs.count(func(s *interfaces.Stats) { s.Errors++ })
			if fs.logger != nil {
				fs.logger.Cache().Warn("Filesystem read failed, treating as miss", "service", service, "key", key, "error", err.Error())
			}
		}
		return nil, false
	}
	return payload, true
}

// Put writes the sanitized payload, creating directories lazily
func (fs *FilesystemStore) Put(_ context.Context, service, key string, payload json.RawMessage) error {
	path := fs.pathFor(service, key)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fs.count(func(s *interfaces.Stats) { s.Errors++ })
		return err
	}
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		fs.count(func(s *interfaces.Stats) { s.Errors++ })
		return err
	}

	fs.count(func(s *interfaces.Stats) { s.Stores++ })
	return nil
}

// Delete unlinks an entry if present
func (fs *FilesystemStore) Delete(_ context.Context, service, key string) error {
	if err := os.Remove(fs.pathFor(service, key)); err != nil && !os.IsNotExist(err) {
		fs.count(func(s *interfaces.Stats) { s.Errors++ })
		return err
	}
	fs.count(func(s *interfaces.Stats) { s.Deletes++ })
	return nil
}

// Stats returns a copy of the tier counters
func (fs *FilesystemStore) Stats() interfaces.Stats {
	fs.statsMu.Lock()
	defer fs.statsMu.Unlock()
	return fs.stats
}

// SweepReport summarizes one cleanup pass over the tier
type SweepReport struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// Sweep walks the tier and unlinks every entry older than its service TTL.
// Safe to run while the store is active: an unlink racing a reader simply
// causes a miss on the next read. At most one sweep should be scheduled per
// base directory.
func (fs *FilesystemStore) Sweep(ctx context.Context) SweepReport {
	var report SweepReport
	now := fs.now()

	services, err := os.ReadDir(fs.base)
	if err != nil {
		if !os.IsNotExist(err) {
			report.Errors++
		}
		return report
	}

	for _, serviceDir := range services {
		if !serviceDir.IsDir() {
			continue
		}
		service := serviceDir.Name()
		ttl := fs.policy.For(service)

		root := filepath.Join(fs.base, service)
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				report.Errors++
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
				return nil
			}

			report.Scanned++
			info, err := d.Info()
			if err != nil {
				report.Errors++
				return nil
			}
			if now.Sub(info.ModTime()) <= ttl {
				return nil
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				report.Errors++
				return nil
			}
			report.Deleted++
			return nil
		})
		if walkErr != nil {
			break
		}
	}

	return report
}

func (fs *FilesystemStore) count(update func(*interfaces.Stats)) {
	fs.statsMu.Lock()
	update(&fs.stats)
	fs.statsMu.Unlock()
}
