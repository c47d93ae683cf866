// Package services holds the application-level orchestration over the
// infrastructure layers.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/manager"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/telemetry"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/providers"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/sanitize"
)

// ErrServiceClosed is returned by enrichment operations after Close
var ErrServiceClosed = errors.New("enrichment service is closed")

// SessionLookup resolves network reputation for an IP
type SessionLookup interface {
	Lookup(ctx context.Context, ip string) enrichment.DShield
}

// HostLookup resolves host-abuse tags for an IP
type HostLookup interface {
	Lookup(ctx context.Context, host string) string
}

// ContextLookup resolves the flattened IP-context fields
type ContextLookup interface {
	Lookup(ctx context.Context, ip string) enrichment.SpurFields
}

// FileLookup resolves a file-scan report by hash
type FileLookup interface {
	Lookup(ctx context.Context, fileHash string) any
	HasCredential() bool
}

// EnrichmentService is the façade over the cache hierarchy, the rate
// limiter, the quota manager and the four provider adapters. Safe for
// concurrent callers; carries no per-request state.
type EnrichmentService struct {
	cache      *manager.Manager
	dshield    SessionLookup
	urlhaus    HostLookup
	spur       ContextLookup
	virustotal FileLookup
	factory    *providers.SessionFactory
	telemetry  *telemetry.Collector
	logger     *logging.ChanneledLogger
	skip       bool

	closeMu sync.Mutex
	closed  bool
}

// NewEnrichmentService wires the façade from its collaborators
func NewEnrichmentService(
	cache *manager.Manager,
	dshield SessionLookup,
	urlhaus HostLookup,
	spur ContextLookup,
	virustotal FileLookup,
	factory *providers.SessionFactory,
	collector *telemetry.Collector,
	logger *logging.ChanneledLogger,
	skip bool,
) *EnrichmentService {
	if logger != nil {
		logger.Enrich().Info("Initializing enrichment service", "skipEnrich", skip)
	}
	return &EnrichmentService{
		cache:      cache,
		dshield:    dshield,
		urlhaus:    urlhaus,
		spur:       spur,
		virustotal: virustotal,
		factory:    factory,
		telemetry:  collector,
		logger:     logger,
		skip:       skip,
	}
}

// EnrichSession assembles the session record for (sessionID, srcIP). Each
// provider is consulted independently; a failing provider contributes its
// empty sentinel without disturbing the others.
func (s *EnrichmentService) EnrichSession(ctx context.Context, sessionID, srcIP string) (*enrichment.SessionRecord, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	start := time.Now()

	if sessionID == "" {
		sessionID = enrichment.UnknownSession
	}
	srcIP = sanitize.Clean(srcIP)

	record := enrichment.EmptySessionRecord(sessionID, srcIP)
	if s.skip || srcIP == "" {
		return record, nil
	}

	record.Enrichment.DShield = s.dshield.Lookup(ctx, srcIP)
	record.Enrichment.URLHaus = s.urlhaus.Lookup(ctx, srcIP)
	record.Enrichment.Spur = s.spur.Lookup(ctx, srcIP)

	s.telemetry.RecordSessionEnriched(time.Since(start))
	if s.logger != nil {
		s.logger.Enrich().Debug("Session enriched",
			"sessionId", sessionID,
			"srcIp", srcIP,
			"duration", time.Since(start).String())
	}
	return record, nil
}

// EnrichFile assembles the file record for (fileHash, filename). The
// filesystem tier is consulted before the adapter: file-scan payloads are
// large, and a disk hit avoids promoting them into the in-memory tiers.
func (s *EnrichmentService) EnrichFile(ctx context.Context, fileHash, filename string) (*enrichment.FileRecord, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	start := time.Now()

	fileHash = sanitize.Clean(fileHash)
	record := enrichment.EmptyFileRecord(fileHash, sanitize.Filename(filename))
	if s.skip || fileHash == "" || !s.virustotal.HasCredential() {
		return record, nil
	}

	if fs := s.cache.Filesystem(); fs != nil {
		if payload, ok := fs.Get(ctx, enrichment.ServiceVirusTotal, fileHash); ok {
			record.Enrichment.VirusTotal = decodeFilePayload(payload)
			s.telemetry.RecordFileEnriched(time.Since(start))
			return record, nil
		}
	}

	record.Enrichment.VirusTotal = s.virustotal.Lookup(ctx, fileHash)

	s.telemetry.RecordFileEnriched(time.Since(start))
	if s.logger != nil {
		s.logger.Enrich().Debug("File enriched",
			"fileHash", fileHash,
			"hit", record.Enrichment.VirusTotal != nil,
			"duration", time.Since(start).String())
	}
	return record, nil
}

// SessionFlags derives the boolean flag set for a record
func (s *EnrichmentService) SessionFlags(record any) enrichment.SessionFlags {
	return enrichment.DeriveSessionFlags(record)
}

// CacheStats exposes per-tier cache counters for the admin surface
func (s *EnrichmentService) CacheStats() map[string]any {
	stats := s.cache.Stats()
	out := make(map[string]any, len(stats))
	for tier, counters := range stats {
		out[tier] = counters
	}
	return out
}

// Close releases the durable cache connections and the HTTP session
// factory. Idempotent; operations after Close fail fast.
func (s *EnrichmentService) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.logger != nil {
		s.logger.Shutdown().Info("Closing enrichment service")
	}
	if s.factory != nil {
		s.factory.Close()
	}
	return s.cache.Close()
}

func (s *EnrichmentService) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// decodeFilePayload parses a cached file-scan payload, sanitized. Literal
// null (a cached provider miss) decodes to nil.
func decodeFilePayload(payload []byte) any {
	var report any
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil
	}
	return sanitize.JSONTree(report)
}
