package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/interfaces"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/manager"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/stores"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/telemetry"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/providers"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/ratelimit"
)

// testHarness wires a full façade against httptest provider endpoints.
type testHarness struct {
	service   *EnrichmentService
	cache     *manager.Manager
	collector *telemetry.Collector
	factory   *providers.SessionFactory

	dshieldSrv *httptest.Server
	urlhausSrv *httptest.Server
	spurSrv    *httptest.Server
	vtSrv      *httptest.Server

	dshieldCalls int32
	urlhausCalls int32
	spurCalls    int32
	vtCalls      int32
}

type harnessOptions struct {
	dshieldBody string
	urlhausBody string
	spurBody    string
	vtBody      string
	failAll     bool
	quota       *providers.QuotaManager
	quotaAware  func(deps providers.Deps) *providers.QuotaManager
}

func newHarness(t *testing.T, opts harnessOptions) *testHarness {
	t.Helper()
	h := &testHarness{}

	respond := func(calls *int32, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(calls, 1)
			if opts.failAll {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(body))
		}
	}
	h.dshieldSrv = httptest.NewServer(respond(&h.dshieldCalls, opts.dshieldBody))
	h.urlhausSrv = httptest.NewServer(respond(&h.urlhausCalls, opts.urlhausBody))
	h.spurSrv = httptest.NewServer(respond(&h.spurCalls, opts.spurBody))
	h.vtSrv = httptest.NewServer(respond(&h.vtCalls, opts.vtBody))
	t.Cleanup(func() {
		h.dshieldSrv.Close()
		h.urlhausSrv.Close()
		h.spurSrv.Close()
		h.vtSrv.Close()
	})

	policy := interfaces.DefaultTTLPolicy()
	tiers := []interfaces.Store{
		stores.NewMemoryStore(policy, nil),
		stores.NewFilesystemStore(t.TempDir(), policy, nil),
	}
	h.collector = telemetry.NewCollector()
	h.cache = manager.NewManager(tiers, h.collector, nil)
	h.factory = providers.NewSessionFactory(2*time.Second, nil)

	deps := providers.Deps{
		Factory:   h.factory,
		Cache:     h.cache,
		Limiters:  ratelimit.NewLimiters(nil, false, nil),
		Retrier:   ratelimit.NewRetrier(ratelimit.Policy{MaxRetries: 1, Base: time.Millisecond, Factor: 1.0}, nil),
		Telemetry: h.collector,
	}

	quota := opts.quota
	if opts.quotaAware != nil {
		quota = opts.quotaAware(deps)
	}

	h.service = NewEnrichmentService(
		h.cache,
		providers.NewDShieldClient(deps, h.dshieldSrv.URL, "ops@example.com", false),
		providers.NewURLHausClient(deps, h.urlhausSrv.URL, "uh-key", false, 5*time.Second),
		providers.NewSpurClient(deps, h.spurSrv.URL, "spur-token", false),
		providers.NewVirusTotalClient(deps, h.vtSrv.URL, "vt-key", false, quota),
		h.factory,
		h.collector,
		nil,
		false,
	)
	t.Cleanup(func() { h.service.Close() })
	return h
}

func highRiskOptions() harnessOptions {
	return harnessOptions{
		dshieldBody: `{"ip":{"count":"10","attacks":"5","asname":"EvilCorp","ascountry":"RU"}}`,
		urlhausBody: `{"query_status":"ok","urls":[{"tags":["malware","trojan"]},{"tags":["botnet"]}]}`,
		spurBody:    `{"infrastructure":"DATACENTER"}`,
		vtBody:      `{"data":{}}`,
	}
}

func TestEnrichSessionHighRisk(t *testing.T) {
	h := newHarness(t, highRiskOptions())

	record, err := h.service.EnrichSession(context.Background(), "s-1", "203.0.113.10")
	require.NoError(t, err)

	assert.Equal(t, "s-1", record.SessionID)
	assert.Equal(t, "203.0.113.10", record.SrcIP)
	assert.Equal(t, "5", record.Enrichment.DShield.IP["attacks"])
	assert.Equal(t, "botnet, malware, trojan", record.Enrichment.URLHaus)
	assert.Equal(t, "DATACENTER", record.Enrichment.Spur[3])

	flags := h.service.SessionFlags(record)
	assert.Equal(t, enrichment.SessionFlags{
		DShieldFlagged: true,
		URLHausFlagged: true,
		SpurFlagged:    true,
		VTFlagged:      false,
	}, flags)
}

func TestEnrichSessionGracefulDegradation(t *testing.T) {
	h := newHarness(t, harnessOptions{failAll: true})

	record, err := h.service.EnrichSession(context.Background(), "s-2", "198.51.100.1")
	require.NoError(t, err)

	assert.Equal(t, enrichment.EmptyDShield(), record.Enrichment.DShield)
	assert.Equal(t, "", record.Enrichment.URLHaus)
	assert.Equal(t, enrichment.EmptySpur(), record.Enrichment.Spur)
	assert.Equal(t, enrichment.SessionFlags{}, h.service.SessionFlags(record))
}

func TestEnrichSessionCacheHitAvoidsNetwork(t *testing.T) {
	h := newHarness(t, highRiskOptions())
	ctx := context.Background()

	h.cache.Put(ctx, enrichment.ServiceDShield, "192.0.2.5",
		[]byte(`{"ip":{"asname":"CachedCorp","ascountry":"DE"}}`))
	h.cache.Put(ctx, enrichment.ServiceURLHaus, "192.0.2.5", []byte(`{"urls":[]}`))
	h.cache.Put(ctx, enrichment.ServiceSpur, "192.0.2.5", []byte(`{"infrastructure":"MOBILE"}`))

	before := h.collector.GetSnapshot()
	record, err := h.service.EnrichSession(ctx, "s-3", "192.0.2.5")
	require.NoError(t, err)

	assert.Equal(t, "CachedCorp", record.Enrichment.DShield.IP["asname"])
	assert.Zero(t, atomic.LoadInt32(&h.dshieldCalls))
	assert.Zero(t, atomic.LoadInt32(&h.urlhausCalls))
	assert.Zero(t, atomic.LoadInt32(&h.spurCalls))

	after := h.collector.GetSnapshot()
	assert.Greater(t, after.Tiers["memory"].Hits, before.Tiers["memory"].Hits)
	assert.Len(t, after.Providers, len(before.Providers), "no provider counter appears")
}

func TestEnrichSessionConcurrentDistinctIPs(t *testing.T) {
	h := newHarness(t, highRiskOptions())
	ctx := context.Background()

	const sessions = 16
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := fmt.Sprintf("203.0.113.%d", i+1)
			record, err := h.service.EnrichSession(ctx, fmt.Sprintf("s-%d", i), ip)
			assert.NoError(t, err)
			assert.Equal(t, ip, record.SrcIP)
			assert.Equal(t, "DATACENTER", record.Enrichment.Spur[3])
		}(i)
	}
	wg.Wait()

	// Distinct keys coalesce nothing: one upstream call per IP per service,
	// and one write-through per service into every tier.
	assert.Equal(t, int32(sessions), atomic.LoadInt32(&h.dshieldCalls))
	assert.Equal(t, int32(sessions), atomic.LoadInt32(&h.urlhausCalls))
	assert.Equal(t, int32(sessions), atomic.LoadInt32(&h.spurCalls))

	snap := h.collector.GetSnapshot()
	assert.Equal(t, int64(3*sessions), snap.Tiers["memory"].Stores)
	assert.Equal(t, int64(3*sessions), snap.Tiers["filesystem"].Stores)
	assert.Equal(t, int64(sessions), snap.Providers["dshield"].Calls)
	assert.Equal(t, int64(sessions), snap.SessionsEnriched)

	// Re-enriching the same IPs is served entirely from cache.
	for i := 0; i < sessions; i++ {
		_, err := h.service.EnrichSession(ctx, "replay", fmt.Sprintf("203.0.113.%d", i+1))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(sessions), atomic.LoadInt32(&h.dshieldCalls))
}

func TestEnrichSessionSkipEnrich(t *testing.T) {
	h := newHarness(t, highRiskOptions())
	h.service.skip = true

	record, err := h.service.EnrichSession(context.Background(), "", "203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, enrichment.UnknownSession, record.SessionID)
	assert.Equal(t, enrichment.EmptyDShield(), record.Enrichment.DShield)
	assert.Zero(t, atomic.LoadInt32(&h.dshieldCalls))
}

func TestEnrichFileQuotaNearLimitThenRecovery(t *testing.T) {
	var usedPercent int64 = 96
	quotaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		used := atomic.LoadInt64(&usedPercent) * 10
		fmt.Fprintf(w, `{"data":{
			"api_requests_daily":{"user":{"used":%d,"allowed":1000}},
			"api_requests_hourly":{"user":{"used":0,"allowed":240}},
			"api_requests_monthly":{"user":{"used":0,"allowed":15500}}
		}}`, used)
	}))
	defer quotaSrv.Close()

	opts := highRiskOptions()
	opts.vtBody = `{"data":{"attributes":{"last_analysis_stats":{"malicious":1}}}}`
	opts.quotaAware = func(deps providers.Deps) *providers.QuotaManager {
		return providers.NewQuotaManager(deps, quotaSrv.URL, "vt-key", 10*time.Millisecond, 90)
	}
	h := newHarness(t, opts)
	ctx := context.Background()

	record, err := h.service.EnrichFile(ctx, "abc123def", "mal.exe")
	require.NoError(t, err)
	assert.Nil(t, record.Enrichment.VirusTotal)
	assert.Zero(t, atomic.LoadInt32(&h.vtCalls))

	// Snapshot ages out and now reports 10% usage.
	atomic.StoreInt64(&usedPercent, 10)
	time.Sleep(20 * time.Millisecond)

	record, err = h.service.EnrichFile(ctx, "abc123def", "mal.exe")
	require.NoError(t, err)
	assert.NotNil(t, record.Enrichment.VirusTotal)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.vtCalls))
}

func TestEnrichFileDiskFirst(t *testing.T) {
	h := newHarness(t, highRiskOptions())
	ctx := context.Background()

	fs := h.cache.Filesystem()
	require.NotNil(t, fs)
	require.NoError(t, fs.Put(ctx, enrichment.ServiceVirusTotal, "cachedhash",
		[]byte(`{"data":{"attributes":{"sha256":"cachedhash"}}}`)))

	record, err := h.service.EnrichFile(ctx, "cachedhash", "sample.bin")
	require.NoError(t, err)
	require.NotNil(t, record.Enrichment.VirusTotal)
	assert.Zero(t, atomic.LoadInt32(&h.vtCalls))
}

func TestEnrichFileSanitizesFilename(t *testing.T) {
	h := newHarness(t, harnessOptions{failAll: true})

	record, err := h.service.EnrichFile(context.Background(), "abc", "../etc/\x00passwd")
	require.NoError(t, err)
	assert.Equal(t, "etcpasswd", record.Filename)
}

func TestServiceCloseIsIdempotentAndFailsFast(t *testing.T) {
	h := newHarness(t, highRiskOptions())

	require.NoError(t, h.service.Close())
	require.NoError(t, h.service.Close())

	_, err := h.service.EnrichSession(context.Background(), "s", "192.0.2.1")
	assert.ErrorIs(t, err, ErrServiceClosed)
	_, err = h.service.EnrichFile(context.Background(), "abc", "f")
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestEnrichSessionSpurShapeInvariants(t *testing.T) {
	h := newHarness(t, harnessOptions{failAll: true})

	record, err := h.service.EnrichSession(context.Background(), "s", "203.0.113.200")
	require.NoError(t, err)
	assert.Len(t, record.Enrichment.Spur.Slice(), enrichment.SpurFieldCount)
	require.NotNil(t, record.Enrichment.DShield.IP)
	assert.Contains(t, record.Enrichment.DShield.IP, "asname")
	assert.Contains(t, record.Enrichment.DShield.IP, "ascountry")
}
