package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quotaServer(t *testing.T, dailyUsed, dailyAllowed, hourlyUsed, hourlyAllowed int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		assert.Contains(t, r.URL.Path, "/overall_quotas")
		fmt.Fprintf(w, `{"data":{
			"api_requests_daily":{"user":{"used":%d,"allowed":%d}},
			"api_requests_hourly":{"user":{"used":%d,"allowed":%d}},
			"api_requests_monthly":{"user":{"used":100,"allowed":15500}}
		}}`, dailyUsed, dailyAllowed, hourlyUsed, hourlyAllowed)
	}))
}

func newTestQuota(t *testing.T, baseURL string, threshold float64) *QuotaManager {
	return NewQuotaManager(newTestDeps(t), baseURL, "vt-key", 5*time.Minute, threshold)
}

func TestQuotaSnapshotPercentages(t *testing.T) {
	srv := quotaServer(t, 450, 500, 10, 240, nil)
	defer srv.Close()

	q := newTestQuota(t, srv.URL, 90)
	snap := q.Snapshot(context.Background())
	require.NotNil(t, snap)
	assert.InDelta(t, 90.0, snap.DailyPercent(), 0.01)
	assert.InDelta(t, 4.17, snap.HourlyPercent(), 0.01)
	assert.Equal(t, int64(500), snap.DailyLimit)
}

func TestCanCallThresholdBoundary(t *testing.T) {
	// 94.9% usage with a 95 threshold: still allowed.
	srv := quotaServer(t, 949, 1000, 0, 240, nil)
	defer srv.Close()
	q := newTestQuota(t, srv.URL, 95)
	assert.True(t, q.CanCall(context.Background()))

	// Reaching the threshold exactly refuses the call.
	srv2 := quotaServer(t, 950, 1000, 0, 240, nil)
	defer srv2.Close()
	q2 := newTestQuota(t, srv2.URL, 95)
	assert.False(t, q2.CanCall(context.Background()))
}

func TestCanCallRequiresBothDimensions(t *testing.T) {
	// Daily fine, hourly exhausted.
	srv := quotaServer(t, 10, 1000, 230, 240, nil)
	defer srv.Close()
	q := newTestQuota(t, srv.URL, 90)
	assert.False(t, q.CanCall(context.Background()))
}

func TestCanCallAllowsWhenSnapshotUnavailable(t *testing.T) {
	q := newTestQuota(t, "http://unreachable.invalid", 90)
	assert.True(t, q.CanCall(context.Background()))

	var nilQuota *QuotaManager
	assert.True(t, nilQuota.CanCall(context.Background()))
}

func TestBackoffTiers(t *testing.T) {
	cases := []struct {
		used    int
		allowed int
		want    time.Duration
	}{
		{960, 1000, time.Hour},
		{920, 1000, 30 * time.Minute},
		{850, 1000, 15 * time.Minute},
		{100, 1000, time.Minute},
	}
	for _, tc := range cases {
		srv := quotaServer(t, tc.used, tc.allowed, 0, 240, nil)
		q := newTestQuota(t, srv.URL, 90)
		assert.Equal(t, tc.want, q.BackoffForNow(context.Background()), "usage %d/%d", tc.used, tc.allowed)
		srv.Close()
	}
}

func TestSnapshotIsTTLCached(t *testing.T) {
	var calls int32
	srv := quotaServer(t, 10, 1000, 0, 240, &calls)
	defer srv.Close()

	q := newTestQuota(t, srv.URL, 90)
	ctx := context.Background()
	q.Snapshot(ctx)
	q.Snapshot(ctx)
	q.Snapshot(ctx)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	q.Invalidate()
	q.Snapshot(ctx)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestVirusTotalRefusesWhenQuotaExhausted(t *testing.T) {
	quotaSrv := quotaServer(t, 990, 1000, 0, 240, nil)
	defer quotaSrv.Close()

	var scanCalls int32
	scanSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&scanCalls, 1)
		w.Write([]byte(`{"data":{}}`))
	}))
	defer scanSrv.Close()

	deps := newTestDeps(t)
	quota := NewQuotaManager(deps, quotaSrv.URL, "vt-key", 5*time.Minute, 90)
	client := NewVirusTotalClient(deps, scanSrv.URL, "vt-key", false, quota)

	assert.Nil(t, client.Lookup(context.Background(), "abc123"))
	assert.Zero(t, atomic.LoadInt32(&scanCalls), "the scan endpoint is never touched")
}
