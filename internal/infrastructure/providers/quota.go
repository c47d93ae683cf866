package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
)

// QuotaSnapshot is a point-in-time view of the file-scanner provider's
// usage against its budgets. Zero limits mean the dimension was absent from
// the provider response.
type QuotaSnapshot struct {
	DailyUsed    int64     `json:"daily_used"`
	DailyLimit   int64     `json:"daily_limit"`
	HourlyUsed   int64     `json:"hourly_used"`
	HourlyLimit  int64     `json:"hourly_limit"`
	MonthlyUsed  int64     `json:"monthly_used"`
	MonthlyLimit int64     `json:"monthly_limit"`
	APIUsed      int64     `json:"api_used"`
	APILimit     int64     `json:"api_limit"`
	ObservedAt   time.Time `json:"observed_at"`
}

// usagePercent returns used/limit as a percentage, 0 when the limit is
// unknown.
func usagePercent(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}

// DailyPercent returns daily usage as a percentage of the daily limit
func (s *QuotaSnapshot) DailyPercent() float64 { return usagePercent(s.DailyUsed, s.DailyLimit) }

// HourlyPercent returns hourly usage as a percentage of the hourly limit
func (s *QuotaSnapshot) HourlyPercent() float64 { return usagePercent(s.HourlyUsed, s.HourlyLimit) }

// MonthlyPercent returns monthly usage as a percentage of the monthly limit
func (s *QuotaSnapshot) MonthlyPercent() float64 { return usagePercent(s.MonthlyUsed, s.MonthlyLimit) }

// maxPercent is the worst usage dimension, driving the backoff tier
func (s *QuotaSnapshot) maxPercent() float64 {
	max := s.DailyPercent()
	if p := s.HourlyPercent(); p > max {
		max = p
	}
	if p := s.MonthlyPercent(); p > max {
		max = p
	}
	return max
}

// QuotaManager tracks the file-scanner provider's remaining budget so the
// adapter can refuse calls near exhaustion instead of burning the last of
// the day's quota on bulk traffic. The snapshot is TTL-cached; refresh is
// mutex-guarded so only one caller fetches at a time.
type QuotaManager struct {
	deps      Deps
	apiKey    string
	baseURL   string
	ttl       time.Duration
	threshold float64
	logger    *logging.ChanneledLogger

	mu        sync.Mutex
	snapshot  *QuotaSnapshot
	fetchedAt time.Time
}

// NewQuotaManager creates a quota manager for the given credential. The
// threshold is the usage percentage above which calls are refused.
func NewQuotaManager(deps Deps, baseURL, apiKey string, ttl time.Duration, threshold float64) *QuotaManager {
	return &QuotaManager{
		deps:      deps,
		apiKey:    apiKey,
		baseURL:   baseURL,
		ttl:       ttl,
		threshold: threshold,
		logger:    deps.Logger,
	}
}

// overallQuotas mirrors the provider's per-dimension quota document
type overallQuotas struct {
	Data struct {
		Daily   quotaGroup `json:"api_requests_daily"`
		Hourly  quotaGroup `json:"api_requests_hourly"`
		Monthly quotaGroup `json:"api_requests_monthly"`
	} `json:"data"`
}

type quotaGroup struct {
	User struct {
		Used    int64 `json:"used"`
		Allowed int64 `json:"allowed"`
	} `json:"user"`
}

// Snapshot returns the current quota view, refreshing it when stale. A nil
// return means the provider could not be consulted.
func (q *QuotaManager) Snapshot(ctx context.Context) *QuotaSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.snapshot != nil && time.Since(q.fetchedAt) < q.ttl {
		return q.snapshot
	}

	snap, err := q.refresh(ctx)
	if err != nil {
		if q.logger != nil {
			q.logger.Quota().Warn("Quota refresh failed, keeping previous snapshot", "error", err.Error())
		}
		// A stale snapshot beats none; callers fall back to allow when
		// even that is missing.
		return q.snapshot
	}

	q.snapshot = snap
	q.fetchedAt = time.Now()
	if q.logger != nil {
		q.logger.Quota().Info("Quota snapshot refreshed",
			"dailyPercent", fmt.Sprintf("%.1f", snap.DailyPercent()),
			"hourlyPercent", fmt.Sprintf("%.1f", snap.HourlyPercent()),
			"monthlyPercent", fmt.Sprintf("%.1f", snap.MonthlyPercent()))
	}
	return q.snapshot
}

// refresh fetches the quota document from the provider. Runs under q.mu.
func (q *QuotaManager) refresh(ctx context.Context) (*QuotaSnapshot, error) {
	endpoint := fmt.Sprintf("%s/users/%s/overall_quotas", q.baseURL, q.apiKey)
	body, err := q.deps.fetch(ctx, "quota", logging.MaskCredential(q.apiKey), func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-apikey", q.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var doc overallQuotas
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode quota document: %w", err)
	}

	snap := &QuotaSnapshot{
		DailyUsed:    doc.Data.Daily.User.Used,
		DailyLimit:   doc.Data.Daily.User.Allowed,
		HourlyUsed:   doc.Data.Hourly.User.Used,
		HourlyLimit:  doc.Data.Hourly.User.Allowed,
		MonthlyUsed:  doc.Data.Monthly.User.Used,
		MonthlyLimit: doc.Data.Monthly.User.Allowed,
		APIUsed:      doc.Data.Daily.User.Used,
		APILimit:     doc.Data.Daily.User.Allowed,
		ObservedAt:   time.Now(),
	}
	return snap, nil
}

// CanCall reports whether the file scanner may be invoked: both daily and
// hourly usage must sit strictly under the threshold; reaching it refuses
// the call. An unavailable snapshot allows the call; the rate limiter and
// retry wrapper backstop it.
func (q *QuotaManager) CanCall(ctx context.Context) bool {
	if q == nil {
		return true
	}
	snap := q.Snapshot(ctx)
	if snap == nil {
		return true
	}
	return snap.DailyPercent() < q.threshold && snap.HourlyPercent() < q.threshold
}

// BackoffForNow returns how long the caller should wait before the next
// attempt, tiered by the worst usage dimension.
func (q *QuotaManager) BackoffForNow(ctx context.Context) time.Duration {
	snap := q.Snapshot(ctx)
	if snap == nil {
		return time.Minute
	}
	switch pct := snap.maxPercent(); {
	case pct >= 95:
		return time.Hour
	case pct >= 90:
		return 30 * time.Minute
	case pct >= 80:
		return 15 * time.Minute
	default:
		return time.Minute
	}
}

// Invalidate drops the cached snapshot so the next check refetches
func (q *QuotaManager) Invalidate() {
	q.mu.Lock()
	q.snapshot = nil
	q.fetchedAt = time.Time{}
	q.mu.Unlock()
}
