package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/pkg/config"
)

// HTTPError carries the upstream status through the retry loop so backoff
// can discriminate on it. RetryAfter is the parsed Retry-After hint, zero
// when absent.
type HTTPError struct {
	StatusCode int
	Service    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Service, e.StatusCode)
}

// IsNotFound reports whether err is an upstream 404
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// Policy is the retry schedule for outbound lookups
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Factor     float64
	// Jitter scales the exponential backoff by a random factor in
	// [0.5, 1.0). Status-directed waits (401, 429) are never jittered so
	// server-mandated minimums hold.
	Jitter            bool
	RespectRetryAfter bool
}

// DefaultPolicy returns the retry schedule from the environment
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        config.RetryMaxAttempts,
		Base:              config.RetryBase,
		Factor:            config.RetryFactor,
		Jitter:            config.RetryJitter,
		RespectRetryAfter: config.RespectRetryAfter,
	}
}

// Retrier runs an operation under the retry policy. One instance is shared
// by every adapter, so the jitter source is guarded for concurrent use.
type Retrier struct {
	policy Policy
	logger *logging.ChanneledLogger
	rngMu  sync.Mutex
	rng    *rand.Rand
	sleep  func(context.Context, time.Duration) error
}

// NewRetrier creates a retrier with the given policy
func NewRetrier(policy Policy, logger *logging.ChanneledLogger) *Retrier {
	return NewRetrierWithSleep(policy, logger, sleepCtx)
}

// NewRetrierWithSleep creates a retrier with a custom sleep function.
// Tests use it to observe backoff decisions without waiting them out.
func NewRetrierWithSleep(policy Policy, logger *logging.ChanneledLogger, sleep func(context.Context, time.Duration) error) *Retrier {
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Retrier{
		policy: policy,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleep,
	}
}

// Do runs op up to MaxRetries+1 times. Permanent failures (any 4xx other
// than 401 and 429) return immediately; everything else waits per the
// status-directed schedule and retries. The last error is returned when
// attempts run out.
func (r *Retrier) Do(ctx context.Context, service string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		wait, retryable := r.classify(lastErr, attempt)
		if !retryable || attempt == r.policy.MaxRetries {
			break
		}

		if r.logger != nil {
			r.logger.Rate().Warn("Retrying after failure",
				"service", service,
				"attempt", attempt+1,
				"maxRetries", r.policy.MaxRetries,
				"wait", wait.String(),
				"error", lastErr.Error())
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}

	return lastErr
}

// classify maps an error to its backoff and whether it is worth retrying
func (r *Retrier) classify(err error, attempt int) (time.Duration, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized:
			// Credential rejection: either a dead key or a quota
			// lockout. Start at a minute and double.
			return time.Minute << attempt, true
		case httpErr.StatusCode == http.StatusTooManyRequests:
			if r.policy.RespectRetryAfter && httpErr.RetryAfter > 0 {
				return httpErr.RetryAfter, true
			}
			return 2 * time.Minute, true
		case httpErr.StatusCode >= 500:
			return r.backoff(attempt), true
		default:
			// Remaining 4xx are permanent for this key.
			return 0, false
		}
	}

	// Network-level failures (timeouts, resets, DNS) are transient.
	return r.backoff(attempt), true
}

// backoff computes base * factor^attempt, optionally jittered
func (r *Retrier) backoff(attempt int) time.Duration {
	d := time.Duration(float64(r.policy.Base) * math.Pow(r.policy.Factor, float64(attempt)))
	if r.policy.Jitter {
		r.rngMu.Lock()
		multiplier := 0.5 + r.rng.Float64()*0.5
		r.rngMu.Unlock()
		d = time.Duration(float64(d) * multiplier)
	}
	return d
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
