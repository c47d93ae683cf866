// Package providers implements the four upstream intelligence adapters and
// the HTTP plumbing they share.
package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/infrastructure/caching/manager"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/telemetry"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/ratelimit"
)

// ErrClosed is returned by adapters once their session factory is closed
var ErrClosed = errors.New("provider session factory is closed")

// maxResponseBytes caps how much of an upstream body is read. File-scanner
// payloads run to a few hundred KB; anything past this is hostile or broken.
const maxResponseBytes = 16 << 20

// SessionFactory mints one HTTP client per outbound exchange. Clients are
// never handed out twice in parallel; Close makes subsequent mints fail
// fast and drops idle connections on the shared transport.
type SessionFactory struct {
	timeout   time.Duration
	transport http.RoundTripper

	mu     sync.Mutex
	closed bool
}

// NewSessionFactory creates a factory with the given per-request timeout.
// A nil transport uses http.DefaultTransport.
func NewSessionFactory(timeout time.Duration, transport http.RoundTripper) *SessionFactory {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &SessionFactory{timeout: timeout, transport: transport}
}

// New mints a client for a single exchange
func (f *SessionFactory) New() (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	return &http.Client{Timeout: f.timeout, Transport: f.transport}, nil
}

// Close marks the factory closed and drops idle connections. Idempotent.
func (f *SessionFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if closer, ok := f.transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// Deps bundles the shared infrastructure every adapter needs
type Deps struct {
	Factory   *SessionFactory
	Cache     *manager.Manager
	Limiters  *ratelimit.Limiters
	Retrier   *ratelimit.Retrier
	Telemetry *telemetry.Collector
	Logger    *logging.ChanneledLogger
}

// exchange performs one HTTP round trip on a fresh client and returns the
// body on 2xx. Non-2xx statuses come back as *ratelimit.HTTPError carrying
// any Retry-After hint so the retry wrapper can honor server-directed
// backoff.
func (d Deps) exchange(ctx context.Context, service string, req *http.Request) ([]byte, error) {
	client, err := d.Factory.New()
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &ratelimit.HTTPError{
			StatusCode: resp.StatusCode,
			Service:    service,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// fetch runs the full provider call discipline: token acquisition and the
// HTTP exchange, wrapped by the retry policy, with telemetry recorded once
// per logical call.
func (d Deps) fetch(ctx context.Context, service, key string, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()

	var body []byte
	err := d.Retrier.Do(ctx, service, func(ctx context.Context) error {
		if err := d.Limiters.Acquire(ctx, service); err != nil {
			return err
		}
		req, err := build(ctx)
		if err != nil {
			return err
		}
		body, err = d.exchange(ctx, service, req)
		return err
	})

	d.Telemetry.RecordProviderCall(service, err == nil)
	if d.Logger != nil {
		d.Logger.LogProviderCall(service, key, err == nil, time.Since(start), err)
	}
	return body, err
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
