package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/sanitize"
)

// URLHausClient looks up host abuse listings and reduces them to a single
// comma-joined tag string. A wall-clock guard wraps the whole call, retries
// included: past the deadline the sentinel "TIMEOUT" comes back so callers
// can tell a slow provider from an unlisted host.
type URLHausClient struct {
	deps      Deps
	baseURL   string
	apiKey    string
	skip      bool
	wallClock time.Duration
}

// NewURLHausClient creates the host-abuse adapter
func NewURLHausClient(deps Deps, baseURL, apiKey string, skip bool, wallClock time.Duration) *URLHausClient {
	return &URLHausClient{deps: deps, baseURL: baseURL, apiKey: apiKey, skip: skip, wallClock: wallClock}
}

// hostListing is the subset of the provider response we consume
type hostListing struct {
	URLs []struct {
		Tags []string `json:"tags"`
	} `json:"urls"`
}

// Lookup returns the sorted unique tags for host joined by ", ", "" when
// the host is unlisted or the call fails, and "TIMEOUT" when the wall
// clock expires first.
func (c *URLHausClient) Lookup(ctx context.Context, host string) string {
	if c.skip || c.apiKey == "" || host == "" {
		return ""
	}

	if payload, ok := c.deps.Cache.Get(ctx, enrichment.ServiceURLHaus, host); ok {
		return tagsFromListing(payload)
	}

	type outcome struct {
		tags string
		ok   bool
	}
	done := make(chan outcome, 1)

	callCtx, cancel := context.WithTimeout(ctx, c.wallClock)
	defer cancel()

	go func() {
		tags, ok := c.fetchListing(callCtx, host)
		done <- outcome{tags: tags, ok: ok}
	}()

	select {
	case result := <-done:
		if !result.ok {
			return ""
		}
		return result.tags
	case <-callCtx.Done():
		if ctx.Err() != nil {
			// Caller cancellation, not a provider timeout.
			return ""
		}
		if c.deps.Logger != nil {
			c.deps.Logger.Provider().Warn("Host-abuse lookup exceeded wall clock",
				"service", enrichment.ServiceURLHaus, "host", host, "wallClock", c.wallClock.String())
		}
		return enrichment.URLHausTimeout
	}
}

// fetchListing performs the POST exchange and caches the sanitized listing
func (c *URLHausClient) fetchListing(ctx context.Context, host string) (string, bool) {
	form := url.Values{"host": []string{host}}.Encode()
	body, err := c.deps.fetch(ctx, enrichment.ServiceURLHaus, host, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Auth-Key", c.apiKey)
		return req, nil
	})
	if err != nil {
		return "", false
	}

	clean := sanitize.JSONText(string(body))
	if !sanitize.ValidJSON([]byte(clean)) {
		return "", false
	}

	c.deps.Cache.Put(ctx, enrichment.ServiceURLHaus, host, json.RawMessage(clean))
	return tagsFromListing([]byte(clean)), true
}

// tagsFromListing reduces a listing payload to its sorted unique tag string
func tagsFromListing(payload []byte) string {
	var listing hostListing
	if err := json.Unmarshal(payload, &listing); err != nil {
		return ""
	}

	seen := make(map[string]struct{})
	for _, entry := range listing.URLs {
		for _, tag := range entry.Tags {
			if tag == "" {
				continue
			}
			seen[tag] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return ""
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return strings.Join(tags, ", ")
}
