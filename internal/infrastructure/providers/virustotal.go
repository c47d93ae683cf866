package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/observability/logging"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/ratelimit"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/sanitize"
)

// VirusTotalClient looks up file-scan reports by hash. It is the only
// adapter gated by the quota manager: its free tier is small enough that
// honeypot traffic can exhaust a day's budget in minutes.
type VirusTotalClient struct {
	deps    Deps
	baseURL string
	apiKey  string
	skip    bool
	quota   *QuotaManager
}

// NewVirusTotalClient creates the file-scanner adapter. A nil quota manager
// disables budget gating.
func NewVirusTotalClient(deps Deps, baseURL, apiKey string, skip bool, quota *QuotaManager) *VirusTotalClient {
	return &VirusTotalClient{deps: deps, baseURL: baseURL, apiKey: apiKey, skip: skip, quota: quota}
}

// HasCredential reports whether the adapter can reach the provider at all
func (c *VirusTotalClient) HasCredential() bool { return c.apiKey != "" }

// Lookup returns the scan report for fileHash as a plain JSON tree, or nil
// when the hash is unknown to the provider (404), quota is exhausted, or
// the call fails. nil is a valid result, not an error.
func (c *VirusTotalClient) Lookup(ctx context.Context, fileHash string) any {
	if c.skip || c.apiKey == "" || fileHash == "" {
		return nil
	}

	if payload, ok := c.deps.Cache.Get(ctx, enrichment.ServiceVirusTotal, fileHash); ok {
		return decodeReport(payload)
	}

	if !c.quota.CanCall(ctx) {
		if c.deps.Logger != nil {
			c.deps.Logger.WithService(logging.ChannelQuota, enrichment.ServiceVirusTotal).
				Warn("Refusing file-scan lookup, quota near exhaustion",
					"fileHash", fileHash,
					"backoff", c.quota.BackoffForNow(ctx).String())
		}
		return nil
	}

	endpoint := fmt.Sprintf("%s/files/%s", c.baseURL, url.PathEscape(fileHash))
	body, err := c.deps.fetch(ctx, enrichment.ServiceVirusTotal, fileHash, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-apikey", c.apiKey)
		return req, nil
	})
	if err != nil {
		if ratelimit.IsNotFound(err) {
			// Unknown hash. Cache the miss so repeat sightings of the
			// same file skip the provider for the TTL window.
			c.deps.Cache.Put(ctx, enrichment.ServiceVirusTotal, fileHash, json.RawMessage("null"))
		}
		return nil
	}

	clean := sanitize.JSONText(string(body))
	report := decodeReport([]byte(clean))
	if report == nil {
		return nil
	}

	c.deps.Cache.Put(ctx, enrichment.ServiceVirusTotal, fileHash, json.RawMessage(clean))
	return report
}

// decodeReport parses a cached or fresh report into a plain JSON tree,
// sanitized. A payload of literal null (the cached-miss form) decodes to
// nil.
func decodeReport(payload []byte) any {
	var report any
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil
	}
	return sanitize.JSONTree(report)
}
