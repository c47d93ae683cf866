package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hivewatch/hivewatch-go/internal/domain/entities/enrichment"
	"github.com/hivewatch/hivewatch-go/internal/infrastructure/sanitize"
)

// DShieldClient looks up network reputation for source IPs. The provider
// bans clients that ignore its backoff hints, so every call goes through
// the retry wrapper with Retry-After honoring enabled.
type DShieldClient struct {
	deps    Deps
	baseURL string
	email   string
	skip    bool
}

// NewDShieldClient creates the network-reputation adapter. An empty email
// disables lookups: the provider requires a registered contact address.
func NewDShieldClient(deps Deps, baseURL, email string, skip bool) *DShieldClient {
	return &DShieldClient{deps: deps, baseURL: baseURL, email: email, skip: skip}
}

// Lookup returns the reputation payload for ip, falling back to the empty
// sentinel on any unrecoverable failure. The sentinel is never cached.
func (c *DShieldClient) Lookup(ctx context.Context, ip string) enrichment.DShield {
	if c.skip || c.email == "" || ip == "" {
		return enrichment.EmptyDShield()
	}

	if payload, ok := c.deps.Cache.Get(ctx, enrichment.ServiceDShield, ip); ok {
		if result, err := decodeDShield(payload); err == nil {
			return result
		}
		// A cached payload that no longer decodes is dropped so the next
		// call refetches.
		c.deps.Cache.Delete(ctx, enrichment.ServiceDShield, ip)
	}

	endpoint := fmt.Sprintf("%s/%s?json&email=%s", c.baseURL, url.PathEscape(ip), url.QueryEscape(c.email))
	body, err := c.deps.fetch(ctx, enrichment.ServiceDShield, ip, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return enrichment.EmptyDShield()
	}

	clean := sanitize.JSONText(string(body))
	result, err := decodeDShield([]byte(clean))
	if err != nil {
		if c.deps.Logger != nil {
			c.deps.Logger.Provider().Warn("Unparseable reputation payload",
				"service", enrichment.ServiceDShield, "ip", ip, "error", err.Error())
		}
		return enrichment.EmptyDShield()
	}

	stored, err := sanitize.MarshalClean(result)
	if err != nil {
		return enrichment.EmptyDShield()
	}
	c.deps.Cache.Put(ctx, enrichment.ServiceDShield, ip, stored)
	return result
}

// decodeDShield unmarshals a payload and collapses partial shapes toward
// the sentinel.
func decodeDShield(payload []byte) (enrichment.DShield, error) {
	var result enrichment.DShield
	if err := json.Unmarshal(payload, &result); err != nil {
		return enrichment.DShield{}, err
	}
	result.Normalize()
	return result, nil
}
