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

// SpurClient looks up IP context and flattens the nested response into the
// fixed 18-field sequence. The raw context document is what gets cached;
// flattening happens on every read so the field contract can evolve
// without invalidating cache entries.
type SpurClient struct {
	deps    Deps
	baseURL string
	token   string
	skip    bool
}

// NewSpurClient creates the IP-context adapter
func NewSpurClient(deps Deps, baseURL, token string, skip bool) *SpurClient {
	return &SpurClient{deps: deps, baseURL: baseURL, token: token, skip: skip}
}

// Lookup returns the flattened context fields for ip, 18 empty strings on
// any failure. The filesystem tier may satisfy the read from a cached
// entry for a matching IP prefix.
func (c *SpurClient) Lookup(ctx context.Context, ip string) enrichment.SpurFields {
	if c.skip || c.token == "" || ip == "" {
		return enrichment.EmptySpur()
	}

	if payload, ok := c.deps.Cache.Get(ctx, enrichment.ServiceSpur, ip); ok {
		if fields, err := flattenPayload(payload); err == nil {
			return fields
		}
		c.deps.Cache.Delete(ctx, enrichment.ServiceSpur, ip)
	}

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(ip))
	body, err := c.deps.fetch(ctx, enrichment.ServiceSpur, ip, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Token", c.token)
		return req, nil
	})
	if err != nil {
		return enrichment.EmptySpur()
	}

	clean := sanitize.JSONText(string(body))
	fields, err := flattenPayload([]byte(clean))
	if err != nil {
		if c.deps.Logger != nil {
			c.deps.Logger.Provider().Warn("Unparseable context payload",
				"service", enrichment.ServiceSpur, "ip", ip, "error", err.Error())
		}
		return enrichment.EmptySpur()
	}

	c.deps.Cache.Put(ctx, enrichment.ServiceSpur, ip, json.RawMessage(clean))
	return fields
}

// flattenPayload decodes a context document and flattens it
func flattenPayload(payload []byte) (enrichment.SpurFields, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return enrichment.EmptySpur(), err
	}
	return enrichment.FlattenSpur(doc), nil
}
