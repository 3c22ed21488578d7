// Package enrichment looks up context for an email in the internal wiki and
// the employee directory. Lookups are best effort: a slow or failing
// service yields an empty blob, never an error.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"phishbox/pkg/trace"
)

const maxResponseBytes = 1 << 20

var empty = json.RawMessage(`{}`)

// Result carries both enrichment blobs for one email.
type Result struct {
	Wiki      json.RawMessage
	Directory json.RawMessage
}

// Client queries the wiki and directory services. A nil redis client
// disables caching.
type Client struct {
	wikiURL      string
	directoryURL string
	httpClient   *http.Client
	rdb          *redis.Client
	ttl          time.Duration
	logger       *zap.Logger
}

func NewClient(wikiURL, directoryURL string, timeout, ttl time.Duration, rdb *redis.Client, logger *zap.Logger) *Client {
	return &Client{
		wikiURL:      strings.TrimRight(wikiURL, "/"),
		directoryURL: strings.TrimRight(directoryURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		rdb:          rdb,
		ttl:          ttl,
		logger:       logger,
	}
}

// Enrich searches the wiki by sender domain and the directory by recipient.
func (c *Client) Enrich(ctx context.Context, sender, recipient string) Result {
	res := Result{Wiki: empty, Directory: empty}

	if domain := SenderDomain(sender); domain != "" && c.wikiURL != "" {
		res.Wiki = c.lookup(ctx, "wiki", domain, c.wikiURL+"/api/search?q="+url.QueryEscape(domain))
	}
	if addr := strings.TrimSpace(recipient); addr != "" && c.directoryURL != "" {
		res.Directory = c.lookup(ctx, "directory", addr, c.directoryURL+"/api/employees?email="+url.QueryEscape(addr))
	}
	return res
}

func (c *Client) lookup(ctx context.Context, kind, key, target string) json.RawMessage {
	cacheKey := fmt.Sprintf("enrich:%s:%s", kind, strings.ToLower(key))

	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, cacheKey).Bytes()
		if err == nil && json.Valid(cached) {
			return cached
		}
		if err != nil && err != redis.Nil {
			c.logger.Debug("Enrichment cache read failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	body, err := c.fetch(ctx, target)
	if err != nil {
		c.logger.Warn("Enrichment lookup failed",
			zap.String("source", kind),
			zap.String("key", key),
			zap.Error(err),
		)
		return empty
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, cacheKey, []byte(body), c.ttl).Err(); err != nil {
			c.logger.Debug("Enrichment cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return body
}

func (c *Client) fetch(ctx context.Context, target string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName, traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s returned invalid JSON", target)
	}
	return data, nil
}

// SenderDomain returns the lower-cased domain of a From header value.
func SenderDomain(sender string) string {
	s := strings.ToLower(strings.TrimSpace(sender))
	if i := strings.LastIndex(s, "@"); i >= 0 {
		return strings.Trim(s[i+1:], "> ")
	}
	return ""
}
