// Package apiclient wraps outbound calls to third-party sports and news APIs,
// enforcing a per-source daily call budget and a minimum delay between calls.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"github.com/RobinCoderZhao/sports-digest/pkg/cache"
	"github.com/RobinCoderZhao/sports-digest/pkg/metrics"
)

const (
	maxBodyBytes   = 4 << 20
	maxQuotedBytes = 512
	counterTTL     = 24 * time.Hour
	userAgent      = "sports-digest/1.0"
)

// SourceConfig describes one upstream API.
type SourceConfig struct {
	ID          string
	BaseURL     string
	DailyBudget int
	MinInterval time.Duration     // minimum delay between consecutive calls; 0 disables
	Timeout     time.Duration     // per-call timeout
	Headers     map[string]string // sent on every request
	Query       map[string]string // merged into every query string (e.g. apikey)
	// Cache maps an endpoint to the lifetime of its cached successful
	// responses. Cached answers cost no budget. Endpoints not listed are
	// never cached.
	Cache map[string]time.Duration
}

type source struct {
	cfg     SourceConfig
	limiter ratelimit.Limiter
}

// Client issues budgeted requests. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	counter *cache.Counter
	cache   cache.Store
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	sources map[string]*source
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithClock replaces time.Now, used to pick the counter's calendar day.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// New creates a Client that keeps its call counters in store.
func New(store cache.Store, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		counter: cache.NewCounter(store),
		cache:   store,
		logger:  slog.Default(),
		now:     time.Now,
		sources: make(map[string]*source),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a source.
func (c *Client) Register(cfg SourceConfig) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.MinInterval > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(cfg.MinInterval), ratelimit.WithoutSlack)
	}
	c.mu.Lock()
	c.sources[cfg.ID] = &source{cfg: cfg, limiter: limiter}
	c.mu.Unlock()
}

func (c *Client) source(id string) (*source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sources[id]
	return s, ok
}

func (c *Client) counterKey(sourceID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", sourceID, c.now().UTC().Format("20060102"))
}

// Remaining returns how many calls are left in today's budget for sourceID.
func (c *Client) Remaining(ctx context.Context, sourceID string) int {
	s, ok := c.source(sourceID)
	if !ok {
		return 0
	}
	left := s.cfg.DailyBudget - c.counter.GetInt(ctx, c.counterKey(sourceID), 0)
	if left < 0 {
		return 0
	}
	return left
}

// Request calls endpoint on the registered source and returns the JSON body.
// Errors are always *Failure, except for an unknown source.
func (c *Client) Request(ctx context.Context, sourceID, endpoint string, params url.Values) (json.RawMessage, error) {
	s, ok := c.source(sourceID)
	if !ok {
		return nil, fmt.Errorf("apiclient: unknown source %q", sourceID)
	}

	ttl := s.cfg.Cache[endpoint]
	cacheKey := responseKey(sourceID, endpoint, params)
	if ttl > 0 {
		if body, ok := c.cached(ctx, cacheKey); ok {
			metrics.RecordAPIRequest(sourceID, "cache_hit")
			return body, nil
		}
	}

	req, err := c.newRequest(ctx, s.cfg, endpoint, params)
	if err != nil {
		return nil, &Failure{Kind: RemoteError, Source: sourceID, Err: err}
	}

	// A slot is reserved before the call so concurrent callers cannot overspend.
	key := c.counterKey(sourceID)
	used, ok := c.counter.Reserve(ctx, key, s.cfg.DailyBudget, counterTTL)
	if !ok {
		c.logger.Warn("daily API budget exhausted", "source", sourceID, "used", used, "budget", s.cfg.DailyBudget)
		metrics.RecordAPIRequest(sourceID, "budget_exhausted")
		return nil, &Failure{Kind: RateLimited, Source: sourceID, Err: errors.New("daily budget exhausted")}
	}

	s.limiter.Take()

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	resp, err := c.http.Do(req.WithContext(reqCtx))
	if err != nil {
		// nothing reached the remote
		c.counter.Release(context.WithoutCancel(ctx), key)
		metrics.RecordAPIRequest(sourceID, Unreachable.String())
		return nil, &Failure{Kind: Unreachable, Source: sourceID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordAPIRequest(sourceID, Unreachable.String())
		return nil, &Failure{Kind: Unreachable, Source: sourceID, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.RecordAPIRequest(sourceID, RateLimited.String())
		return nil, &Failure{Kind: RateLimited, Source: sourceID, Status: resp.StatusCode, Body: quote(body)}
	case resp.StatusCode != http.StatusOK:
		metrics.RecordAPIRequest(sourceID, RemoteError.String())
		return nil, &Failure{Kind: RemoteError, Source: sourceID, Status: resp.StatusCode, Body: quote(body)}
	}

	if !json.Valid(body) {
		metrics.RecordAPIRequest(sourceID, RemoteError.String())
		return nil, &Failure{Kind: RemoteError, Source: sourceID, Status: resp.StatusCode, Body: quote(body), Err: errors.New("invalid JSON payload")}
	}
	if msg, ok := embeddedError(body); ok {
		metrics.RecordAPIRequest(sourceID, RemoteError.String())
		return nil, &Failure{Kind: RemoteError, Source: sourceID, Status: resp.StatusCode, Body: msg}
	}

	metrics.RecordAPIRequest(sourceID, "ok")
	if ttl > 0 {
		if err := c.cache.Set(ctx, cacheKey, string(body), ttl); err != nil {
			c.logger.Warn("cache response failed", "source", sourceID, "endpoint", endpoint, "error", err)
		}
	}
	return json.RawMessage(body), nil
}

func responseKey(sourceID, endpoint string, params url.Values) string {
	return fmt.Sprintf("apicache:%s:%s?%s", sourceID, endpoint, params.Encode())
}

func (c *Client) cached(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, err := c.cache.Get(ctx, key)
	if errors.Is(err, cache.ErrMiss) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return json.RawMessage(raw), true
}

func (c *Client) newRequest(ctx context.Context, cfg SourceConfig, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	q := u.Query()
	for k, v := range cfg.Query {
		q.Set(k, v)
	}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// embeddedError detects error lists reported inside a 200 response:
// API-Sports uses a non-empty "errors" array or object, newsdata.io uses status "error".
func embeddedError(body []byte) (string, bool) {
	var envelope struct {
		Status string          `json:"status"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Top-level arrays and scalars carry no envelope.
		return "", false
	}
	if envelope.Status == "error" {
		return quote(body), true
	}
	trimmed := bytes.TrimSpace(envelope.Errors)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")),
		bytes.Equal(trimmed, []byte("[]")), bytes.Equal(trimmed, []byte("{}")):
		return "", false
	}
	var list []any
	if json.Unmarshal(trimmed, &list) == nil && len(list) == 0 {
		return "", false
	}
	var obj map[string]any
	if json.Unmarshal(trimmed, &obj) == nil && len(obj) == 0 {
		return "", false
	}
	return quote(trimmed), true
}

func quote(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxQuotedBytes {
		s = s[:maxQuotedBytes] + "..."
	}
	return s
}
