// Package fetch issues GET requests against the remote sales API, reaching the
// backend directly when possible and falling back to the dashboard proxy.
// Responses are cached for a short TTL and concurrent identical requests
// share a single network call.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/andresuchdata/salesboard/backend-go/internal/config"
	"github.com/andresuchdata/salesboard/backend-go/internal/events"
	"github.com/andresuchdata/salesboard/backend-go/internal/retry"
)

const (
	defaultCacheTTL         = 20 * time.Second
	defaultDirectTimeout    = 60 * time.Second
	defaultProxyTimeout     = 130 * time.Second
	defaultAbortRetries     = 1
	defaultRateLimitRetries = 3
	defaultRateLimitBackoff = 500 * time.Millisecond
	defaultMaxRetryAfter    = 30 * time.Second

	module = "fetch"
)

// Config wires a Client to the sales API.
type Config struct {
	BaseURL          string
	Prefix           string
	ProxyBaseURL     string
	ForceProxy       bool
	CacheTTL         time.Duration
	DirectTimeout    time.Duration
	ProxyTimeout     time.Duration
	AbortRetries     int
	RateLimitRetries int
	RateLimitBackoff time.Duration
	// MaxRetryAfter caps a server-supplied Retry-After wait.
	MaxRetryAfter    time.Duration
	HTTPClient       *http.Client
}

// ConfigFrom maps application config onto a client Config.
func ConfigFrom(api config.APIConfig, f config.FetchConfig) Config {
	return Config{
		BaseURL:          api.BaseURL,
		Prefix:           api.Prefix,
		ProxyBaseURL:     api.ProxyBaseURL,
		ForceProxy:       api.ForceProxy,
		CacheTTL:         f.CacheTTL,
		DirectTimeout:    f.DirectTimeout,
		ProxyTimeout:     f.ProxyTimeout,
		AbortRetries:     f.AbortRetries,
		RateLimitRetries: f.RateLimitRetries,
		MaxRetryAfter:    f.MaxRetryAfter,
	}
}

type options struct {
	cacheTTL      time.Duration
	forceRefresh  bool
	directTimeout time.Duration
	proxyTimeout  time.Duration
	abortRetries  int
}

// Option overrides a per-call default.
type Option func(*options)

// WithCacheTTL sets how long a successful response stays cached.
func WithCacheTTL(ttl time.Duration) Option { return func(o *options) { o.cacheTTL = ttl } }

// WithForceRefresh skips the cache lookup (the result is still cached).
func WithForceRefresh() Option { return func(o *options) { o.forceRefresh = true } }

// WithDirectTimeout bounds each attempt on the direct path.
func WithDirectTimeout(d time.Duration) Option { return func(o *options) { o.directTimeout = d } }

// WithProxyTimeout bounds each attempt on the proxy path.
func WithProxyTimeout(d time.Duration) Option { return func(o *options) { o.proxyTimeout = d } }

// WithAbortRetries sets how often a timed-out attempt is repeated on the same path.
func WithAbortRetries(n int) Option { return func(o *options) { o.abortRetries = n } }

// Stats are cumulative client counters.
type Stats struct {
	CacheHits    int64
	CacheMisses  int64
	Coalesced    int64
	HTTPAttempts int64
	Fallbacks    int64
}

// Client owns the response cache and the in-flight registry for its lifetime.
type Client struct {
	cfg      Config
	http     *http.Client
	tokens   TokenProvider
	bus      *events.Bus
	log      zerolog.Logger
	cache    *responseCache
	inflight singleflight.Group
	now      func() time.Time

	hits, misses, coalesced, attempts, fallbacks atomic.Int64
}

// New creates a Client. bus may be nil when nobody listens for AuthExpired.
func New(cfg Config, tokens TokenProvider, bus *events.Bus, log zerolog.Logger) *Client {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.DirectTimeout <= 0 {
		cfg.DirectTimeout = defaultDirectTimeout
	}
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = defaultProxyTimeout
	}
	if cfg.AbortRetries < 0 {
		cfg.AbortRetries = defaultAbortRetries
	}
	if cfg.RateLimitRetries < 0 {
		cfg.RateLimitRetries = defaultRateLimitRetries
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = defaultRateLimitBackoff
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = defaultMaxRetryAfter
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ProxyBaseURL = strings.TrimRight(cfg.ProxyBaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tokens: tokens,
		bus:    bus,
		log:    log.With().Str("component", "fetch").Logger(),
		cache:  newResponseCache(),
		now:    time.Now,
	}
}

// Fetch returns the JSON body for r, from cache when a live entry exists.
// Concurrent callers with the same RequestKey share one network call and
// observe the same result. The shared call is not cancelled when a single
// caller gives up; that caller just stops waiting.
func (c *Client) Fetch(ctx context.Context, r Request, opts ...Option) (json.RawMessage, error) {
	o := options{
		cacheTTL:      c.cfg.CacheTTL,
		directTimeout: c.cfg.DirectTimeout,
		proxyTimeout:  c.cfg.ProxyTimeout,
		abortRetries:  c.cfg.AbortRetries,
	}
	for _, opt := range opts {
		opt(&o)
	}

	token, err := c.token(ctx)
	if err != nil {
		c.authExpired()
		return nil, err
	}

	key := RequestKey(token, r)
	if !o.forceRefresh {
		if data, ok := c.cache.get(key, c.now()); ok {
			c.hits.Add(1)
			return cloneRaw(data), nil
		}
	}
	c.misses.Add(1)

	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (any, error) {
		return c.do(shared, key, r, token, o)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneRaw(res.Val.(json.RawMessage)), nil
	}
}

// Invalidate drops cached responses whose endpoint starts with prefix.
func (c *Client) Invalidate(prefix string) int {
	return c.cache.invalidate(prefix)
}

// Stats returns a snapshot of the client counters.
func (c *Client) Stats() Stats {
	return Stats{
		CacheHits:    c.hits.Load(),
		CacheMisses:  c.misses.Load(),
		Coalesced:    c.coalesced.Load(),
		HTTPAttempts: c.attempts.Load(),
		Fallbacks:    c.fallbacks.Load(),
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", &AuthError{Reason: "no token provider"}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", &AuthError{Reason: err.Error()}
	}
	if strings.TrimSpace(token) == "" {
		return "", &AuthError{Reason: ErrNoToken.Error()}
	}
	return token, nil
}

// do runs the transports in order for one RequestKey. It is executed at most
// once at a time per key.
func (c *Client) do(ctx context.Context, key string, r Request, token string, o options) (json.RawMessage, error) {
	transports := c.transports(o)
	if len(transports) == 0 {
		return nil, fmt.Errorf("fetch %s: no API base URL or proxy configured", r.endpoint())
	}

	var lastErr error
	for i, t := range transports {
		data, err := c.fetchVia(ctx, t, r, token, o)
		if err == nil {
			if o.cacheTTL > 0 {
				c.cache.set(key, data, c.now().Add(o.cacheTTL))
			}
			return data, nil
		}

		if IsAuth(err) {
			c.authExpired()
			return nil, err
		}
		lastErr = err
		if !IsNetworkClass(err) {
			return nil, err
		}
		if i < len(transports)-1 {
			c.fallbacks.Add(1)
			c.log.Warn().
				Err(err).
				Str("endpoint", r.endpoint()).
				Str("from", t.name).
				Str("to", transports[i+1].name).
				Msg("network failure, falling back")
		}
	}
	return nil, lastErr
}

// fetchVia retries timeouts on the same path (abortRetries) around a 429
// retry loop honouring Retry-After.
func (c *Client) fetchVia(ctx context.Context, t transport, r Request, token string, o options) (json.RawMessage, error) {
	var data json.RawMessage

	timeoutPolicy := retry.Policy{
		MaxAttempts: o.abortRetries + 1,
		Retryable:   IsTimeout,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			c.log.Warn().Str("path", t.name).Str("endpoint", r.endpoint()).Int("attempt", attempt+1).Msg("request timed out, retrying")
		},
	}
	rateLimitPolicy := retry.Policy{
		MaxAttempts: c.cfg.RateLimitRetries + 1,
		Retryable:   IsRateLimit,
		Backoff:     c.rateLimitBackoff,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.log.Warn().Str("path", t.name).Str("endpoint", r.endpoint()).Int("attempt", attempt+1).Dur("wait", wait).Msg("rate limited, backing off")
		},
	}

	rateLimited := 0
	err := retry.Do(ctx, timeoutPolicy, func(ctx context.Context, _ int) error {
		return retry.Do(ctx, rateLimitPolicy, func(ctx context.Context, _ int) error {
			c.attempts.Add(1)
			body, err := t.get(ctx, c.http, r, token)
			if err != nil {
				if IsRateLimit(err) {
					rateLimited++
				}
				return err
			}
			data = body
			return nil
		})
	})
	if err != nil {
		if rl, ok := err.(*RateLimitError); ok {
			rl.Attempts = rateLimited
		}
		return nil, err
	}
	return data, nil
}

func (c *Client) rateLimitBackoff(attempt int, err error) time.Duration {
	if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter > 0 {
		return min(rl.RetryAfter, c.cfg.MaxRetryAfter)
	}
	return retry.Exponential(c.cfg.RateLimitBackoff)(attempt, err)
}

func (c *Client) transports(o options) []transport {
	var ts []transport
	if !c.cfg.ForceProxy && c.cfg.BaseURL != "" {
		ts = append(ts, transport{name: pathDirect, baseURL: c.cfg.BaseURL + c.cfg.Prefix, timeout: o.directTimeout})
	}
	if c.cfg.ProxyBaseURL != "" {
		ts = append(ts, transport{name: pathProxy, baseURL: c.cfg.ProxyBaseURL + strings.TrimRight(proxyRoute, "/"), timeout: o.proxyTimeout})
	}
	return ts
}

func (c *Client) authExpired() {
	c.log.Warn().Msg("authentication expired")
	if c.bus != nil {
		c.bus.Emit(events.AuthExpired, module)
	}
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
