package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/salesboard/backend-go/internal/events"
)

const testToken = "header.payload.signature-0123456789abcdef"

func newTestClient(t *testing.T, cfg Config) (*Client, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	return New(cfg, StaticToken(testToken), bus, zerolog.Nop()), bus
}

func summaryRequest() Request {
	return Request{
		Endpoint: "sales/summary",
		Query:    url.Values{"dateStart": {"01/05/2024"}, "dateEnd": {"01/05/2024"}, "stockId": {"101"}},
	}
}

func TestFetch_CacheIdempotence(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/sales/summary", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"cash":"1.000.000","transfer":2000,"card":0}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL, Prefix: "/api"})

	first, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	second, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, []byte(first), []byte(second))

	stats := client.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.HTTPAttempts)
}

func TestFetch_CacheReturnsCopies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cash":1}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL})

	first, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	first[0] = 'X'

	second, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"cash":1}`, string(second))
}

func TestFetch_CacheExpiresAndForceRefresh(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL, CacheTTL: time.Minute})
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	_, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), summaryRequest(), WithForceRefresh())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	now = now.Add(time.Minute)
	_, err = client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetch_CoalescesConcurrentCallers(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		once.Do(func() { close(started) })
		<-release
		w.Write([]byte(`{"cash":42}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL})

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := client.Fetch(context.Background(), summaryRequest())
			results[i] = string(data)
			errs[i] = err
		}(i)
	}

	<-started
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, `{"cash":42}`, results[i])
	}
}

func TestFetch_CallerCancellationDoesNotCancelSharedCall(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"cash":7}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Fetch(ctx, summaryRequest())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool { return client.cache.len() == 1 }, time.Second, 10*time.Millisecond)

	data, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"cash":7}`, string(data))
}

func TestFetch_RateLimitHonoursRetryAfter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"cash":1}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL})

	start := time.Now()
	data, err := client.Fetch(context.Background(), summaryRequest())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, `{"cash":1}`, string(data))
	assert.Equal(t, int32(3), hits.Load())
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
}

func TestFetch_RetryAfterIsCapped(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "86400")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"cash":2}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL, MaxRetryAfter: 20 * time.Millisecond})

	start := time.Now()
	data, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"cash":2}`, string(data))
	assert.Equal(t, int32(2), hits.Load())
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 20*time.Millisecond, client.rateLimitBackoff(0, &RateLimitError{RetryAfter: 24 * time.Hour}))
	assert.Equal(t, 10*time.Millisecond, client.rateLimitBackoff(0, &RateLimitError{RetryAfter: 10 * time.Millisecond}))
}

func TestFetch_RateLimitExhausted(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{
		BaseURL:          server.URL,
		ProxyBaseURL:     server.URL,
		RateLimitBackoff: time.Millisecond,
	})

	_, err := client.Fetch(context.Background(), summaryRequest())
	require.Error(t, err)

	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 4, rl.Attempts)
	assert.Equal(t, pathDirect, rl.Path)
	assert.Equal(t, int32(4), hits.Load(), "429 must not fall back to the proxy")
}

func TestFetch_UnauthorizedEmitsOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, bus := newTestClient(t, Config{BaseURL: server.URL, ProxyBaseURL: server.URL})

	var received atomic.Int32
	bus.Subscribe(events.AuthExpired, func(e events.Event) { received.Add(1) })

	_, err := client.Fetch(context.Background(), summaryRequest())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, 1, bus.Count(events.AuthExpired))
}

func TestFetch_ProxyUnauthorizedAfterNetworkFailure(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	var proxyHits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer proxy.Close()

	client, bus := newTestClient(t, Config{BaseURL: deadURL, ProxyBaseURL: proxy.URL, AbortRetries: 2})

	_, err := client.Fetch(context.Background(), summaryRequest())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Equal(t, int32(1), proxyHits.Load(), "401 is not retried")
	assert.Equal(t, 1, bus.Count(events.AuthExpired))
	assert.Equal(t, int64(1), client.Stats().Fallbacks)
}

func TestFetch_MissingToken(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	bus := events.NewBus(zerolog.Nop())
	client := New(Config{BaseURL: server.URL}, StaticToken(""), bus, zerolog.Nop())

	_, err := client.Fetch(context.Background(), summaryRequest())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, 1, bus.Count(events.AuthExpired))
}

func TestFetch_NetworkErrorFallsBackToProxy(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	var proxyHits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		assert.Equal(t, "/api/proxy/sales/summary", r.URL.Path)
		assert.Equal(t, "101", r.URL.Query().Get("stockId"))
		w.Write([]byte(`{"card":"5"}`))
	}))
	defer proxy.Close()

	client, _ := newTestClient(t, Config{BaseURL: deadURL, Prefix: "/api", ProxyBaseURL: proxy.URL})

	data, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"card":"5"}`, string(data))
	assert.Equal(t, int32(1), proxyHits.Load())
	assert.Equal(t, int64(1), client.Stats().Fallbacks)
}

func TestFetch_StatusErrorDoesNotFallBack(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"boom"}`))
	}))
	defer direct.Close()

	var proxyHits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
	}))
	defer proxy.Close()

	client, _ := newTestClient(t, Config{BaseURL: direct.URL, ProxyBaseURL: proxy.URL})

	_, err := client.Fetch(context.Background(), summaryRequest())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Contains(t, statusErr.Body, "boom")
	assert.Equal(t, int32(0), proxyHits.Load())
}

func TestFetch_TimeoutRetriesSamePath(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Write([]byte(`{"cash":3}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL, DirectTimeout: 100 * time.Millisecond, AbortRetries: 1})

	data, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"cash":3}`, string(data))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int64(0), client.Stats().Fallbacks)
}

func TestFetch_TimeoutExhaustedFallsBack(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transfer":9}`))
	}))
	defer proxy.Close()

	client, _ := newTestClient(t, Config{BaseURL: slow.URL, ProxyBaseURL: proxy.URL, AbortRetries: 0})

	data, err := client.Fetch(context.Background(), summaryRequest(), WithDirectTimeout(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `{"transfer":9}`, string(data))
}

func TestFetch_ForceProxySkipsDirect(t *testing.T) {
	var directHits atomic.Int32
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		directHits.Add(1)
	}))
	defer direct.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer proxy.Close()

	client, _ := newTestClient(t, Config{BaseURL: direct.URL, ProxyBaseURL: proxy.URL, ForceProxy: true})

	data, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))
	assert.Equal(t, int32(0), directHits.Load())
}

func TestFetch_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL})

	_, err := client.Fetch(context.Background(), summaryRequest())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 0, client.cache.len())
}

func TestInvalidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, Config{BaseURL: server.URL})

	_, err := client.Fetch(context.Background(), summaryRequest())
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), Request{Endpoint: "orders/list"})
	require.NoError(t, err)

	assert.Equal(t, 1, client.Invalidate("/sales"))
	assert.Equal(t, 1, client.cache.len())
}

func TestRequestKey(t *testing.T) {
	a := RequestKey(testToken, Request{Endpoint: "/sales/summary/", Query: url.Values{"b": {"2"}, "a": {"1"}}})
	b := RequestKey(testToken, Request{Endpoint: "sales/summary", Query: url.Values{"a": {"1"}, "b": {"2"}}})

	assert.Equal(t, a, b)
	assert.Equal(t, "0123456789abcdef|sales/summary?a=1&b=2", a)
	assert.Equal(t, "short|x", RequestKey("short", Request{Endpoint: "x"}))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1", now))
	assert.Equal(t, 10*time.Second, parseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestContextTokenProvider(t *testing.T) {
	p := ContextTokenProvider{Fallback: StaticToken("fallback")}

	token, err := p.Token(WithToken(context.Background(), "abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fallback", token)

	_, err = ContextTokenProvider{}.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)

	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
}
