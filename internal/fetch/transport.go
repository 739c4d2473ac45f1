package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	pathDirect = "direct"
	pathProxy  = "proxy"

	proxyRoute   = "/api/proxy/"
	maxErrorBody = 512
)

// transport is one way of reaching the sales API. Transports are tried in
// order; only network-class errors move on to the next one.
type transport struct {
	name    string
	baseURL string
	timeout time.Duration
}

func (t transport) url(r Request) string {
	return t.baseURL + "/" + r.pathWithQuery()
}

// get performs a single HTTP attempt and maps every failure onto the typed
// error taxonomy.
func (t transport) get(ctx context.Context, client *http.Client, r Request, token string) (json.RawMessage, error) {
	attemptCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, t.url(r), nil)
	if err != nil {
		return nil, &NetworkError{Path: t.name, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, t.classify(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.classify(ctx, attemptCtx, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Path: t.name, Reason: "token rejected"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Path:       t.name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Attempts:   1,
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Path: t.name, Code: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}

	if !json.Valid(body) {
		return nil, &StatusError{Path: t.name, Code: resp.StatusCode, Body: "response is not valid JSON"}
	}
	return json.RawMessage(body), nil
}

// classify turns a transport failure into TimeoutError or NetworkError.
// A cancelled parent context is returned as is so it never triggers fallback.
func (t transport) classify(parent, attempt context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Path: t.name, Timeout: t.timeout}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Path: t.name, Timeout: t.timeout}
	}
	return &NetworkError{Path: t.name, Err: err}
}

// parseRetryAfter accepts delta-seconds or an HTTP date; zero when absent.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
