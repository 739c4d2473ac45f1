package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// forwardedHeaders are copied from the upstream answer.
var forwardedHeaders = []string{"Content-Type", "Retry-After", "Cache-Control"}

// ProxyHandler serves /api/proxy/*endpoint by forwarding the GET to the sales
// API. It is the fallback path of the request client when the backend cannot
// be reached directly.
type ProxyHandler struct {
	client  *http.Client
	target  string
	timeout time.Duration
}

// NewProxyHandler forwards to baseURL+prefix. timeout bounds each forward.
func NewProxyHandler(baseURL, prefix string, timeout time.Duration) *ProxyHandler {
	return &ProxyHandler{
		client:  &http.Client{},
		target:  strings.TrimRight(baseURL, "/") + prefix,
		timeout: timeout,
	}
}

func (h *ProxyHandler) Forward(c *gin.Context) {
	if strings.TrimRight(h.target, "/") == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sales API base URL is not configured"})
		return
	}

	endpoint := strings.TrimLeft(c.Param("endpoint"), "/")
	if endpoint == "" {
		badRequest(c, "missing endpoint")
		return
	}

	url := h.target + "/" + endpoint
	if raw := c.Request.URL.RawQuery; raw != "" {
		url += "?" + raw
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("proxy: upstream request failed")
		c.JSON(status, gin.H{"error": "upstream request failed"})
		return
	}
	defer resp.Body.Close()

	for _, name := range forwardedHeaders {
		if v := resp.Header.Get(name); v != "" {
			c.Header(name, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Warn().Err(err).Str("endpoint", endpoint).Msg("proxy: copy response failed")
	}
}
