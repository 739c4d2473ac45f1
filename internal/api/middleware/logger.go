// backend-go/internal/api/middleware/logger.go
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/salesboard/backend-go/internal/fetch"
)

// Logger logs one line per request under component=http. Requests whose path
// is in skip (health checks) are not logged.
func Logger(l zerolog.Logger, skip ...string) gin.HandlerFunc {
	l = l.With().Str("component", "http").Logger()
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		event := l.Info()
		if status >= http.StatusInternalServerError {
			event = l.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Recovery recovers from panics and logs the error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Msg("Recovered from panic")
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// BearerToken moves the caller's bearer token into the request context so the
// sales API client can reuse it.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := fetch.BearerToken(c.GetHeader("Authorization")); token != "" {
			c.Request = c.Request.WithContext(fetch.WithToken(c.Request.Context(), token))
		}
		c.Next()
	}
}
