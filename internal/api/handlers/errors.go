package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/salesboard/backend-go/internal/fetch"
	"github.com/andresuchdata/salesboard/backend-go/internal/series"
	"github.com/andresuchdata/salesboard/backend-go/internal/service"
)

// errAuthExpired is the body clients watch for to prompt a re-login.
const errAuthExpired = "auth_expired"

// statusFor maps the error taxonomy onto HTTP status codes. Each widget
// endpoint fails on its own.
func statusFor(err error) (int, string) {
	var (
		rateLimit *fetch.RateLimitError
		timeout   *fetch.TimeoutError
		network   *fetch.NetworkError
		upstream  *fetch.StatusError
		zeroData  *series.ZeroDataError
	)

	switch {
	case fetch.IsAuth(err):
		return http.StatusUnauthorized, errAuthExpired
	case errors.As(err, &rateLimit):
		return http.StatusTooManyRequests, err.Error()
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, err.Error()
	case errors.As(err, &network), errors.As(err, &upstream):
		return http.StatusBadGateway, err.Error()
	case errors.As(err, &zeroData):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, service.ErrUnknownRegion), errors.Is(err, service.ErrInvalidTarget):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func respondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg("request failed")
	c.JSON(status, gin.H{"error": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
