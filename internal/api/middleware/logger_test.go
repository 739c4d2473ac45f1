package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zerolog.New(buf), "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/sales/:kind", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	return r
}

func TestLogger_SkipsHealth(t *testing.T) {
	var buf bytes.Buffer
	r := newLoggedRouter(&buf)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, buf.String())
}

func TestLogger_RequestLine(t *testing.T) {
	var buf bytes.Buffer
	r := newLoggedRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sales/daily?scope=HCM", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "http", entry["component"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "/api/v1/sales/:kind", entry["route"])
	assert.Equal(t, "/api/v1/sales/daily?scope=HCM", entry["path"])
	assert.Equal(t, float64(http.StatusBadGateway), entry["status"])
}
