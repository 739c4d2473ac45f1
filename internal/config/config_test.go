package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T, env map[string]string) *viper.Viper {
	t.Helper()
	for k, val := range env {
		t.Setenv(k, val)
	}
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return v
}

func TestBuildDefaults(t *testing.T) {
	cfg := build(newTestViper(t, nil))

	assert.Equal(t, 20*time.Second, cfg.Fetch.CacheTTL)
	assert.Equal(t, 60*time.Second, cfg.Fetch.DirectTimeout)
	assert.Equal(t, 130*time.Second, cfg.Fetch.ProxyTimeout)
	assert.Equal(t, 1, cfg.Fetch.AbortRetries)
	assert.Equal(t, 3, cfg.Fetch.RateLimitRetries)
	assert.Equal(t, 30*time.Second, cfg.Fetch.MaxRetryAfter)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 10, cfg.Batch.BranchBatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Batch.BranchBatchDelay)
	assert.Equal(t, 5, cfg.Batch.DayBatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Batch.DayBatchDelay)
	assert.Equal(t, "/api", cfg.API.Prefix)
	assert.False(t, cfg.API.ForceProxy)
	assert.Equal(t, "memory", cfg.Targets.Store)
}

func TestBuildReadsEnvironment(t *testing.T) {
	cfg := build(newTestViper(t, map[string]string{
		"API_BASE_URL":       "https://sales.example.com/",
		"API_PREFIX":         "v2/",
		"API_FORCE_PROXY":    "true",
		"FETCH_CACHE_TTL_MS": "5000",
		"REGIONS":            "hcm=101, 102;HN=201",
		"TARGET_STORE":       "Postgres",
	}))

	assert.Equal(t, "https://sales.example.com", cfg.API.BaseURL)
	assert.Equal(t, "/v2", cfg.API.Prefix)
	assert.True(t, cfg.API.ForceProxy)
	assert.Equal(t, 5*time.Second, cfg.Fetch.CacheTTL)
	assert.Equal(t, "postgres", cfg.Targets.Store)
	require.Contains(t, cfg.Sales.Regions, "HCM")
	assert.Equal(t, []string{"101", "102"}, cfg.Sales.Regions["HCM"])
	assert.Equal(t, []string{"201"}, cfg.Sales.Regions["HN"])
}

func TestParseRegionsSkipsMalformedEntries(t *testing.T) {
	regions := ParseRegions("HCM=1,,2;broken;=3;DN=")

	assert.Equal(t, map[string][]string{"HCM": {"1", "2"}}, regions)
}
