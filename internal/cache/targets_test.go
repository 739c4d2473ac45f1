package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/salesboard/backend-go/internal/config"
	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

func TestNewTargetCache_DisabledIsNoop(t *testing.T) {
	c, err := NewTargetCache(config.CacheConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, &domain.TargetConfig{Month: "2024-05"}))
	cfg, ok, err := c.Get(ctx, "2024-05")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, cfg)
	assert.NoError(t, c.Delete(ctx, "2024-05"))
	assert.NoError(t, c.InvalidateAll(ctx))
}

func TestRedisOptions(t *testing.T) {
	opts, err := redisOptions(config.CacheConfig{RedisURL: "redis://:secret@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = redisOptions(config.CacheConfig{RedisDB: 1})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)

	_, err = redisOptions(config.CacheConfig{RedisURL: "http://nope"})
	assert.Error(t, err)
}

func TestTargetKey(t *testing.T) {
	assert.Equal(t, "salesboard:target:2024-05", targetKey("2024-05"))
}
