// Package cache holds the redis read-through cache for month target
// configurations. API responses are never stored here.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/salesboard/backend-go/internal/config"
	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

const (
	targetKeyPrefix   = "salesboard:target:"
	defaultTargetTTL  = 5 * time.Minute
	pingTimeout       = 5 * time.Second
	invalidateBatches = 100
)

type TargetCache interface {
	Get(ctx context.Context, month string) (*domain.TargetConfig, bool, error)
	Set(ctx context.Context, cfg *domain.TargetConfig) error
	Delete(ctx context.Context, month string) error
	InvalidateAll(ctx context.Context) error
}

type redisTargetCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopTargetCache struct{}

// NewTargetCache returns a redis cache when caching is enabled, else a noop.
func NewTargetCache(cfg config.CacheConfig) (TargetCache, error) {
	if !cfg.Enabled {
		return &noopTargetCache{}, nil
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := time.Duration(cfg.TargetTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultTargetTTL
	}
	return &redisTargetCache{client: client, ttl: ttl}, nil
}

func NewNoopTargetCache() TargetCache {
	return &noopTargetCache{}
}

func targetKey(month string) string {
	return targetKeyPrefix + month
}

func (c *redisTargetCache) Get(ctx context.Context, month string) (*domain.TargetConfig, bool, error) {
	payload, err := c.client.Get(ctx, targetKey(month)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var cfg domain.TargetConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, false, fmt.Errorf("decode target cache: %w", err)
	}
	return &cfg, true, nil
}

func (c *redisTargetCache) Set(ctx context.Context, cfg *domain.TargetConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode target cache: %w", err)
	}
	if err := c.client.Set(ctx, targetKey(cfg.Month), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisTargetCache) Delete(ctx context.Context, month string) error {
	if err := c.client.Del(ctx, targetKey(month)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *redisTargetCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, targetKeyPrefix+"*", invalidateBatches).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
		}
		if cursor = next; cursor == 0 {
			return nil
		}
	}
}

func (n *noopTargetCache) Get(ctx context.Context, month string) (*domain.TargetConfig, bool, error) {
	return nil, false, nil
}

func (n *noopTargetCache) Set(ctx context.Context, cfg *domain.TargetConfig) error {
	return nil
}

func (n *noopTargetCache) Delete(ctx context.Context, month string) error {
	return nil
}

func (n *noopTargetCache) InvalidateAll(ctx context.Context) error {
	return nil
}

// redisOptions prefers REDIS_URL and falls back to host/port/db.
func redisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host, port := cfg.RedisHost, cfg.RedisPort
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "6379"
	}
	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}
