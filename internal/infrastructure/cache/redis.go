package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/config"
)

// Key prefixes for cached query responses
const (
	TransfersPrefix = "transfers:"
	StatsKey        = "transfers:stats"

	scanBatch = 100
)

// ErrCacheMiss indicates the key was not found in cache
var ErrCacheMiss = errors.New("cache miss")

// RedisCache caches JSON encoded query responses in Redis.
// Every key lives under TransfersPrefix so a single pattern drops them all.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("db", cfg.DB),
		zap.Duration("ttl", ttl),
	)

	return NewRedisCacheWithClient(client, ttl, logger), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Close releases the client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get decodes the cached JSON value of key into dest, returning ErrCacheMiss for unknown keys.
// An entry that no longer decodes is dropped and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return fmt.Errorf("failed to get %s from cache: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Unlink(ctx, key).Err()
		return ErrCacheMiss
	}

	return nil
}

// Set stores value as JSON under key for the configured TTL
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s for cache: %w", key, err)
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// DeletePattern removes all keys matching a pattern, unlinking them in scan-sized batches
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	var (
		cursor  uint64
		deleted int64
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			n, err := c.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to unlink %d cache keys: %w", len(keys), err)
			}
			deleted += n
		}

		if next == 0 {
			break
		}
		cursor = next
	}

	c.logger.Debug("Invalidated cache keys",
		zap.String("pattern", pattern),
		zap.Int64("deleted", deleted),
	)
	return nil
}

// InvalidateTransfers drops every cached transfer query and stats response
func (c *RedisCache) InvalidateTransfers(ctx context.Context) error {
	return c.DeletePattern(ctx, TransfersPrefix+"*")
}

// HealthCheck pings Redis
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
