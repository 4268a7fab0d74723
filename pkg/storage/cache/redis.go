package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/catalog/pkg/storage"
)

const scanBatch = 100

// RedisClient handles caching operations
type RedisClient struct {
	client *redis.Client
	ttl    map[string]time.Duration
}

// NewRedisClient connects to the Redis server named by config.RedisURL
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := make(map[string]time.Duration, len(config.CacheTTL))
	for k, v := range config.CacheTTL {
		ttl[k] = v
	}
	return &RedisClient{client: client, ttl: ttl}, nil
}

// get returns the raw value at key; a miss is (nil, nil)
func (c *RedisClient) get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (c *RedisClient) set(ctx context.Context, key string, data []byte, kind string) error {
	return c.client.Set(ctx, key, data, c.ttl[kind]).Err()
}

func (c *RedisClient) del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// InvalidatePatterns deletes every key matching any of patterns, in
// batches of scanBatch
func (c *RedisClient) InvalidatePatterns(ctx context.Context, patterns ...string) error {
	for _, pattern := range patterns {
		var batch []string
		iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatch {
				if err := c.del(ctx, batch...); err != nil {
					return fmt.Errorf("failed to delete %s keys: %w", pattern, err)
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
		}
		if len(batch) > 0 {
			if err := c.del(ctx, batch...); err != nil {
				return fmt.Errorf("failed to delete %s keys: %w", pattern, err)
			}
		}
	}
	return nil
}

// Ping checks Redis connectivity
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}
