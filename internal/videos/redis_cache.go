package videos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mypov:metadata:"

// RedisCachingProvider shares yt-dlp lookups between instances through Redis.
// Redis failures are logged and the lookup falls through to the base provider.
type RedisCachingProvider struct {
	base   Provider
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient connects to the Redis server at addr.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// NewRedisCachingProvider wraps base with a Redis-backed cache.
func NewRedisCachingProvider(base Provider, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisCachingProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCachingProvider{base: base, client: client, ttl: ttl, logger: logger}
}

// Lookup serves metadata from Redis when present, otherwise from the base provider.
func (c *RedisCachingProvider) Lookup(ctx context.Context, url string) (Metadata, error) {
	if c == nil || c.base == nil {
		return Metadata{}, ErrProviderUnavailable
	}
	if c.client == nil {
		return c.base.Lookup(ctx, url)
	}

	key := cacheKey(url)
	if metadata, ok := c.get(ctx, key); ok {
		return metadata, nil
	}

	metadata, err := c.base.Lookup(ctx, url)
	if err != nil {
		return Metadata{}, err
	}

	if err := c.set(ctx, key, metadata); err != nil {
		c.logger.Warn("cache metadata", "key", key, "error", err)
	}
	return metadata, nil
}

func (c *RedisCachingProvider) get(ctx context.Context, key string) (Metadata, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return Metadata{}, false
	}
	if err != nil {
		c.logger.Warn("redis get failed", "key", key, "error", err)
		return Metadata{}, false
	}

	var metadata Metadata
	if err := json.Unmarshal([]byte(val), &metadata); err != nil {
		c.logger.Warn("discarding cached metadata", "key", key, "error", err)
		return Metadata{}, false
	}
	return metadata, true
}

func (c *RedisCachingProvider) set(ctx context.Context, key string, metadata Metadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}
