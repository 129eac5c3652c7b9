// Package cache provides an optional Redis-backed content cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultTTL = 7 * 24 * time.Hour

// Cache wraps a Redis client for extracted-content caching. A nil
// client (Redis disabled or unreachable at startup) makes every
// method a safe no-op.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
}

// New connects to redisURL. If redisURL is empty, or the connection
// fails, it returns a disabled Cache and logs a warning rather than an
// error — Redis is a pure optimization here, never a dependency.
func New(redisURL string, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "content_cache").Logger()
	if redisURL == "" {
		return &Cache{logger: logger}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, continuing without cache")
		return &Cache{logger: logger}
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis ping failed, continuing without cache")
		return &Cache{logger: logger}
	}
	return &Cache{client: client, logger: logger}
}

// Enabled reports whether a live Redis connection backs this cache.
func (c *Cache) Enabled() bool { return c.client != nil }

// GetFullContent returns the cached extraction for contentHash. The
// bool is false on a miss or when the cache is disabled.
func (c *Cache) GetFullContent(ctx context.Context, contentHash string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, fullContentKey(contentHash)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// SetFullContent stores an extraction result for contentHash. Errors
// are logged, not returned — a failed cache write should never fail
// the caller's extraction.
func (c *Cache) SetFullContent(ctx context.Context, contentHash, content string) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, fullContentKey(contentHash), content, defaultTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("content_hash", contentHash).Msg("cache write failed")
	}
}

// Close releases the underlying Redis connection, if any.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func fullContentKey(contentHash string) string {
	return fmt.Sprintf("plume:full_content:%s", contentHash)
}
