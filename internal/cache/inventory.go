package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"frzterr/internal/observability"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	AuthorKeyPrefix = "author:%s"
)

const (
	AuthorTTL = 5 * time.Minute
)

func AuthorKey(userID string) string {
	return fmt.Sprintf(AuthorKeyPrefix, userID)
}

// Cache is a JSON read-through cache. A nil *Cache or a nil client disables
// caching and every call goes to the loader.
type Cache struct {
	client *redis.Client
}

// New wraps client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Aside fills dest from key, or runs load and stores dest under key for ttl.
// Redis failures fall through to load; load errors are never cached.
func (c *Cache) Aside(ctx context.Context, key string, dest any, ttl time.Duration, load func() error) error {
	if c == nil || c.client == nil {
		return load()
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			return nil
		}
	} else if !errors.Is(err, redis.Nil) {
		observability.GlobalLogger.DebugContext(ctx, "cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	if err := load(); err != nil {
		return err
	}
	b, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := c.client.Set(ctx, key, b, ttl).Err(); err != nil {
		observability.GlobalLogger.DebugContext(ctx, "cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

// Invalidate drops key.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, key)
}

// InvalidateAuthor drops the cached author row of userID.
func (c *Cache) InvalidateAuthor(ctx context.Context, userID string) {
	c.Invalidate(ctx, AuthorKey(userID))
}
