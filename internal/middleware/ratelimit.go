package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"frzterr/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

// ByViewerOrIP counts per signed-in viewer, falling back to the remote IP.
func ByViewerOrIP(c *fiber.Ctx) string {
	if v := Viewer(c); v != "" {
		return "viewer:" + v
	}
	return "ip:" + c.IP()
}

// CheckRateLimit counts one hit for id on resource in a fixed window.
// Returns true if allowed, false if limit exceeded.
func CheckRateLimit(ctx context.Context, rdb redis.Cmdable, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := fmt.Sprintf("frzterr:rl:%s:%s", resource, id)

	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return cnt <= int64(limit), nil
}

// RateLimit returns a Fiber middleware enforcing limit requests per window
// for resource, failing open when Redis is unavailable.
func RateLimit(rdb redis.Cmdable, resource string, limit int, window time.Duration, key KeyFunc) fiber.Handler {
	return RateLimitWithPolicy(rdb, resource, limit, window, key, FailOpen)
}

// RateLimitWithPolicy is RateLimit with an explicit failure policy.
func RateLimitWithPolicy(rdb redis.Cmdable, resource string, limit int, window time.Duration, key KeyFunc, policy FailPolicy) fiber.Handler {
	if key == nil {
		key = ByViewerOrIP
	}
	return func(c *fiber.Ctx) error {
		allowed, err := CheckRateLimit(c.UserContext(), rdb, resource, key(c), limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit unavailable",
					slog.String("resource", resource), slog.String("error", err.Error()))
				return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: "rate limit unavailable"})
			}
			return c.Next()
		}

		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{Error: "rate limit exceeded"})
		}
		return c.Next()
	}
}
