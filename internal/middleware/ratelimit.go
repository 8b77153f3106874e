package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/http/dto"
)

// Counter counts hits in a fixed window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Hit increments the window counter and arms its expiry in one transaction.
// EXPIRE NX also re-arms a key that was somehow left without a TTL.
func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

// RateLimitMiddleware answers 429 with a Retry-After header once a client
// exceeds limit requests per window on a path. Counter failures fail open.
func RateLimitMiddleware(counter Counter, limit int, window time.Duration, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", c.Path(), c.IP())

		count, ttl, err := counter.Hit(c.UserContext(), key, window)
		if err != nil {
			log.Warn("rate limit counter unavailable", zap.Error(err))
			return c.Next()
		}

		if ttl <= 0 {
			ttl = window
		}
		if count > int64(limit) {
			retryAfter := int(math.Ceil(ttl.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{Detail: dto.ErrorDetail{
				Code:       "rate_limited",
				Message:    "Too many requests. Please try again later.",
				RetryAfter: retryAfter,
			}})
		}
		return c.Next()
	}
}
