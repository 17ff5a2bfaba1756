package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter implements a fixed-window limit shared across instances
type RedisLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter allowing limit requests
// per window
func NewRedisLimiter(redisClient *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		prefix: "rowguard:ratelimit",
	}
}

// Allow counts a request against key's current window
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s:%d", rl.prefix, key, time.Now().UnixNano()/int64(rl.window))

	// Use Redis pipeline for atomic operations
	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.limit), nil
}

// Reset clears the current window for key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	redisKey := fmt.Sprintf("%s:%s:%d", rl.prefix, key, time.Now().UnixNano()/int64(rl.window))
	return rl.redis.Del(ctx, redisKey).Err()
}
