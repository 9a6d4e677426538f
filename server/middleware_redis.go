package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRateLimiter is a fixed-window limiter shared across replicas. The
// counter key carries the window start so stale windows expire on their own.
type redisRateLimiter struct {
	client *redis.Client
	cfg    *rateLimiterConfig
}

// newRedisRateLimiter connects to Redis and verifies the connection.
func newRedisRateLimiter(ctx context.Context, redisURL string, cfg *rateLimiterConfig) (*redisRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &redisRateLimiter{client: client, cfg: cfg}, nil
}

// Allow increments the caller's counter for the current window. Redis errors
// fail open so a cache outage never takes the API down with it.
func (rl *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	if !rl.cfg.enabled {
		return true
	}
	window := time.Now().Unix() / int64(rl.cfg.window.Seconds())
	counterKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, rl.cfg.window)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("redis rate limiter unavailable, allowing request", slog.Any("err", err), slog.String("component", "ratelimit"))
		return true
	}
	return count.Val() <= int64(rl.cfg.requestsPerIP)
}
