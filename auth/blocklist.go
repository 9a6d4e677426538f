package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blocklist tracks revoked JWT ids (jti) until their natural expiry.
// Logout revokes; the auth middleware checks on every request.
type Blocklist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisBlocklist stores revocations as TTL'd keys so they expire on their own.
type RedisBlocklist struct {
	client *redis.Client
}

const blocklistKeyPrefix = "jti:"

// NewRedisBlocklist connects to Redis using a redis:// URL and verifies the
// connection with a ping.
func NewRedisBlocklist(ctx context.Context, redisURL string) (*RedisBlocklist, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBlocklist{client: client}, nil
}

// NewRedisBlocklistFromClient wraps an existing client, used in tests.
func NewRedisBlocklistFromClient(client *redis.Client) *RedisBlocklist {
	return &RedisBlocklist{client: client}
}

// Revoke marks a jti revoked until expiresAt. A token already past expiry is
// dropped immediately by giving the key a minimal TTL.
func (b *RedisBlocklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := b.client.Set(ctx, blocklistKeyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blocklist set: %w", err)
	}
	return nil
}

// IsRevoked reports whether a jti is on the blocklist.
func (b *RedisBlocklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blocklistKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("blocklist exists: %w", err)
	}
	return n > 0, nil
}

// Close releases the underlying connection.
func (b *RedisBlocklist) Close() error { return b.client.Close() }

// Ping reports broker reachability, used by the readiness probe.
func (b *RedisBlocklist) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
