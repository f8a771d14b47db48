// Package cache holds the short lived Redis state of the API: one-time
// codes, rate limit counters, revoked tokens and cached user profiles.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// --- Blacklist JWT ---

// RedisRevocations remembers revoked token ids until the token would have
// expired anyway.
type RedisRevocations struct {
	client redis.Cmdable
}

func NewRedisRevocations(client redis.Cmdable) *RedisRevocations {
	return &RedisRevocations{client: client}
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, "blacklist:"+tokenID, "revoked", ttl).Err()
}

func (r *RedisRevocations) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, "blacklist:"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return n > 0, nil
}

// --- Rate limiting ---

// Decision is the outcome of one rate limited request.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RedisLimiter counts requests per key in fixed windows. The window starts
// with the first request.
type RedisLimiter struct {
	client redis.Cmdable
}

func NewRedisLimiter(client redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	key = "ratelimit:" + key
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	remaining := ttl.Val()
	if incr.Val() == 1 || remaining < 0 {
		if err := l.client.PExpire(ctx, key, window).Err(); err != nil {
			log.Printf("⚠️ rate limit window not set on %s: %v", key, err)
		}
		remaining = window
	}

	d := Decision{Limit: limit, Remaining: limit - int(incr.Val())}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = int(incr.Val()) <= limit
	if !d.Allowed {
		d.RetryAfter = remaining
	}
	return d, nil
}

// Reset clears the counter, e.g. after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, "ratelimit:"+key).Err()
}
