package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key pattern: ratelimit:{actor_id}:publish, expiring with the window.

type RateLimitConfig struct {
	PublishLimit  int
	PublishWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PublishLimit:  30,
		PublishWindow: time.Minute,
	}
}

// RateLimiter is a fixed window counter shared by every API instance.
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if config.PublishLimit <= 0 {
		config.PublishLimit = defaults.PublishLimit
	}
	if config.PublishWindow <= 0 {
		config.PublishWindow = defaults.PublishWindow
	}
	return &RateLimiter{client: client, config: config}
}

var checkLimitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	end
	return {0, 0, ttl}
`)

var refundScript = goredis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	if current > 0 then
		return redis.call('DECR', KEYS[1])
	end
	return 0
`)

func publishKey(actorID string) string {
	return fmt.Sprintf("ratelimit:%s:publish", actorID)
}

// AllowPublish consumes one publish slot for actorID.
func (r *RateLimiter) AllowPublish(ctx context.Context, actorID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, publishKey(actorID), r.config.PublishLimit, r.config.PublishWindow)
}

// RefundPublish returns a slot taken by AllowPublish for a request that
// published nothing new. The window expiry is left untouched.
func (r *RateLimiter) RefundPublish(ctx context.Context, actorID string) error {
	if err := refundScript.Run(ctx, r.client, []string{publishKey(actorID)}).Err(); err != nil {
		return fmt.Errorf("rate limit refund failed: %w", err)
	}
	return nil
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	result, err := checkLimitScript.Run(ctx, r.client, []string{key}, limit, seconds).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	return &RateLimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetIn:   time.Duration(result[2]) * time.Second,
		Limit:     limit,
	}, nil
}

// Reset clears the publish counter for actorID.
func (r *RateLimiter) Reset(ctx context.Context, actorID string) error {
	return r.client.Del(ctx, publishKey(actorID)).Err()
}
