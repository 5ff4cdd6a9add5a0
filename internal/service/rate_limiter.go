package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/identity-service/pkg/database"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, then records the hit only if it fits.
// Returns {1, 0} when allowed, or {0, retry after ms} when the window is full.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window + 60000)
	return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	return {0, window - (now - tonumber(oldest[2]))}
end
return {0, window}
`)

// RedisRateLimiter handles rate limiting using a Redis sliding window log
type RedisRateLimiter struct {
	redis *database.Redis
	now   func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis) *RedisRateLimiter {
	return &RedisRateLimiter{redis: redis, now: time.Now}
}

// Allow records a hit for key and reports whether it fits in limit per window.
// The check and the hit are applied atomically in Redis.
// When the limit is exceeded, retryAfter estimates when the oldest hit leaves the window.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	res, err := slidingWindowScript.Run(ctx, r.redis.Client, []string{redisKey},
		r.now().UnixMilli(), window.Milliseconds(), limit, uuid.New().String(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to apply rate limit window: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit reply: %v", res)
	}

	if res[0] == 1 {
		return true, 0, nil
	}

	retryAfter = time.Duration(res[1]) * time.Millisecond
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter.Round(time.Second), nil
}

// Remaining returns the number of requests still allowed in the current window
func (r *RedisRateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	windowStart := r.now().Add(-window)
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	if err := r.redis.Client.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := r.redis.Client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}
