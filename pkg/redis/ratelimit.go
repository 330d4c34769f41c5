package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitResult is the outcome of one Allow call
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	RetryIn   time.Duration
}

// RateLimiter is a sliding-window limiter shared by every process using the same redis.
// Each key also has an optional block that rejects everything until it expires.
type RateLimiter struct {
	client    *Client
	keyPrefix string
}

func NewRateLimiter(client *Client, keyPrefix string) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "fern:ratelimit:"
	}
	return &RateLimiter{client: client, keyPrefix: keyPrefix}
}

// KEYS[1] window zset, KEYS[2] block key.
// ARGV: now ms, window ms, limit, member.
// Returns {allowed, remaining, retry ms}.
var allowScript = redis.NewScript(`
local blocked = redis.call("pttl", KEYS[2])
if blocked > 0 then
	return {0, 0, blocked}
end

local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("zremrangebyscore", KEYS[1], "-inf", now - window)
local used = redis.call("zcard", KEYS[1])
if used < limit then
	redis.call("zadd", KEYS[1], now, ARGV[4])
	redis.call("pexpire", KEYS[1], window)
	return {1, limit - used - 1, 0}
end

local retry = window
local oldest = redis.call("zrange", KEYS[1], 0, 0, "WITHSCORES")
if #oldest > 0 then
	retry = tonumber(oldest[2]) + window - now
end
if retry < 0 then
	retry = 0
end
return {0, 0, retry}
`)

// Allow spends one request from key's budget of limit per window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	reply, err := allowScript.Run(ctx, r.client.rdb,
		[]string{r.keyPrefix + key, r.blockKey(key)},
		time.Now().UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("rate limit script returned %d values", len(reply))
	}

	return &RateLimitResult{
		Allowed:   reply[0] == 1,
		Remaining: reply[1],
		RetryIn:   time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

func (r *RateLimiter) blockKey(key string) string {
	return r.keyPrefix + key + ":block"
}

// BlockFor rejects every request for key during d, e.g. after a 429 with Retry-After.
func (r *RateLimiter) BlockFor(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.client.rdb.Set(ctx, r.blockKey(key), time.Now().Add(d).UTC().Format(time.RFC3339), d).Err()
}

// IsBlocked returns whether key is blocked and for how much longer.
func (r *RateLimiter) IsBlocked(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl, err := r.client.rdb.PTTL(ctx, r.blockKey(key)).Result()
	if err != nil {
		return false, 0, err
	}
	// PTTL reports a missing key as a negative sentinel
	if ttl <= 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}
