package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig is one shared request budget
type RateLimitConfig struct {
	Key    string        // budget name, e.g. "holiday_calendar"
	Limit  int           // requests per window
	Window time.Duration // sliding window length
}

// HolidayRateLimit bounds holiday calendar page fetches across processes
var HolidayRateLimit = RateLimitConfig{
	Key:    "holiday_calendar",
	Limit:  5,
	Window: time.Minute,
}

// Decision is the answer of one Allow call
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// slidingWindow admits a request when fewer than limit members are younger
// than the window. A refusal returns the age at which the oldest member
// leaves the window. Members are unique so concurrent requests within one
// millisecond are all counted.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, limit - count - 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = window
if oldest[2] then
	wait = tonumber(oldest[2]) + window - now
end
return {0, 0, wait}
`)

// RateLimiter is a Redis sliding-window limiter shared by every process
// using the same prefix
// ⭐ SSOT: 외부 호출 속도 제한은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
}

// NewRateLimiter creates a limiter. A disabled client admits everything.
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix}
}

// Enabled reports whether the shared limiter is active
func (r *RateLimiter) Enabled() bool {
	return r.client != nil && r.client.Enabled()
}

// Allow records one request against cfg when the budget permits it
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (Decision, error) {
	if !r.Enabled() {
		return Decision{Allowed: true, Remaining: cfg.Limit}, nil
	}

	key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)
	res, err := slidingWindow.Run(ctx, r.client.Redis(), []string{key},
		time.Now().UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.Limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script failed: %w", err)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Wait blocks until a request is admitted or ctx ends, sleeping for the
// retry hint between attempts
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		d, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		wait := d.RetryAfter
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
