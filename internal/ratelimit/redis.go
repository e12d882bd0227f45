package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// Sliding window over a sorted set scored by admission time in ms. Returns
// {1, 0} when admitted, {0, waitMs} otherwise.
const slidingWindowLuaScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local count = redis.call("ZCARD", key)
if count < limit then
    redis.call("ZADD", key, now, member)
    redis.call("PEXPIRE", key, window)
    return {1, 0}
end

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local wait = tonumber(oldest[2]) + window - now
if wait < 1 then
    wait = 1
end
return {0, math.ceil(wait)}
`

// RedisWindow shares one sliding window across engine instances through a
// Redis sorted set. When Redis is unreachable it degrades to a local
// SlidingWindow so sends keep flowing at the per-process rate.
type RedisWindow struct {
	client   *redis.Client
	key      string
	rate     Rate
	script   *redis.Script
	fallback *SlidingWindow
	now      func() time.Time
	log      *logger.Logger
}

// NewRedisWindow creates a distributed limiter for platform.
func NewRedisWindow(client *redis.Client, platform string, rate Rate) *RedisWindow {
	return &RedisWindow{
		client:   client,
		key:      fmt.Sprintf("ratelimit:platform:%s", platform),
		rate:     rate,
		script:   redis.NewScript(slidingWindowLuaScript),
		fallback: NewSlidingWindow(rate),
		now:      time.Now,
		log:      logger.With("component", "ratelimit", "platform", platform),
	}
}

// Admit blocks until the shared window has room or ctx is done.
func (r *RedisWindow) Admit(ctx context.Context) error {
	if r.rate.Count <= 0 || r.rate.Period <= 0 {
		return ctx.Err()
	}
	for {
		allowed, wait, err := r.check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Warn("redis rate limit check failed, using local window", "error", err)
			return r.fallback.Admit(ctx)
		}
		if allowed {
			return nil
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *RedisWindow) check(ctx context.Context) (bool, time.Duration, error) {
	res, err := r.script.Run(ctx, r.client,
		[]string{r.key},
		r.now().UnixMilli(),
		r.rate.Period.Milliseconds(),
		r.rate.Count,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}
