package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisFixedWindowScript performs the fixed-window check atomically.
// KEYS[1] = window key
// ARGV[1] = max requests per window
// ARGV[2] = window length in milliseconds
// ARGV[3] = current unix time in milliseconds
// Returns {allowed, remaining, retry_after_seconds}.
var redisFixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "count", "reset_time")
local count = tonumber(state[1])
local reset_time = tonumber(state[2])

if not count or not reset_time or now >= reset_time then
    count = 0
    reset_time = now + window_ms
end

if count >= max then
    local retry = math.ceil((reset_time - now) / 1000)
    if retry < 1 then retry = 1 end
    return {0, 0, retry}
end

count = count + 1
redis.call("HMSET", key, "count", count, "reset_time", reset_time)
redis.call("PEXPIRE", key, reset_time - now)
return {1, max - count, 0}
`)

// RedisStore is a shared WindowStore backed by Redis. Expiry is delegated
// to Redis key TTLs, so Sweep is a no-op.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

// Incr implements WindowStore.
func (s *RedisStore) Incr(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	res, err := redisFixedWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		policy.Max, policy.Window.Milliseconds(), now.UnixMilli()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %T", res)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	retry, _ := vals[2].(int64)

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: int(retry),
	}, nil
}

// Sweep implements WindowStore. Redis TTLs already clean expired windows.
func (s *RedisStore) Sweep(context.Context, time.Time) error { return nil }
