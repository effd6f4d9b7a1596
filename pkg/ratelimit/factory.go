package ratelimit

import (
	"os"

	"github.com/redis/go-redis/v9"
)

// NewFromEnv builds a Limiter over the store the environment selects:
// Redis when RATELIMIT_REDIS_ADDR is set, process memory otherwise. The
// memory store needs StartSweep; the Redis store expires windows itself.
func NewFromEnv() *Limiter {
	if addr := os.Getenv("RATELIMIT_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("RATELIMIT_REDIS_PASSWORD"),
		})
		return New(NewRedisStore(client))
	}
	return New(NewMemoryStore())
}
