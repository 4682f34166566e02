package presence

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewService builds a Redis-backed Service when redisURL is set,
// otherwise an in-memory one with its GC goroutine started against ctx.
func NewService(ctx context.Context, redisURL string, ttl time.Duration, minBeaconSamples int) (*Service, error) {
	if strings.TrimSpace(redisURL) == "" {
		backend := NewInMemoryBackend()
		backend.StartGC(ctx, time.Minute)
		return New(backend, ttl, minBeaconSamples), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return New(NewRedisBackend(client), ttl, minBeaconSamples), nil
}
