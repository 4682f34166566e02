package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "renfield:presence:"

// RedisBackend stores each user's current record as a JSON value under a
// TTL'd key, matching spec.md §4.10's "presence expires if not refreshed"
// rule directly through Redis's own expiry instead of a separate sweep.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Put(ctx context.Context, r Record, ttl time.Duration) error {
	encoded, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("presence: marshal record: %w", err)
	}
	if err := b.client.Set(ctx, keyPrefix+r.UserID, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("presence: redis set: %w", err)
	}
	return b.client.SAdd(ctx, keyPrefix+"index", r.UserID).Err()
}

func (b *RedisBackend) Get(ctx context.Context, userID string) (Record, bool, error) {
	raw, err := b.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("presence: redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("presence: unmarshal record: %w", err)
	}
	return rec, true, nil
}

// All returns every user currently present, skipping index members whose
// key has since expired rather than erroring.
func (b *RedisBackend) All(ctx context.Context) ([]Record, error) {
	userIDs, err := b.client.SMembers(ctx, keyPrefix+"index").Result()
	if err != nil {
		return nil, fmt.Errorf("presence: redis smembers: %w", err)
	}

	var out []Record
	var stale []string
	for _, id := range userIDs {
		rec, ok, err := b.Get(ctx, id)
		if err != nil {
			continue
		}
		if !ok {
			stale = append(stale, id)
			continue
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		b.client.SRem(ctx, keyPrefix+"index", toAny(stale)...)
	}
	return out, nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
