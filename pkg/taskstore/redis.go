package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV adapts a go-redis client to the KV interface.
type RedisKV struct {
	client redis.Cmdable
}

// NewRedisKV wraps an existing Redis client. The caller owns the client's
// lifecycle.
func NewRedisKV(client redis.Cmdable) *RedisKV {
	return &RedisKV{client: client}
}

var _ KV = (*RedisKV)(nil)

// Get returns the value at key, or (nil, nil) when the key is absent.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set writes the value with the given TTL, overwriting any previous value.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Keys lists keys matching the glob pattern. The notification key space per
// task is small, so KEYS is acceptable here.
func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Keys(ctx, pattern).Result()
}
