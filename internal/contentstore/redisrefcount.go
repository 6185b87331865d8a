package contentstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisRefcount adapts a *redis.Client to the RedisIncrementer interface,
// one instance per logical refcount namespace (content vs certificate,
// spec §6's `content_database`/`certificate_database` split).
type RedisRefcount struct {
	client *redis.Client
}

// NewRedisRefcount wraps an already-connected client.
func NewRedisRefcount(client *redis.Client) *RedisRefcount {
	return &RedisRefcount{client: client}
}

func (r *RedisRefcount) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRefcount) Incr(ctx context.Context, key string) error {
	return r.client.Incr(ctx, key).Err()
}
