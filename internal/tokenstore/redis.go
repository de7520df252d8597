package tokenstore

import (
	"context"
	"errors"

	"github.com/devfolio/dashboard/internal/infrastructure/redis"
)

// RedisBackend shares the session between gateway instances
type RedisBackend struct {
	redisService *redis.Service
	prefix       string
}

func NewRedisBackend(redisService *redis.Service, prefix string) *RedisBackend {
	return &RedisBackend{
		redisService: redisService,
		prefix:       prefix,
	}
}

func (rb *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := rb.redisService.Get(ctx, rb.prefix+key)
	if errors.Is(err, redis.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (rb *RedisBackend) SetMany(ctx context.Context, values map[string]string) error {
	prefixed := make(map[string]string, len(values))
	for key, value := range values {
		prefixed[rb.prefix+key] = value
	}
	return rb.redisService.SetMany(ctx, prefixed)
}

func (rb *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = rb.prefix + key
	}
	return rb.redisService.Delete(ctx, prefixed...)
}
