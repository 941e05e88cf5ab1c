package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Durarara1312/weatherbot/internal/infra/metrics"
)

// RedisCache хранит сериализованные значения с TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get возвращает значение по ключу. Отсутствие ключа не считается ошибкой.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "cache_get", "cache", start, nil)
		return nil, false, nil
	}
	metrics.ObserveNetworkRequest("redis", "cache_get", "cache", start, err)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set задаёт значение с TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "cache_set", "cache", start, err)
	return err
}
