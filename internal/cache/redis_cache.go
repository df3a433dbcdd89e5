package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"wallquote/backend/internal/domain"
)

type RedisZoneCache struct {
	client *redis.Client
}

func NewRedisZoneCache(addr string, password string, db int) *RedisZoneCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisZoneCache{client: client}
}

func (c *RedisZoneCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisZoneCache) Close() error {
	return c.client.Close()
}

func (c *RedisZoneCache) Get(ctx context.Context, key string) (*domain.ZoneQuote, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var quote domain.ZoneQuote
	if err := json.Unmarshal(val, &quote); err != nil {
		return nil, false, err
	}
	return &quote, true, nil
}

func (c *RedisZoneCache) Set(ctx context.Context, key string, value *domain.ZoneQuote, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
