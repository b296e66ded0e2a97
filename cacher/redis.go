package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// redisCacher backs the Cacher interface with Redis. Values are stored as
// JSON. Fetch suppression is process-local (singleflight); multiple server
// processes sharing one Redis may still fetch concurrently, which is an
// acceptable trade for this cache's workload.
type redisCacher[T any] struct {
	client *redis.Client
	group  singleflight.Group
}

// NewRedisCacher creates a Redis-backed cacher using the given client.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	profiles := cacher.NewRedisCacher[handler.Profile](client)
func NewRedisCacher[T any](client *redis.Client) Cacher[T] {
	return &redisCacher[T]{client: client}
}

// GetOrFetch implements Cacher.
func (c *redisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	var zero T

	if val, ok, err := c.get(ctx, key); err != nil {
		return zero, err
	} else if ok {
		return val, nil
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if cached, ok, err := c.get(ctx, key); err != nil {
			return zero, err
		} else if ok {
			return cached, nil
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return zero, err
		}

		data, err := json.Marshal(fetched)
		if err != nil {
			return zero, fmt.Errorf("marshal value for key %s: %w", key, err)
		}

		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return zero, fmt.Errorf("redis set %s: %w", key, err)
		}

		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type in cache for key %s", key)
	}

	return typed, nil
}

func (c *redisCacher[T]) get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var val T
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return zero, false, fmt.Errorf("unmarshal cached value for key %s: %w", key, err)
	}

	return val, true, nil
}

// Delete implements Cacher.
func (c *redisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}

// Clear implements Cacher.
func (c *redisCacher[T]) Clear(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}

	return nil
}
