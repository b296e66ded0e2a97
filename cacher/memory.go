package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// memoryCacher backs the Cacher interface with go-cache. A singleflight
// group collapses concurrent fetches for the same missing key.
type memoryCacher[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCacher creates an in-memory cacher. Expired entries are removed
// every cleanupInterval.
//
// Parameters:
//   - defaultExpiration: TTL applied when a caller passes ttl <= 0
//   - cleanupInterval: How often expired entries are purged
//
// Returns:
//   - A Cacher backed by process memory
func NewMemoryCacher[T any](defaultExpiration, cleanupInterval time.Duration) Cacher[T] {
	return &memoryCacher[T]{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cacher.
func (c *memoryCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	var zero T

	if val, found := c.cache.Get(key); found {
		if typed, ok := val.(T); ok {
			return typed, nil
		}
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have populated the entry while we waited for
		// the singleflight slot.
		if cached, found := c.cache.Get(key); found {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return zero, err
		}

		c.cache.Set(key, fetched, ttl)
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

// Delete implements Cacher.
func (c *memoryCacher[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// Clear implements Cacher.
func (c *memoryCacher[T]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Flush()
	return nil
}
