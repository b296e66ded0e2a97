// Package cacher provides a TTL cache abstraction with in-memory and Redis
// backings. The game server uses it in front of slow collaborators (e.g. the
// player profile provider) so a burst of logins does not hammer them.
package cacher

import (
	"context"
	"time"
)

// FetchFunc loads a value from the source of truth on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values of type T with per-entry TTLs. Implementations are
// safe for concurrent use and suppress duplicate concurrent fetches for the
// same key.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or runs fetch and caches
	// its result with the given TTL. Concurrent callers for the same missing
	// key share a single fetch.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - key: The cache key
	//   - ttl: Time-to-live for a freshly fetched value
	//   - fetch: Loader invoked on a miss
	//
	// Returns:
	//   - The cached or freshly fetched value, or the fetch error
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries owned by this cacher.
	Clear(ctx context.Context) error
}
