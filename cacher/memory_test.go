package cacher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProfile struct {
	ID   string
	Name string
}

func TestMemoryCacherGetOrFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches on miss and serves from cache afterwards", func(t *testing.T) {
		c := NewMemoryCacher[testProfile](time.Minute, time.Minute)

		var calls atomic.Int32
		fetch := func(context.Context) (testProfile, error) {
			calls.Add(1)
			return testProfile{ID: "player_alice", Name: "alice"}, nil
		}

		first, err := c.GetOrFetch(ctx, "profile:player_alice", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, "alice", first.Name)

		second, err := c.GetOrFetch(ctx, "profile:player_alice", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("propagates fetch errors without caching them", func(t *testing.T) {
		c := NewMemoryCacher[testProfile](time.Minute, time.Minute)

		fetchErr := errors.New("upstream down")
		_, err := c.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (testProfile, error) {
			return testProfile{}, fetchErr
		})
		assert.ErrorIs(t, err, fetchErr)

		// The next call must hit the fetcher again.
		val, err := c.GetOrFetch(ctx, "k", time.Minute, func(context.Context) (testProfile, error) {
			return testProfile{ID: "p"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, "p", val.ID)
	})

	t.Run("expired entries are fetched again", func(t *testing.T) {
		c := NewMemoryCacher[testProfile](time.Minute, time.Minute)

		var calls atomic.Int32
		fetch := func(context.Context) (testProfile, error) {
			calls.Add(1)
			return testProfile{ID: "p"}, nil
		}

		_, err := c.GetOrFetch(ctx, "k", 10*time.Millisecond, fetch)
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)

		_, err = c.GetOrFetch(ctx, "k", 10*time.Millisecond, fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("concurrent callers share a single fetch", func(t *testing.T) {
		c := NewMemoryCacher[testProfile](time.Minute, time.Minute)

		var calls atomic.Int32
		release := make(chan struct{})
		fetch := func(context.Context) (testProfile, error) {
			calls.Add(1)
			<-release
			return testProfile{ID: "p"}, nil
		}

		const workers = 20
		var wg sync.WaitGroup
		results := make([]testProfile, workers)
		errs := make([]error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = c.GetOrFetch(ctx, "k", time.Minute, fetch)
			}(i)
		}

		// Give every goroutine time to pile onto the same key.
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "p", results[i].ID)
		}
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestMemoryCacherDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted keys are fetched again", func(t *testing.T) {
		c := NewMemoryCacher[testProfile](time.Minute, time.Minute)

		var calls atomic.Int32
		fetch := func(context.Context) (testProfile, error) {
			calls.Add(1)
			return testProfile{ID: "p"}, nil
		}

		_, err := c.GetOrFetch(ctx, "k", time.Minute, fetch)
		require.NoError(t, err)

		require.NoError(t, c.Delete(ctx, "k"))

		_, err = c.GetOrFetch(ctx, "k", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("deleting an absent key is not an error", func(t *testing.T) {
		c := NewMemoryCacher[testProfile](time.Minute, time.Minute)
		assert.NoError(t, c.Delete(ctx, "missing"))
	})
}

func TestMemoryCacherClear(t *testing.T) {
	t.Run("clear empties the whole cache", func(t *testing.T) {
		ctx := context.Background()
		c := NewMemoryCacher[testProfile](time.Minute, time.Minute)

		var calls atomic.Int32
		fetch := func(context.Context) (testProfile, error) {
			calls.Add(1)
			return testProfile{ID: "p"}, nil
		}

		for _, key := range []string{"a", "b"} {
			_, err := c.GetOrFetch(ctx, key, time.Minute, fetch)
			require.NoError(t, err)
		}

		require.NoError(t, c.Clear(ctx))

		_, err := c.GetOrFetch(ctx, "a", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})
}
