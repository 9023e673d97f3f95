// ABOUTME: Behavioral contract shared by every Storage implementation
// ABOUTME: Run against memory, SQLite, and Redis storages by their own tests

package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	Count int `json:"count"`
}

func mustItem(t *testing.T, v any, etag ETag) Item {
	t.Helper()
	item, err := NewItem(v, etag)
	require.NoError(t, err)
	return item
}

func runStorageContract(t *testing.T, newStorage func(t *testing.T) Storage) {
	ctx := context.Background()

	t.Run("read missing keys is empty", func(t *testing.T) {
		s := newStorage(t)
		items, err := s.Read(ctx, []string{"nope", "also-nope"})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("write then read", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 1}, Unset)}))

		items, err := s.Read(ctx, []string{"k", "missing"})
		require.NoError(t, err)
		require.Len(t, items, 1)

		var got counter
		require.NoError(t, items["k"].Decode(&got))
		assert.Equal(t, 1, got.Count)
		assert.False(t, items["k"].ETag.IsUnset())
		assert.False(t, items["k"].ETag.IsWildcard())
	})

	t.Run("matching etag succeeds and assigns a fresh tag", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 1}, Unset)}))
		first, err := s.Read(ctx, []string{"k"})
		require.NoError(t, err)

		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 2}, first["k"].ETag)}))
		second, err := s.Read(ctx, []string{"k"})
		require.NoError(t, err)

		assert.NotEqual(t, first["k"].ETag, second["k"].ETag)
	})

	t.Run("stale etag conflicts", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 1}, Unset)}))
		stale, err := s.Read(ctx, []string{"k"})
		require.NoError(t, err)
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 2}, Wildcard())}))

		err = s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 3}, stale["k"].ETag)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConflict))

		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "k", conflict.Key)

		items, err := s.Read(ctx, []string{"k"})
		require.NoError(t, err)
		var got counter
		require.NoError(t, items["k"].Decode(&got))
		assert.Equal(t, 2, got.Count)
	})

	t.Run("wildcard always succeeds", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 1}, Wildcard())}))
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 2}, Wildcard())}))
	})

	t.Run("parallel wildcard writes all succeed", func(t *testing.T) {
		s := newStorage(t)
		keys := []string{"conversation/c/0", "conversation/c/1", "conversation/c/2", "conversation/c/3"}

		failed := writeConcurrently(t, s, keys, 16, 20)
		assert.Zero(t, failed)

		items, err := s.Read(ctx, keys)
		require.NoError(t, err)
		assert.Len(t, items, len(keys))
	})

	t.Run("unset etag over existing record is rejected", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 1}, Unset)}))

		err := s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 2}, Unset)})
		assert.ErrorIs(t, err, ErrETagRequired)
		assert.False(t, errors.Is(err, ErrConflict))
	})

	t.Run("conflicting key does not block other keys", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Write(ctx, map[string]Item{"a": mustItem(t, counter{Count: 1}, Unset)}))

		err := s.Write(ctx, map[string]Item{
			"a": mustItem(t, counter{Count: 9}, Tag("not-the-tag")),
			"b": mustItem(t, counter{Count: 2}, Unset),
		})
		assert.ErrorIs(t, err, ErrConflict)

		items, err := s.Read(ctx, []string{"a", "b"})
		require.NoError(t, err)
		var a, b counter
		require.NoError(t, items["a"].Decode(&a))
		require.NoError(t, items["b"].Decode(&b))
		assert.Equal(t, 1, a.Count)
		assert.Equal(t, 2, b.Count)
	})

	t.Run("delete is unconditional", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 1}, Unset)}))

		require.NoError(t, s.Delete(ctx, []string{"k", "never-existed"}))

		items, err := s.Read(ctx, []string{"k"})
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Read(ctx, []string{""})
		assert.ErrorIs(t, err, ErrEmptyKey)
		assert.ErrorIs(t, s.Delete(ctx, []string{""}), ErrEmptyKey)
	})

	t.Run("nil changes is rejected", func(t *testing.T) {
		s := newStorage(t)
		assert.ErrorIs(t, s.Write(ctx, nil), ErrNilChanges)
	})
}

// writeConcurrently runs workers goroutines each issuing perWorker wildcard
// writes across keys and returns how many writes failed.
func writeConcurrently(t *testing.T, s Storage, keys []string, workers, perWorker int) int64 {
	t.Helper()
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		failed   atomic.Int64
		firstErr sync.Once
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := keys[(w+i)%len(keys)]
				item, err := NewItem(counter{Count: w*perWorker + i}, Wildcard())
				if err == nil {
					err = s.Write(ctx, map[string]Item{key: item})
				}
				if err != nil {
					failed.Add(1)
					firstErr.Do(func() { t.Logf("first failed write: %v", err) })
				}
			}
		}(w)
	}
	wg.Wait()
	return failed.Load()
}
