// ABOUTME: Tests for the Redis storage implementation against miniredis
// ABOUTME: Covers the storage contract, key prefixing, and connection failures

package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStorage(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStorage_Contract(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		s, _ := newTestRedisStorage(t)
		return s
	})
}

func TestRedisStorage_KeyPrefix(t *testing.T) {
	s, mr := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, map[string]Item{"user/test/u1": {Document: []byte(`{"name":"ada"}`)}}))

	assert.True(t, mr.Exists("test:state:user/test/u1"))
	assert.Equal(t, `{"name":"ada"}`, mr.HGet("test:state:user/test/u1", "document"))
}

func TestRedisStorage_DefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStorageWithClient(client, "")
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), map[string]Item{"k": {Document: []byte(`1`)}}))
	assert.True(t, mr.Exists("botkit:state:k"))
}

func TestNewRedisStorage_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStorage(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisStorage_WildcardWritesUnderContention(t *testing.T) {
	s, _ := newTestRedisStorage(t)

	failed := writeConcurrently(t, s, []string{"conversation/c/v"}, 64, 20)
	assert.Zero(t, failed)

	items, err := s.Read(context.Background(), []string{"conversation/c/v"})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRedisStorage_TaggedWritersRaceToOneWinner(t *testing.T) {
	s, _ := newTestRedisStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, map[string]Item{"k": mustItem(t, counter{Count: 0}, Unset)}))
	base, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	tag := base["k"].ETag

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
		other     []error
	)
	items := make([]Item, writers)
	for i := range items {
		items[i] = mustItem(t, counter{Count: i + 1}, tag)
	}
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Write(ctx, map[string]Item{"k": items[i]})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}
