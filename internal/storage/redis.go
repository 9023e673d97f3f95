// ABOUTME: Redis implementation of Storage using go-redis
// ABOUTME: Each key is a hash holding the document and etag; conditional writes run under WATCH

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	fieldDocument   = "document"
	fieldETag       = "etag"
	maxWatchRetries = 5
)

// RedisStorage implements Storage on Redis.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *slog.Logger
}

// RedisOptions configures NewRedisStorage.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisStorageWithClient(client, opts.KeyPrefix), nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	if keyPrefix == "" {
		keyPrefix = "botkit:"
	}
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix + "state:",
		logger:    slog.Default().With("component", "storage", "driver", "redis"),
	}
}

// Close closes the client.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable.
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStorage) redisKey(key string) string {
	return r.keyPrefix + key
}

// Read returns the items that exist.
func (r *RedisStorage) Read(ctx context.Context, keys []string) (map[string]Item, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	out := make(map[string]Item, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HMGet(ctx, r.redisKey(key), fieldDocument, fieldETag)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading items: %w", err)
	}

	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("reading item %q: %w", keys[i], err)
		}
		doc, ok := vals[0].(string)
		if !ok {
			continue
		}
		etag, _ := vals[1].(string)
		out[keys[i]] = Item{Document: []byte(doc), ETag: Tag(etag)}
	}
	return out, nil
}

// Write applies each change whose ETag precondition holds. Tagged and unset
// writes watch their key, so a concurrent writer that slips in between the
// check and the write surfaces as a conflict. Wildcard writes never watch.
func (r *RedisStorage) Write(ctx context.Context, changes map[string]Item) error {
	if changes == nil {
		return ErrNilChanges
	}

	var errs []error
	for _, key := range sortedKeys(changes) {
		if key == "" {
			errs = append(errs, ErrEmptyKey)
			continue
		}
		err := r.writeOne(ctx, key, changes[key])
		if err == nil {
			continue
		}
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrETagRequired) {
			errs = append(errs, err)
			continue
		}
		return err
	}
	return errors.Join(errs...)
}

func (r *RedisStorage) writeOne(ctx context.Context, key string, item Item) error {
	rk := r.redisKey(key)
	doc := item.Document
	if doc == nil {
		doc = []byte("null")
	}

	if item.ETag.IsWildcard() {
		return r.overwrite(ctx, rk, key, doc)
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, rk, fieldETag).Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("reading etag for %q: %w", key, err)
		}

		if err := checkETag(key, item.ETag, current, exists); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk, fieldDocument, string(doc), fieldETag, newTag().Value())
			return nil
		})
		return err
	}

	// A tagged or unset write that loses the race re-checks against the new
	// record, so the retry reports the real conflict or ErrETagRequired.
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, rk)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		r.logger.Debug("watched key changed during write", "key", key, "attempt", attempt+1)
	}
	return &ConflictError{Key: key, Expected: item.ETag.String(), Current: "changed concurrently"}
}

// overwrite stores doc under a fresh tag without checking the current one.
func (r *RedisStorage) overwrite(ctx context.Context, rk, key string, doc []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rk, fieldDocument, string(doc), fieldETag, newTag().Value())
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing item %q: %w", key, err)
	}
	return nil
}

// Delete removes the keys.
func (r *RedisStorage) Delete(ctx context.Context, keys []string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	rks := make([]string, len(keys))
	for i, k := range keys {
		rks[i] = r.redisKey(k)
	}
	if err := r.client.Del(ctx, rks...).Err(); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}
	return nil
}
