// ABOUTME: Storage interface, stored item type, and conflict errors
// ABOUTME: Shared by memory, SQLite, and Redis implementations

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Storage errors
var (
	ErrConflict     = errors.New("etag conflict")
	ErrETagRequired = errors.New("etag required to overwrite existing record")
	ErrEmptyKey     = errors.New("storage key is empty")
	ErrNilChanges   = errors.New("changes cannot be nil")
)

// Storage persists JSON documents under string keys.
type Storage interface {
	Read(ctx context.Context, keys []string) (map[string]Item, error)
	Write(ctx context.Context, changes map[string]Item) error
	Delete(ctx context.Context, keys []string) error
}

// Item is a stored JSON document and its version tag.
type Item struct {
	Document json.RawMessage
	ETag     ETag
}

// NewItem marshals v into an item with the given tag.
func NewItem(v any, etag ETag) (Item, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return Item{}, fmt.Errorf("marshaling item: %w", err)
	}
	return Item{Document: doc, ETag: etag}, nil
}

// Decode unmarshals the item's document into v.
func (i Item) Decode(v any) error {
	if err := json.Unmarshal(i.Document, v); err != nil {
		return fmt.Errorf("decoding item: %w", err)
	}
	return nil
}

// ConflictError reports a version mismatch for one key.
type ConflictError struct {
	Key      string
	Expected string
	Current  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("etag conflict on %q: original %s, current %s", e.Key, e.Expected, e.Current)
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// checkETag applies the write precondition for one key.
func checkETag(key string, incoming ETag, current string, exists bool) error {
	if !exists || incoming.IsWildcard() {
		return nil
	}
	if incoming.IsUnset() {
		return fmt.Errorf("%w: %s", ErrETagRequired, key)
	}
	if incoming.Value() != current {
		return &ConflictError{Key: key, Expected: incoming.Value(), Current: current}
	}
	return nil
}

func validateKeys(keys []string) error {
	for _, k := range keys {
		if k == "" {
			return ErrEmptyKey
		}
	}
	return nil
}

// sortedKeys returns the change keys in a stable order so batches touch
// records deterministically.
func sortedKeys(changes map[string]Item) []string {
	return slices.Sorted(maps.Keys(changes))
}
