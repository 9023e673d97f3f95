// ABOUTME: In-memory Storage implementation guarded by a read-write mutex
// ABOUTME: Copies documents on read and write to prevent external mutation

package storage

import (
	"context"
	"errors"
	"slices"
	"sync"
)

type memoryRecord struct {
	document []byte
	etag     string
}

// MemoryStorage is a process-local Storage.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]memoryRecord)}
}

// Read returns copies of the items that exist.
func (m *MemoryStorage) Read(_ context.Context, keys []string) (map[string]Item, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Item, len(keys))
	for _, key := range keys {
		rec, ok := m.records[key]
		if !ok {
			continue
		}
		out[key] = Item{Document: slices.Clone(rec.document), ETag: Tag(rec.etag)}
	}
	return out, nil
}

// Write stores each change whose ETag precondition holds. Conflicting keys are
// skipped and reported together.
func (m *MemoryStorage) Write(_ context.Context, changes map[string]Item) error {
	if changes == nil {
		return ErrNilChanges
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, key := range sortedKeys(changes) {
		if key == "" {
			errs = append(errs, ErrEmptyKey)
			continue
		}
		item := changes[key]
		cur, exists := m.records[key]
		if err := checkETag(key, item.ETag, cur.etag, exists); err != nil {
			errs = append(errs, err)
			continue
		}
		m.records[key] = memoryRecord{
			document: slices.Clone(item.Document),
			etag:     newTag().Value(),
		}
	}
	return errors.Join(errs...)
}

// Delete removes the keys.
func (m *MemoryStorage) Delete(_ context.Context, keys []string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.records, key)
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
