// ABOUTME: Typed side-table for sharing data between components during one turn
// ABOUTME: Keys carry their value type; closeable values are closed with the turn

package turn

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
)

// ErrDuplicateKey is returned by Add when the key is already present.
var ErrDuplicateKey = errors.New("turn state key already present")

// State is a string-keyed table of values owned by one turn.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

func newState() *State {
	return &State{values: make(map[string]any)}
}

// Value returns the raw value stored under name.
func (s *State) Value(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// SetValue stores v under name, replacing any existing value.
func (s *State) SetValue(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
}

// AddValue stores v under name unless a value is already present.
func (s *State) AddValue(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, name)
	}
	s.values[name] = v
	return nil
}

// Remove deletes the value stored under name.
func (s *State) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Has reports whether a value is stored under name.
func (s *State) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

// Names returns the stored keys in sorted order.
func (s *State) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// close closes every value implementing io.Closer and empties the table.
func (s *State) close() error {
	s.mu.Lock()
	values := s.values
	s.values = make(map[string]any)
	s.mu.Unlock()

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if c, ok := values[name].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Key is a typed key into State.
type Key[T any] struct {
	id string
}

// NewKey creates a key. The id should be namespaced by the owning component.
func NewKey[T any](id string) Key[T] {
	return Key[T]{id: id}
}

// String returns the key id.
func (k Key[T]) String() string { return k.id }

// Get returns the value for the key. ok is false when the key is absent or
// holds a value of another type.
func (k Key[T]) Get(s *State) (T, bool) {
	v, ok := s.Value(k.id)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Set stores v, replacing any existing value.
func (k Key[T]) Set(s *State, v T) {
	s.SetValue(k.id, v)
}

// Add stores v unless the key is already present.
func (k Key[T]) Add(s *State, v T) error {
	return s.AddValue(k.id, v)
}

// Delete removes the key.
func (k Key[T]) Delete(s *State) {
	s.Remove(k.id)
}
