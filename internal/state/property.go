// ABOUTME: Typed accessor for one named value inside a state scope
// ABOUTME: Loads the scope on first use and never writes to storage

package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-botkit/internal/turn"
)

// Property reads and writes one value of type T in a scope document.
type Property[T any] struct {
	state *BotState
	name  string
}

// CreateProperty returns an accessor for name in bs.
func CreateProperty[T any](bs *BotState, name string) (*Property[T], error) {
	if bs == nil {
		return nil, fmt.Errorf("creating property %q: nil state", name)
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyPropertyName
	}
	return &Property[T]{state: bs, name: name}, nil
}

// Name returns the property name.
func (p *Property[T]) Name() string { return p.name }

// Get returns the stored value. If it is absent and defaultFn is non-nil, the
// default is stored in the cached document and returned; with a nil defaultFn
// an absent value is ErrPropertyNotFound.
//
// The value is decoded from the cached document on every call, so Get returns
// a copy. Changes made through a returned map, slice, or pointer are not seen
// by later Gets or saved until they are written back with Set.
func (p *Property[T]) Get(ctx context.Context, tc *turn.Context, defaultFn func() T) (T, error) {
	var zero T
	if err := p.state.Load(ctx, tc, false); err != nil {
		return zero, err
	}

	var v T
	found, err := p.state.PropertyValue(tc, p.name, &v)
	if err != nil {
		return zero, err
	}
	if found {
		return v, nil
	}
	if defaultFn == nil {
		return zero, fmt.Errorf("%s.%s: %w", p.state.name, p.name, ErrPropertyNotFound)
	}

	v = defaultFn()
	if err := p.state.SetPropertyValue(tc, p.name, v); err != nil {
		return zero, err
	}
	return v, nil
}

// Set stores v in the cached document.
func (p *Property[T]) Set(ctx context.Context, tc *turn.Context, v T) error {
	if err := p.state.Load(ctx, tc, false); err != nil {
		return err
	}
	return p.state.SetPropertyValue(tc, p.name, v)
}

// Delete removes the value from the cached document.
func (p *Property[T]) Delete(ctx context.Context, tc *turn.Context) error {
	if err := p.state.Load(ctx, tc, false); err != nil {
		return err
	}
	return p.state.DeletePropertyValue(tc, p.name)
}
