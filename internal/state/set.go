// ABOUTME: Aggregate of state scopes loaded and saved together
// ABOUTME: Also provides middleware that saves scopes after a successful turn

package state

import (
	"context"
	"sync"

	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
)

// Set loads and saves several scopes in order. The first failure aborts the
// operation; scopes already processed are not rolled back.
type Set struct {
	mu     sync.RWMutex
	states []*BotState
}

// NewSet creates a set of scopes.
func NewSet(states ...*BotState) *Set {
	return (&Set{}).Add(states...)
}

// Add appends scopes, ignoring nil.
func (s *Set) Add(states ...*BotState) *Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range states {
		if st != nil {
			s.states = append(s.states, st)
		}
	}
	return s
}

// States returns the scopes in order.
func (s *Set) States() []*BotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*BotState(nil), s.states...)
}

// LoadAll loads every scope.
func (s *Set) LoadAll(ctx context.Context, tc *turn.Context, force bool) error {
	for _, st := range s.States() {
		if err := st.Load(ctx, tc, force); err != nil {
			return err
		}
	}
	return nil
}

// SaveAllChanges saves every scope.
func (s *Set) SaveAllChanges(ctx context.Context, tc *turn.Context, force bool) error {
	for _, st := range s.States() {
		if err := st.SaveChanges(ctx, tc, force); err != nil {
			return err
		}
	}
	return nil
}

// AutoSave returns middleware that saves the given scopes after the rest of the
// pipeline completes without error.
func AutoSave(states ...*BotState) pipeline.Middleware {
	set := NewSet(states...)
	return pipeline.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next pipeline.Next) error {
		if err := next(ctx); err != nil {
			return err
		}
		return set.SaveAllChanges(ctx, tc, false)
	})
}
