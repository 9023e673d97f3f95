// ABOUTME: Middleware chain with before/after bracketing around an explicit continuation cursor
// ABOUTME: Chains are themselves middleware so they can be nested

package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/2389/coven-botkit/internal/turn"
)

// ErrNilTurnContext is returned when Run is called without a turn.
var ErrNilTurnContext = errors.New("turn context cannot be nil")

// Handler is the bot logic invoked at the end of the chain.
type Handler func(ctx context.Context, tc *turn.Context) error

// Next runs the remainder of the chain.
type Next func(ctx context.Context) error

// Middleware is a unit of turn-processing behavior.
type Middleware interface {
	OnTurn(ctx context.Context, tc *turn.Context, next Next) error
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, tc *turn.Context, next Next) error

// OnTurn calls f.
func (f MiddlewareFunc) OnTurn(ctx context.Context, tc *turn.Context, next Next) error {
	return f(ctx, tc, next)
}

// Chain is an ordered list of middleware.
type Chain struct {
	mu         sync.RWMutex
	middleware []Middleware
}

// NewChain creates a chain with the given middleware.
func NewChain(middleware ...Middleware) *Chain {
	return (&Chain{}).Use(middleware...)
}

// Use appends middleware and returns the chain. It panics on nil middleware.
func (c *Chain) Use(middleware ...Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range middleware {
		if m == nil {
			panic("pipeline: nil middleware")
		}
		c.middleware = append(c.middleware, m)
	}
	return c
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middleware)
}

// Run executes the chain and then handler. A nil handler completes the turn
// once the chain finishes.
func (c *Chain) Run(ctx context.Context, tc *turn.Context, handler Handler) error {
	if tc == nil {
		return ErrNilTurnContext
	}

	c.mu.RLock()
	snapshot := make([]Middleware, len(c.middleware))
	copy(snapshot, c.middleware)
	c.mu.RUnlock()

	return cursor{remaining: snapshot, handler: handler}.run(ctx, tc)
}

// OnTurn runs the chain as a single middleware inside another chain.
func (c *Chain) OnTurn(ctx context.Context, tc *turn.Context, next Next) error {
	return c.Run(ctx, tc, func(ctx context.Context, _ *turn.Context) error {
		return next(ctx)
	})
}

// cursor is the position in a chain: the middleware still to run and the
// terminal handler.
type cursor struct {
	remaining []Middleware
	handler   Handler
}

func (cur cursor) run(ctx context.Context, tc *turn.Context) error {
	if len(cur.remaining) == 0 {
		if cur.handler == nil {
			return nil
		}
		return cur.handler(ctx, tc)
	}

	rest := cursor{remaining: cur.remaining[1:], handler: cur.handler}
	return cur.remaining[0].OnTurn(ctx, tc, func(ctx context.Context) error {
		return rest.run(ctx, tc)
	})
}
