// ABOUTME: Middleware that handles errors of a matching category raised later in the chain
// ABOUTME: Non-matching errors propagate unchanged

package pipeline

import (
	"context"
	"errors"

	"github.com/2389/coven-botkit/internal/turn"
)

// CatchError handles errors from the rest of the chain that match E via
// errors.As. The handler returns nil to swallow the error or an error to
// replace it.
func CatchError[E error](handler func(ctx context.Context, tc *turn.Context, err E) error) Middleware {
	return MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next Next) error {
		err := next(ctx)
		if err == nil {
			return nil
		}
		var target E
		if errors.As(err, &target) {
			return handler(ctx, tc, target)
		}
		return err
	})
}

// CatchIs handles errors from the rest of the chain that match target via
// errors.Is.
func CatchIs(target error, handler func(ctx context.Context, tc *turn.Context, err error) error) Middleware {
	return MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next Next) error {
		err := next(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, target) {
			return handler(ctx, tc, err)
		}
		return err
	})
}
