// ABOUTME: Middleware exposing a turn's traffic and state to an Inspector
// ABOUTME: Inspector failures are logged and never affect the turn

package inspect

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
)

// Trace value types.
const (
	ValueTypeActivity  = "https://www.botframework.com/schemas/activity"
	ValueTypeReference = "https://www.botframework.com/schemas/conversationReference"
	ValueTypeError     = "https://www.botframework.com/schemas/error"
	ValueTypeBotState  = "https://www.botframework.com/schemas/botState"
)

// ErrNilInspector is returned by NewInterceptor without an inspector.
var ErrNilInspector = errors.New("inspector cannot be nil")

// Intercept is an Inspector's decision about an inbound activity.
type Intercept struct {
	// ForwardToApplication runs the rest of the pipeline.
	ForwardToApplication bool
	// Intercept hooks outbound traffic and reports state at the end.
	Intercept bool
}

// Inspector observes turns.
type Inspector interface {
	Inbound(ctx context.Context, tc *turn.Context, trace *activity.Activity) (Intercept, error)
	Outbound(ctx context.Context, tc *turn.Context, traces []*activity.Activity) error
	TraceState(ctx context.Context, tc *turn.Context) error
}

// Interceptor is middleware that reports to an Inspector.
type Interceptor struct {
	inspector Inspector
	logger    *slog.Logger
}

// NewInterceptor creates the middleware.
func NewInterceptor(inspector Inspector, logger *slog.Logger) (*Interceptor, error) {
	if inspector == nil {
		return nil, ErrNilInspector
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		inspector: inspector,
		logger:    logger.With("component", "inspect"),
	}, nil
}

var _ pipeline.Middleware = (*Interceptor)(nil)

// OnTurn reports the inbound activity and, depending on the inspector's
// decision, hooks outbound traffic and runs the rest of the pipeline.
func (i *Interceptor) OnTurn(ctx context.Context, tc *turn.Context, next pipeline.Next) error {
	decision, err := i.inspector.Inbound(ctx, tc, TraceActivity(tc.Activity(), "ReceivedActivity", "Received Activity"))
	if err != nil {
		i.logger.Warn("inbound inspection failed", "error", err)
		decision = Intercept{ForwardToApplication: true}
	}

	if decision.Intercept {
		tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, activities []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
			traces := make([]*activity.Activity, len(activities))
			for n, a := range activities {
				traces[n] = TraceActivity(a, "SentActivity", "Sent Activity")
			}
			i.outbound(ctx, tc, traces)
			return next(ctx)
		})
		tc.OnUpdateActivity(func(ctx context.Context, tc *turn.Context, a *activity.Activity, next turn.UpdateNext) (activity.ResourceResponse, error) {
			i.outbound(ctx, tc, []*activity.Activity{TraceActivity(a, "MessageUpdate", "Message Update")})
			return next(ctx)
		})
		tc.OnDeleteActivity(func(ctx context.Context, tc *turn.Context, ref *activity.ConversationReference, next turn.DeleteNext) error {
			i.outbound(ctx, tc, []*activity.Activity{TraceReference(*ref)})
			return next(ctx)
		})
	}

	if decision.ForwardToApplication {
		if err := next(ctx); err != nil {
			i.outbound(ctx, tc, []*activity.Activity{TraceError(err)})
			return err
		}
	}

	if decision.Intercept {
		if err := i.inspector.TraceState(ctx, tc); err != nil {
			i.logger.Warn("state inspection failed", "error", err)
		}
	}
	return nil
}

func (i *Interceptor) outbound(ctx context.Context, tc *turn.Context, traces []*activity.Activity) {
	if err := i.inspector.Outbound(ctx, tc, traces); err != nil {
		i.logger.Warn("outbound inspection failed", "error", err)
	}
}

// TraceActivity wraps a copy of a in a trace activity.
func TraceActivity(a *activity.Activity, name, label string) *activity.Activity {
	return activity.NewTrace(name, a.Clone(), ValueTypeActivity, label)
}

// TraceReference describes a deleted activity.
func TraceReference(ref activity.ConversationReference) *activity.Activity {
	return activity.NewTrace("MessageDelete", ref, ValueTypeReference, "Deleted Message")
}

// TraceError describes a turn error.
func TraceError(err error) *activity.Activity {
	return activity.NewTrace("TurnError", err.Error(), ValueTypeError, "Turn Error")
}
