// ABOUTME: Interceptor handler and continuation types for outbound operations
// ABOUTME: Each handler may mutate the payload, call next, or suppress the operation

package turn

import (
	"context"

	"github.com/2389/coven-botkit/internal/activity"
)

// SendNext runs the remaining send handlers and then the Sender.
type SendNext func(ctx context.Context) ([]activity.ResourceResponse, error)

// SendActivitiesHandler intercepts outbound activities.
type SendActivitiesHandler func(ctx context.Context, tc *Context, activities []*activity.Activity, next SendNext) ([]activity.ResourceResponse, error)

// UpdateNext runs the remaining update handlers and then the Sender.
type UpdateNext func(ctx context.Context) (activity.ResourceResponse, error)

// UpdateActivityHandler intercepts activity updates.
type UpdateActivityHandler func(ctx context.Context, tc *Context, a *activity.Activity, next UpdateNext) (activity.ResourceResponse, error)

// DeleteNext runs the remaining delete handlers and then the Sender.
type DeleteNext func(ctx context.Context) error

// DeleteActivityHandler intercepts activity deletes.
type DeleteActivityHandler func(ctx context.Context, tc *Context, ref *activity.ConversationReference, next DeleteNext) error
