// ABOUTME: Per-turn session object carrying the activity, side-table, and interceptor chains
// ABOUTME: Routes outbound send, update, and delete through registered handlers to the Sender

package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/2389/coven-botkit/internal/activity"
)

// Usage errors
var (
	ErrNilSender       = errors.New("sender cannot be nil")
	ErrNilActivity     = errors.New("activity cannot be nil")
	ErrNoActivities    = errors.New("at least one activity is required")
	ErrEmptyActivityID = errors.New("activity id cannot be empty")
	ErrNilReference    = errors.New("conversation reference cannot be nil")
	ErrRespondedReset  = errors.New("responded cannot be reset to false")
)

// Sender performs real channel I/O for a turn. The adapter implements it.
type Sender interface {
	SendActivities(ctx context.Context, tc *Context, activities []*activity.Activity) ([]activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, tc *Context, a *activity.Activity) (activity.ResourceResponse, error)
	DeleteActivity(ctx context.Context, tc *Context, ref activity.ConversationReference) error
}

// Context is the per-turn session object.
type Context struct {
	activity *activity.Activity
	sender   Sender
	state    *State

	responded atomic.Bool

	mu             sync.RWMutex
	sendHandlers   []SendActivitiesHandler
	updateHandlers []UpdateActivityHandler
	deleteHandlers []DeleteActivityHandler
	buffered       []*activity.Activity
}

// New creates a turn for the given inbound activity.
func New(sender Sender, a *activity.Activity) (*Context, error) {
	if sender == nil {
		return nil, ErrNilSender
	}
	if a == nil {
		return nil, ErrNilActivity
	}
	return &Context{
		activity: a,
		sender:   sender,
		state:    newState(),
	}, nil
}

// Activity returns the inbound activity.
func (c *Context) Activity() *activity.Activity { return c.activity }

// Sender returns the adapter that performs I/O for this turn.
func (c *Context) Sender() Sender { return c.sender }

// State returns the turn's side-table.
func (c *Context) State() *State { return c.state }

// Responded reports whether a non-trace activity has been sent on this turn.
func (c *Context) Responded() bool { return c.responded.Load() }

// SetResponded marks the turn as responded. Passing false is a usage error.
func (c *Context) SetResponded(v bool) error {
	if !v {
		return ErrRespondedReset
	}
	c.responded.Store(true)
	return nil
}

// OnSendActivities appends a send handler.
func (c *Context) OnSendActivities(h SendActivitiesHandler) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendHandlers = append(c.sendHandlers, h)
	return c
}

// OnUpdateActivity appends an update handler.
func (c *Context) OnUpdateActivity(h UpdateActivityHandler) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateHandlers = append(c.updateHandlers, h)
	return c
}

// OnDeleteActivity appends a delete handler.
func (c *Context) OnDeleteActivity(h DeleteActivityHandler) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteHandlers = append(c.deleteHandlers, h)
	return c
}

// SendText sends a message with the given text.
func (c *Context) SendText(ctx context.Context, text string) (activity.ResourceResponse, error) {
	return c.SendActivity(ctx, activity.NewMessage(text))
}

// SendActivity sends one activity. If a handler suppressed the send, an empty
// response is returned.
func (c *Context) SendActivity(ctx context.Context, a *activity.Activity) (activity.ResourceResponse, error) {
	if a == nil {
		return activity.ResourceResponse{}, ErrNilActivity
	}
	responses, err := c.SendActivities(ctx, []*activity.Activity{a})
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	if len(responses) == 0 {
		return activity.ResourceResponse{}, nil
	}
	return responses[0], nil
}

// SendActivities addresses the activities to this turn's conversation and runs
// them through the send handlers and then the Sender as one unit.
func (c *Context) SendActivities(ctx context.Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	if len(activities) == 0 {
		return nil, ErrNoActivities
	}
	ref := c.activity.ConversationReference()
	for _, a := range activities {
		if a == nil {
			return nil, ErrNilActivity
		}
		a.ApplyConversationReference(ref, false)
	}

	c.mu.RLock()
	handlers := c.sendHandlers
	c.mu.RUnlock()

	return c.sendThrough(ctx, activities, handlers)
}

func (c *Context) sendThrough(ctx context.Context, activities []*activity.Activity, handlers []SendActivitiesHandler) ([]activity.ResourceResponse, error) {
	if len(handlers) == 0 {
		return c.sendToSender(ctx, activities)
	}
	return handlers[0](ctx, c, activities, func(ctx context.Context) ([]activity.ResourceResponse, error) {
		return c.sendThrough(ctx, activities, handlers[1:])
	})
}

func (c *Context) sendToSender(ctx context.Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	if c.activity.DeliveryMode == activity.DeliveryExpectReplies {
		responses := make([]activity.ResourceResponse, len(activities))
		c.mu.Lock()
		c.buffered = append(c.buffered, activities...)
		c.mu.Unlock()
		for _, a := range activities {
			if a.IsType(activity.TypeInvokeResponse) {
				InvokeResponseKey.Set(c.state, a)
			}
		}
		c.markResponded(activities)
		return responses, nil
	}

	responses, err := c.sender.SendActivities(ctx, c, activities)
	if err != nil {
		return nil, err
	}
	if len(responses) == len(activities) {
		for i, a := range activities {
			a.ID = responses[i].ID
		}
	}
	c.markResponded(activities)
	return responses, nil
}

func (c *Context) markResponded(activities []*activity.Activity) {
	for _, a := range activities {
		if !a.IsType(activity.TypeTrace) {
			c.responded.Store(true)
			return
		}
	}
}

// BufferedReplies returns the activities captured for an expectReplies turn.
func (c *Context) BufferedReplies() []*activity.Activity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*activity.Activity, len(c.buffered))
	copy(out, c.buffered)
	return out
}

// UpdateActivity replaces a previously sent activity. The activity's id is
// rewritten from the channel's response.
func (c *Context) UpdateActivity(ctx context.Context, a *activity.Activity) (activity.ResourceResponse, error) {
	if a == nil {
		return activity.ResourceResponse{}, ErrNilActivity
	}
	a.ApplyConversationReference(c.activity.ConversationReference(), false)

	c.mu.RLock()
	handlers := c.updateHandlers
	c.mu.RUnlock()

	resp, err := c.updateThrough(ctx, a, handlers)
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	if resp.ID != "" {
		a.ID = resp.ID
	}
	return resp, nil
}

func (c *Context) updateThrough(ctx context.Context, a *activity.Activity, handlers []UpdateActivityHandler) (activity.ResourceResponse, error) {
	if len(handlers) == 0 {
		return c.sender.UpdateActivity(ctx, c, a)
	}
	return handlers[0](ctx, c, a, func(ctx context.Context) (activity.ResourceResponse, error) {
		return c.updateThrough(ctx, a, handlers[1:])
	})
}

// DeleteActivity deletes a previously sent activity in this turn's conversation.
func (c *Context) DeleteActivity(ctx context.Context, activityID string) error {
	if strings.TrimSpace(activityID) == "" {
		return ErrEmptyActivityID
	}
	ref := c.activity.ConversationReference()
	ref.ActivityID = activityID
	return c.DeleteActivityRef(ctx, &ref)
}

// DeleteActivityRef deletes the activity the reference points at.
func (c *Context) DeleteActivityRef(ctx context.Context, ref *activity.ConversationReference) error {
	if ref == nil {
		return ErrNilReference
	}

	c.mu.RLock()
	handlers := c.deleteHandlers
	c.mu.RUnlock()

	return c.deleteThrough(ctx, ref, handlers)
}

func (c *Context) deleteThrough(ctx context.Context, ref *activity.ConversationReference, handlers []DeleteActivityHandler) error {
	if len(handlers) == 0 {
		return c.sender.DeleteActivity(ctx, c, *ref)
	}
	return handlers[0](ctx, c, ref, func(ctx context.Context) error {
		return c.deleteThrough(ctx, ref, handlers[1:])
	})
}

// Close releases closeable side-table entries. The turn must not be used after.
func (c *Context) Close() error {
	if err := c.state.close(); err != nil {
		return fmt.Errorf("closing turn state: %w", err)
	}
	return nil
}
