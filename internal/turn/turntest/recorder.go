// ABOUTME: Recording Sender for tests that need a turn without a real channel
// ABOUTME: Assigns sequential ids to sent activities and records updates and deletes

package turntest

import (
	"context"
	"fmt"
	"sync"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/turn"
)

// Recorder implements turn.Sender in memory.
type Recorder struct {
	mu      sync.Mutex
	sent    []*activity.Activity
	updated []*activity.Activity
	deleted []activity.ConversationReference
	nextID  int

	// SendErr, when set, is returned by SendActivities.
	SendErr error
}

// SendActivities records the activities and returns ids "sent-1", "sent-2", ...
func (r *Recorder) SendActivities(_ context.Context, _ *turn.Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SendErr != nil {
		return nil, r.SendErr
	}
	responses := make([]activity.ResourceResponse, len(activities))
	for i, a := range activities {
		r.nextID++
		responses[i] = activity.ResourceResponse{ID: fmt.Sprintf("sent-%d", r.nextID)}
		r.sent = append(r.sent, a.Clone())
	}
	return responses, nil
}

// UpdateActivity records the update and echoes the activity id.
func (r *Recorder) UpdateActivity(_ context.Context, _ *turn.Context, a *activity.Activity) (activity.ResourceResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, a.Clone())
	return activity.ResourceResponse{ID: a.ID}, nil
}

// DeleteActivity records the reference.
func (r *Recorder) DeleteActivity(_ context.Context, _ *turn.Context, ref activity.ConversationReference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ref)
	return nil
}

// Sent returns copies of every sent activity in order.
func (r *Recorder) Sent() []*activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*activity.Activity(nil), r.sent...)
}

// Texts returns the Text of every sent message activity in order.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.sent {
		if a.IsType(activity.TypeMessage) {
			out = append(out, a.Text)
		}
	}
	return out
}

// Updated returns copies of every updated activity in order.
func (r *Recorder) Updated() []*activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*activity.Activity(nil), r.updated...)
}

// Deleted returns every deleted reference in order.
func (r *Recorder) Deleted() []activity.ConversationReference {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]activity.ConversationReference(nil), r.deleted...)
}

// Message builds an inbound message activity on the "test" channel.
func Message(text string) *activity.Activity {
	return &activity.Activity{
		Type:         activity.TypeMessage,
		ID:           "incoming-1",
		ChannelID:    "test",
		ServiceURL:   "https://test.example",
		From:         &activity.ChannelAccount{ID: "user-1", Name: "User", Role: activity.RoleUser},
		Recipient:    &activity.ChannelAccount{ID: "bot-1", Name: "Bot", Role: activity.RoleBot},
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
		Text:         text,
	}
}

// NewContext creates a turn over a fresh Recorder.
func NewContext(a *activity.Activity) (*turn.Context, *Recorder) {
	rec := &Recorder{}
	tc, err := turn.New(rec, a)
	if err != nil {
		panic(err)
	}
	return tc, rec
}
