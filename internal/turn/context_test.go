// ABOUTME: Tests for the turn context and its interceptor chains
// ABOUTME: Covers id rewriting, responded tracking, ordering, suppression, and disposal

package turn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/turn"
	"github.com/2389/coven-botkit/internal/turn/turntest"
)

func TestNew_Validation(t *testing.T) {
	_, err := turn.New(nil, turntest.Message("hi"))
	assert.ErrorIs(t, err, turn.ErrNilSender)

	_, err = turn.New(&turntest.Recorder{}, nil)
	assert.ErrorIs(t, err, turn.ErrNilActivity)
}

func TestSendActivities_RewritesIDs(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))
	a1 := activity.NewMessage("one")
	a2 := activity.NewMessage("two")

	responses, err := tc.SendActivities(context.Background(), []*activity.Activity{a1, a2})
	require.NoError(t, err)

	require.Len(t, responses, 2)
	assert.Equal(t, "sent-1", a1.ID)
	assert.Equal(t, "sent-2", a2.ID)
	assert.Equal(t, []string{"one", "two"}, rec.Texts())
}

func TestSendActivities_AppliesConversationReference(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))

	_, err := tc.SendText(context.Background(), "reply")
	require.NoError(t, err)

	sent := rec.Sent()[0]
	assert.Equal(t, "bot-1", sent.From.ID)
	assert.Equal(t, "user-1", sent.Recipient.ID)
	assert.Equal(t, "conv-1", sent.Conversation.ID)
	assert.Equal(t, "incoming-1", sent.ReplyToID)
	assert.Equal(t, "test", sent.ChannelID)
}

func TestSendActivities_Validation(t *testing.T) {
	tc, _ := turntest.NewContext(turntest.Message("hi"))

	_, err := tc.SendActivities(context.Background(), nil)
	assert.ErrorIs(t, err, turn.ErrNoActivities)

	_, err = tc.SendActivities(context.Background(), []*activity.Activity{nil})
	assert.ErrorIs(t, err, turn.ErrNilActivity)

	_, err = tc.SendActivity(context.Background(), nil)
	assert.ErrorIs(t, err, turn.ErrNilActivity)
}

func TestResponded_TraceDoesNotCount(t *testing.T) {
	tc, _ := turntest.NewContext(turntest.Message("hi"))

	_, err := tc.SendActivity(context.Background(), activity.NewTrace("debug", nil, "", ""))
	require.NoError(t, err)
	assert.False(t, tc.Responded())

	_, err = tc.SendActivities(context.Background(), []*activity.Activity{
		activity.NewTrace("debug", nil, "", ""),
		activity.NewMessage("visible"),
	})
	require.NoError(t, err)
	assert.True(t, tc.Responded())
}

func TestResponded_CannotReset(t *testing.T) {
	tc, _ := turntest.NewContext(turntest.Message("hi"))

	require.NoError(t, tc.SetResponded(true))
	assert.ErrorIs(t, tc.SetResponded(false), turn.ErrRespondedReset)
	assert.True(t, tc.Responded())
}

func TestSendHandlers_RunInOrderAroundSender(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))
	var log []string

	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, acts []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		log = append(log, "first:before")
		resp, err := next(ctx)
		log = append(log, "first:after")
		return resp, err
	}).OnSendActivities(func(ctx context.Context, tc *turn.Context, acts []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		log = append(log, "second:before")
		acts[0].Text = "mutated"
		resp, err := next(ctx)
		log = append(log, "second:after:"+acts[0].ID)
		return resp, err
	})

	_, err := tc.SendText(context.Background(), "original")
	require.NoError(t, err)

	assert.Equal(t, []string{"first:before", "second:before", "second:after:sent-1", "first:after"}, log)
	assert.Equal(t, []string{"mutated"}, rec.Texts())
}

func TestSendHandlers_Suppress(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))
	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, acts []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		return nil, nil
	})

	resp, err := tc.SendText(context.Background(), "never delivered")
	require.NoError(t, err)

	assert.Empty(t, resp.ID)
	assert.Empty(t, rec.Sent())
	assert.False(t, tc.Responded())
}

func TestSendHandlers_ErrorPropagates(t *testing.T) {
	tc, _ := turntest.NewContext(turntest.Message("hi"))
	boom := errors.New("boom")
	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, acts []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		return nil, boom
	})

	_, err := tc.SendText(context.Background(), "x")
	assert.Same(t, boom, err)
}

func TestSenderError_DoesNotMarkResponded(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))
	rec.SendErr = errors.New("channel down")

	_, err := tc.SendText(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, tc.Responded())
}

func TestExpectReplies_BuffersInsteadOfSending(t *testing.T) {
	in := turntest.Message("hi")
	in.DeliveryMode = activity.DeliveryExpectReplies
	tc, rec := turntest.NewContext(in)

	_, err := tc.SendText(context.Background(), "buffered")
	require.NoError(t, err)
	_, err = tc.SendActivity(context.Background(), activity.NewTrace("t", nil, "", ""))
	require.NoError(t, err)

	assert.Empty(t, rec.Sent())
	assert.True(t, tc.Responded())
	replies := tc.BufferedReplies()
	require.Len(t, replies, 2)
	assert.Equal(t, "buffered", replies[0].Text)
}

func TestUpdateActivity(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))
	var seen string
	tc.OnUpdateActivity(func(ctx context.Context, tc *turn.Context, a *activity.Activity, next turn.UpdateNext) (activity.ResourceResponse, error) {
		seen = a.Text
		return next(ctx)
	})

	upd := activity.NewMessage("edited")
	upd.ID = "sent-7"
	resp, err := tc.UpdateActivity(context.Background(), upd)
	require.NoError(t, err)

	assert.Equal(t, "sent-7", resp.ID)
	assert.Equal(t, "edited", seen)
	require.Len(t, rec.Updated(), 1)
	assert.Equal(t, "conv-1", rec.Updated()[0].Conversation.ID)

	_, err = tc.UpdateActivity(context.Background(), nil)
	assert.ErrorIs(t, err, turn.ErrNilActivity)
}

func TestDeleteActivity(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))
	var order []string
	tc.OnDeleteActivity(func(ctx context.Context, tc *turn.Context, ref *activity.ConversationReference, next turn.DeleteNext) error {
		order = append(order, "hook:"+ref.ActivityID)
		return next(ctx)
	})

	require.NoError(t, tc.DeleteActivity(context.Background(), "sent-3"))

	assert.Equal(t, []string{"hook:sent-3"}, order)
	require.Len(t, rec.Deleted(), 1)
	assert.Equal(t, "sent-3", rec.Deleted()[0].ActivityID)
	assert.Equal(t, "conv-1", rec.Deleted()[0].Conversation.ID)

	assert.ErrorIs(t, tc.DeleteActivity(context.Background(), "  "), turn.ErrEmptyActivityID)
	assert.ErrorIs(t, tc.DeleteActivityRef(context.Background(), nil), turn.ErrNilReference)
}

func TestDeleteHandlers_Suppress(t *testing.T) {
	tc, rec := turntest.NewContext(turntest.Message("hi"))
	tc.OnDeleteActivity(func(ctx context.Context, tc *turn.Context, ref *activity.ConversationReference, next turn.DeleteNext) error {
		return nil
	})

	require.NoError(t, tc.DeleteActivity(context.Background(), "sent-1"))
	assert.Empty(t, rec.Deleted())
}
