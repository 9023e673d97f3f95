// ABOUTME: Tests for turn processing, outbound rules, and proactive continuation
// ABOUTME: Uses an in-memory connector that records every channel call

package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/auth"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
	"github.com/2389/coven-botkit/internal/turn/turntest"
)

type fakeConnector struct {
	mu      sync.Mutex
	sent    []*activity.Activity
	replies []*activity.Activity
	updated []*activity.Activity
	deleted []activity.ConversationReference
	scopes  []string
	err     error
	n       int
}

func (f *fakeConnector) record(scope string) string {
	f.n++
	f.scopes = append(f.scopes, scope)
	return fmt.Sprintf("ch-%d", f.n)
}

func (f *fakeConnector) SendToConversation(_ context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return activity.ResourceResponse{}, f.err
	}
	f.sent = append(f.sent, a.Clone())
	return activity.ResourceResponse{ID: f.record(scope)}, nil
}

func (f *fakeConnector) ReplyToActivity(_ context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return activity.ResourceResponse{}, f.err
	}
	f.replies = append(f.replies, a.Clone())
	return activity.ResourceResponse{ID: f.record(scope)}, nil
}

func (f *fakeConnector) UpdateActivity(_ context.Context, scope string, a *activity.Activity) (activity.ResourceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, a.Clone())
	f.record(scope)
	return activity.ResourceResponse{ID: a.ID}, nil
}

func (f *fakeConnector) DeleteActivity(_ context.Context, scope string, ref activity.ConversationReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	f.record(scope)
	return nil
}

func newTestAdapter(t *testing.T, opts ...Option) (*Adapter, *fakeConnector) {
	t.Helper()
	conn := &fakeConnector{}
	a, err := New(conn, opts...)
	require.NoError(t, err)
	return a, conn
}

func skillIdentity(appID, audience string) *auth.Identity {
	return &auth.Identity{
		Authenticated: true,
		Claims: map[string]any{
			auth.ClaimVersion:  "1.0",
			auth.ClaimAppID:    appID,
			auth.ClaimAudience: audience,
		},
	}
}

func TestNewRequiresConnector(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilConnector)
}

func TestProcessActivityRepliesThroughConnector(t *testing.T) {
	a, conn := newTestAdapter(t)

	resp, err := a.ProcessActivity(context.Background(), nil, turntest.Message("hi"), func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendText(ctx, "echo: "+tc.Activity().Text)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, resp)

	require.Len(t, conn.replies, 1)
	reply := conn.replies[0]
	assert.Equal(t, "echo: hi", reply.Text)
	assert.Equal(t, "incoming-1", reply.ReplyToID)
	assert.Equal(t, "bot-1", reply.From.ID)
	assert.Equal(t, "user-1", reply.Recipient.ID)
	assert.Equal(t, []string{auth.ChannelServiceAudience}, conn.scopes)
}

func TestProcessActivityRunsMiddlewareInOrder(t *testing.T) {
	var order []string
	mw := func(name string) pipeline.Middleware {
		return pipeline.MiddlewareFunc(func(ctx context.Context, tc *turn.Context, next pipeline.Next) error {
			order = append(order, name+">")
			err := next(ctx)
			order = append(order, "<"+name)
			return err
		})
	}
	a, _ := newTestAdapter(t, WithMiddleware(mw("a")))
	a.Use(mw("b"))

	_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), func(context.Context, *turn.Context) error {
		order = append(order, "bot")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a>", "b>", "bot", "<b", "<a"}, order)
}

func TestProcessActivityStoresIdentityAndScope(t *testing.T) {
	a, _ := newTestAdapter(t)
	id := skillIdentity("parent-bot", "this-bot")

	var gotID *auth.Identity
	var gotScope string
	var gotCaller string
	_, err := a.ProcessActivity(context.Background(), id, turntest.Message("x"), func(_ context.Context, tc *turn.Context) error {
		gotID, _ = turn.IdentityKey.Get(tc.State())
		gotScope, _ = turn.OAuthScopeKey.Get(tc.State())
		gotCaller = tc.Activity().CallerID
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, id, gotID)
	assert.Equal(t, "parent-bot/.default", gotScope)
	assert.Equal(t, activity.CallerIDBotToBotPrefix+"parent-bot", gotCaller)
}

func TestProcessActivityCallerIDForChannel(t *testing.T) {
	a, _ := newTestAdapter(t)
	id := &auth.Identity{Authenticated: true, Claims: map[string]any{auth.ClaimAudience: auth.ChannelServiceAudience}}

	act := turntest.Message("x")
	act.CallerID = "spoofed"
	_, err := a.ProcessActivity(context.Background(), id, act, func(context.Context, *turn.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, CallerIDPublicAzure, act.CallerID)

	act = turntest.Message("x")
	act.CallerID = "spoofed"
	_, err = a.ProcessActivity(context.Background(), nil, act, func(context.Context, *turn.Context) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, act.CallerID)
}

func TestProcessActivityExpectReplies(t *testing.T) {
	a, conn := newTestAdapter(t)
	act := turntest.Message("x")
	act.DeliveryMode = activity.DeliveryExpectReplies

	resp, err := a.ProcessActivity(context.Background(), nil, act, func(ctx context.Context, tc *turn.Context) error {
		if _, err := tc.SendText(ctx, "one"); err != nil {
			return err
		}
		_, err := tc.SendText(ctx, "two")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status)

	body, ok := resp.Body.(activity.ExpectedReplies)
	require.True(t, ok)
	require.Len(t, body.Activities, 2)
	assert.Equal(t, "one", body.Activities[0].Text)
	assert.Equal(t, "two", body.Activities[1].Text)
	assert.Empty(t, conn.replies)
}

func TestProcessActivityInvoke(t *testing.T) {
	a, conn := newTestAdapter(t)
	invoke := func() *activity.Activity {
		act := turntest.Message("")
		act.Type = activity.TypeInvoke
		act.Name = "test/op"
		return act
	}

	resp, err := a.ProcessActivity(context.Background(), nil, invoke(), func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendActivity(ctx, &activity.Activity{
			Type:  activity.TypeInvokeResponse,
			Value: &activity.InvokeResponse{Status: 200, Body: "done"},
		})
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "done", resp.Body)
	assert.Empty(t, conn.replies, "invoke responses never reach the channel")

	resp, err = a.ProcessActivity(context.Background(), nil, invoke(), func(context.Context, *turn.Context) error { return nil })
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 501, resp.Status)
}

func TestProcessActivityNil(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, err := a.ProcessActivity(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilActivity)
}

func TestRunPipelineErrorHandling(t *testing.T) {
	boom := errors.New("boom")
	fail := func(context.Context, *turn.Context) error { return boom }

	t.Run("without handler the error is returned as-is", func(t *testing.T) {
		a, _ := newTestAdapter(t)
		_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), fail)
		assert.Same(t, boom, err)
	})

	t.Run("handler result replaces the error", func(t *testing.T) {
		var seen error
		a, _ := newTestAdapter(t, WithOnTurnError(func(_ context.Context, _ *turn.Context, err error) error {
			seen = err
			return nil
		}))
		_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), fail)
		assert.NoError(t, err)
		assert.Same(t, boom, seen)
	})

	t.Run("handler can rethrow", func(t *testing.T) {
		wrapped := errors.New("wrapped")
		a, _ := newTestAdapter(t)
		a.SetOnTurnError(func(context.Context, *turn.Context, error) error { return wrapped })
		require.NotNil(t, a.OnTurnError())
		_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), fail)
		assert.Same(t, wrapped, err)
	})
}

func TestDefaultOnTurnError(t *testing.T) {
	a, conn := newTestAdapter(t)
	a.SetOnTurnError(DefaultOnTurnError(nil))

	act := turntest.Message("x")
	act.ChannelID = EmulatorChannel
	_, err := a.ProcessActivity(context.Background(), nil, act, func(context.Context, *turn.Context) error {
		return errors.New("kaboom")
	})
	require.NoError(t, err)

	require.Len(t, conn.replies, 2)
	assert.Equal(t, turnErrorMessage, conn.replies[0].Text)
	assert.Equal(t, activity.TypeTrace, conn.replies[1].Type)
	assert.Equal(t, "kaboom", conn.replies[1].Value)
}

func TestSendActivitiesDropsTraceOutsideEmulator(t *testing.T) {
	a, conn := newTestAdapter(t)

	_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendActivity(ctx, activity.NewTrace("debug", 1, "", ""))
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, conn.replies)
	assert.Empty(t, conn.sent)
}

func TestSendActivitiesDelay(t *testing.T) {
	a, conn := newTestAdapter(t)
	var slept []time.Duration
	a.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendActivities(ctx, []*activity.Activity{
			activity.NewMessage("before"),
			{Type: activity.TypeDelay, Value: float64(250)},
			{Type: activity.TypeDelay},
			activity.NewMessage("after"),
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, time.Second}, slept)
	require.Len(t, conn.replies, 2)
	assert.Equal(t, "before", conn.replies[0].Text)
	assert.Equal(t, "after", conn.replies[1].Text)
}

func TestSendActivitiesDelayHonorsCancel(t *testing.T) {
	a, _ := newTestAdapter(t)
	tc, err := turn.New(a, turntest.Message("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.SendActivities(ctx, tc, []*activity.Activity{{Type: activity.TypeDelay, Value: 60000}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendActivitiesWithoutReplyGoesToConversation(t *testing.T) {
	a, conn := newTestAdapter(t)
	tc, err := turn.New(a, turntest.Message("x"))
	require.NoError(t, err)

	msg := activity.NewMessage("proactive")
	msg.Conversation = &activity.ConversationAccount{ID: "conv-1"}
	responses, err := a.SendActivities(context.Background(), tc, []*activity.Activity{msg})
	require.NoError(t, err)
	require.Len(t, conn.sent, 1)
	assert.Equal(t, "ch-1", responses[0].ID)
}

func TestSendActivitiesConnectorError(t *testing.T) {
	a, conn := newTestAdapter(t)
	conn.err = errors.New("channel down")

	_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendText(ctx, "hello")
		return err
	})
	assert.ErrorIs(t, err, conn.err)
}

func TestUpdateAndDeleteUseConnector(t *testing.T) {
	a, conn := newTestAdapter(t)

	_, err := a.ProcessActivity(context.Background(), nil, turntest.Message("x"), func(ctx context.Context, tc *turn.Context) error {
		msg := activity.NewMessage("edited")
		msg.ID = "ch-9"
		if _, err := tc.UpdateActivity(ctx, msg); err != nil {
			return err
		}
		return tc.DeleteActivity(ctx, "ch-9")
	})
	require.NoError(t, err)
	require.Len(t, conn.updated, 1)
	assert.Equal(t, "edited", conn.updated[0].Text)
	require.Len(t, conn.deleted, 1)
	assert.Equal(t, "ch-9", conn.deleted[0].ActivityID)
	assert.Equal(t, "conv-1", conn.deleted[0].Conversation.ID)
}

func TestContinueConversation(t *testing.T) {
	a, conn := newTestAdapter(t)
	ref := turntest.Message("x").ConversationReference()
	ref.ActivityID = ""

	var got *activity.Activity
	err := a.ContinueConversation(context.Background(), auth.Anonymous(), ref, "custom-scope", func(ctx context.Context, tc *turn.Context) error {
		got = tc.Activity()
		_, err := tc.SendText(ctx, "ping")
		return err
	})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, activity.TypeEvent, got.Type)
	assert.Equal(t, activity.ContinueConversationEvent, got.Name)
	assert.Equal(t, "conv-1", got.Conversation.ID)
	assert.Equal(t, "user-1", got.From.ID)

	require.Len(t, conn.sent, 1)
	assert.Equal(t, "ping", conn.sent[0].Text)
	assert.Equal(t, []string{"custom-scope"}, conn.scopes)
}

func TestContinueConversationPreconditions(t *testing.T) {
	a, _ := newTestAdapter(t)
	ref := turntest.Message("x").ConversationReference()

	err := a.ContinueConversation(context.Background(), nil, ref, "", func(context.Context, *turn.Context) error { return nil })
	assert.ErrorIs(t, err, ErrNilIdentity)

	err = a.ContinueConversation(context.Background(), auth.Anonymous(), ref, "", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestDelayOf(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, delayOf(&activity.Activity{Value: 5}))
	assert.Equal(t, 7*time.Millisecond, delayOf(&activity.Activity{Value: int64(7)}))
	assert.Equal(t, 2*time.Second, delayOf(&activity.Activity{Value: 2 * time.Second}))
	assert.Equal(t, DefaultDelay, delayOf(&activity.Activity{Value: "soon"}))
}
