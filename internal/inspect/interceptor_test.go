// ABOUTME: Tests for the inspection middleware
// ABOUTME: Uses a recording inspector to check traces, decisions, and failure handling

package inspect_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/inspect"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/state"
	"github.com/2389/coven-botkit/internal/storage"
	"github.com/2389/coven-botkit/internal/turn"
	"github.com/2389/coven-botkit/internal/turn/turntest"
)

type recordingInspector struct {
	decision   inspect.Intercept
	inboundErr error
	outErr     error
	inbound    []*activity.Activity
	outbound   []*activity.Activity
	stateCalls int
}

func (r *recordingInspector) Inbound(_ context.Context, _ *turn.Context, trace *activity.Activity) (inspect.Intercept, error) {
	r.inbound = append(r.inbound, trace)
	return r.decision, r.inboundErr
}

func (r *recordingInspector) Outbound(_ context.Context, _ *turn.Context, traces []*activity.Activity) error {
	r.outbound = append(r.outbound, traces...)
	return r.outErr
}

func (r *recordingInspector) TraceState(context.Context, *turn.Context) error {
	r.stateCalls++
	return nil
}

func names(traces []*activity.Activity) []string {
	out := make([]string, len(traces))
	for i, t := range traces {
		out[i] = t.Name
	}
	return out
}

func TestInterceptor_FullInterception(t *testing.T) {
	insp := &recordingInspector{decision: inspect.Intercept{ForwardToApplication: true, Intercept: true}}
	mw, err := inspect.NewInterceptor(insp, nil)
	require.NoError(t, err)
	tc, rec := turntest.NewContext(turntest.Message("hi"))

	err = pipeline.NewChain(mw).Run(context.Background(), tc, func(ctx context.Context, tc *turn.Context) error {
		sent, err := tc.SendText(ctx, "reply")
		if err != nil {
			return err
		}
		update := activity.NewMessage("edit")
		update.ID = sent.ID
		if _, err := tc.UpdateActivity(ctx, update); err != nil {
			return err
		}
		return tc.DeleteActivity(ctx, sent.ID)
	})
	require.NoError(t, err)

	require.Len(t, insp.inbound, 1)
	assert.Equal(t, activity.TypeTrace, insp.inbound[0].Type)
	assert.Equal(t, "ReceivedActivity", insp.inbound[0].Name)
	assert.Equal(t, []string{"SentActivity", "MessageUpdate", "MessageDelete"}, names(insp.outbound))
	assert.Equal(t, 1, insp.stateCalls)
	assert.Equal(t, []string{"reply"}, rec.Texts(), "traces are not sent to the channel")
}

func TestInterceptor_DoNotForward(t *testing.T) {
	insp := &recordingInspector{decision: inspect.Intercept{Intercept: true}}
	mw, err := inspect.NewInterceptor(insp, nil)
	require.NoError(t, err)
	tc, _ := turntest.NewContext(turntest.Message("hi"))

	called := false
	err = pipeline.NewChain(mw).Run(context.Background(), tc, func(ctx context.Context, tc *turn.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, 1, insp.stateCalls)
}

func TestInterceptor_ErrorIsReportedAndReturned(t *testing.T) {
	insp := &recordingInspector{decision: inspect.Intercept{ForwardToApplication: true, Intercept: true}}
	mw, err := inspect.NewInterceptor(insp, nil)
	require.NoError(t, err)
	tc, _ := turntest.NewContext(turntest.Message("hi"))
	boom := errors.New("bot crashed")

	err = pipeline.NewChain(mw).Run(context.Background(), tc, func(ctx context.Context, tc *turn.Context) error {
		return boom
	})

	assert.Same(t, boom, err)
	require.Len(t, insp.outbound, 1)
	assert.Equal(t, "TurnError", insp.outbound[0].Name)
	assert.Equal(t, "bot crashed", insp.outbound[0].Value)
	assert.Equal(t, 0, insp.stateCalls)
}

func TestInterceptor_InspectorFailuresIgnored(t *testing.T) {
	insp := &recordingInspector{
		inboundErr: errors.New("inspector offline"),
		outErr:     errors.New("inspector offline"),
	}
	mw, err := inspect.NewInterceptor(insp, nil)
	require.NoError(t, err)
	tc, rec := turntest.NewContext(turntest.Message("hi"))

	err = pipeline.NewChain(mw).Run(context.Background(), tc, func(ctx context.Context, tc *turn.Context) error {
		_, err := tc.SendText(ctx, "still works")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"still works"}, rec.Texts())
	assert.Empty(t, insp.outbound, "a failed inbound call disables interception")
}

func TestNewInterceptor_NilInspector(t *testing.T) {
	_, err := inspect.NewInterceptor(nil, nil)
	assert.ErrorIs(t, err, inspect.ErrNilInspector)
}

func TestLogInspector(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	conv, err := state.NewConversationState(storage.NewMemoryStorage())
	require.NoError(t, err)
	mw, err := inspect.NewInterceptor(inspect.NewLogInspector(logger, conv), logger)
	require.NoError(t, err)
	tc, _ := turntest.NewContext(turntest.Message("hello there"))

	err = pipeline.NewChain(mw).Run(context.Background(), tc, func(ctx context.Context, tc *turn.Context) error {
		if err := conv.Load(ctx, tc, false); err != nil {
			return err
		}
		if err := conv.SetPropertyValue(tc, "greeted", true); err != nil {
			return err
		}
		_, err := tc.SendText(ctx, "general kenobi")
		return err
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ReceivedActivity")
	assert.Contains(t, out, "hello there")
	assert.Contains(t, out, "general kenobi")
	assert.Contains(t, out, "greeted")
}
