// ABOUTME: Middleware that sends typing indicators while the bot works on a message
// ABOUTME: Starts after a delay, repeats on a period, and stops when the turn responds or ends

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/turn"
)

// Typing defaults.
const (
	DefaultTypingDelay  = 500 * time.Millisecond
	DefaultTypingPeriod = 2 * time.Second
)

// Typing configuration errors
var (
	ErrNegativeDelay = errors.New("typing delay must be greater than or equal to zero")
	ErrInvalidPeriod = errors.New("typing period must be greater than zero")
)

// ShowTyping sends typing activities directly through the adapter while the
// rest of the chain runs. Typing activities bypass send handlers and do not
// mark the turn as responded.
type ShowTyping struct {
	delay  time.Duration
	period time.Duration
	logger *slog.Logger
}

// NewShowTyping creates the middleware.
func NewShowTyping(delay, period time.Duration, logger *slog.Logger) (*ShowTyping, error) {
	if delay < 0 {
		return nil, ErrNegativeDelay
	}
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShowTyping{
		delay:  delay,
		period: period,
		logger: logger.With("component", "typing"),
	}, nil
}

// OnTurn runs the typing loop alongside next for inbound messages from users.
func (s *ShowTyping) OnTurn(ctx context.Context, tc *turn.Context, next Next) error {
	if !tc.Activity().IsType(activity.TypeMessage) || isSkillCall(tc) {
		return next(ctx)
	}

	typingCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(typingCtx, tc)
	}()

	err := next(ctx)
	cancel()
	<-done
	return err
}

func (s *ShowTyping) run(ctx context.Context, tc *turn.Context) {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		if tc.Responded() {
			return
		}
		if err := sendTyping(ctx, tc); err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("sending typing indicator failed", "error", err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sendTyping(ctx context.Context, tc *turn.Context) error {
	typing := activity.NewTyping()
	typing.RelatesTo = tc.Activity().RelatesTo
	typing.ApplyConversationReference(tc.Activity().ConversationReference(), false)
	_, err := tc.Sender().SendActivities(ctx, tc, []*activity.Activity{typing})
	return err
}

func isSkillCall(tc *turn.Context) bool {
	identity, ok := turn.IdentityKey.Get(tc.State())
	return ok && identity.IsSkillClaim()
}
