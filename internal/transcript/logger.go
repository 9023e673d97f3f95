// ABOUTME: Middleware recording a turn's inbound, outbound, update, and delete activities
// ABOUTME: Buffers copies during the turn and writes them to a Store when it ends

package transcript

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
)

// ErrNilStore is returned by NewLogger without a store.
var ErrNilStore = errors.New("transcript store cannot be nil")

// Logger is middleware that writes every activity of a turn to a Store.
type Logger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger creates the middleware.
func NewLogger(store Store, logger *slog.Logger) (*Logger, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		store:  store,
		logger: logger.With("component", "transcript"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// turnLog is the queue of activities captured during one turn.
type turnLog struct {
	mu      sync.Mutex
	pending []*activity.Activity
}

func (t *turnLog) add(a *activity.Activity) {
	t.mu.Lock()
	t.pending = append(t.pending, a)
	t.mu.Unlock()
}

func (t *turnLog) drain() []*activity.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.pending
	t.pending = nil
	return out
}

// OnTurn records the inbound activity, hooks the outbound chains, and flushes
// after the rest of the pipeline returns.
func (l *Logger) OnTurn(ctx context.Context, tc *turn.Context, next pipeline.Next) error {
	log := &turnLog{}

	inbound := tc.Activity().Clone()
	if inbound.From == nil {
		inbound.From = &activity.ChannelAccount{}
	}
	if inbound.From.Role == "" {
		inbound.From.Role = activity.RoleUser
	}
	log.add(l.stamp(inbound))

	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, activities []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		responses, err := next(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range activities {
			out := a.Clone()
			if out.From != nil && out.From.Role == "" {
				out.From.Role = activity.RoleBot
			}
			log.add(l.stamp(out))
		}
		return responses, nil
	})

	tc.OnUpdateActivity(func(ctx context.Context, tc *turn.Context, a *activity.Activity, next turn.UpdateNext) (activity.ResourceResponse, error) {
		resp, err := next(ctx)
		if err != nil {
			return resp, err
		}
		updated := a.Clone()
		updated.Type = activity.TypeMessageUpdate
		log.add(l.stamp(updated))
		return resp, nil
	})

	tc.OnDeleteActivity(func(ctx context.Context, tc *turn.Context, ref *activity.ConversationReference, next turn.DeleteNext) error {
		if err := next(ctx); err != nil {
			return err
		}
		tombstone := &activity.Activity{Type: activity.TypeMessageDelete, ID: ref.ActivityID}
		tombstone.ApplyConversationReference(*ref, false)
		tombstone.ReplyToID = ""
		log.add(l.stamp(tombstone))
		return nil
	})

	err := next(ctx)
	l.flush(ctx, log.drain())
	return err
}

func (l *Logger) stamp(a *activity.Activity) *activity.Activity {
	if a.Timestamp == nil {
		now := l.now()
		a.Timestamp = &now
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return a
}

func (l *Logger) flush(ctx context.Context, activities []*activity.Activity) {
	for _, a := range activities {
		if err := l.store.LogActivity(ctx, a); err != nil {
			l.logger.Error("failed to log activity",
				"error", err,
				"activity_type", a.Type,
				"activity_id", a.ID,
			)
		}
	}
}
