// ABOUTME: Middleware dropping activities a channel delivers more than once
// ABOUTME: Keys on channel, conversation, and activity id within a TTL window

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/cache"
	"github.com/2389/coven-botkit/internal/turn"
)

// Dedupe short-circuits turns for activities already seen within the TTL.
// A turn that fails forgets its activity so the channel's retry is processed.
type Dedupe struct {
	seen   *cache.Cache[struct{}]
	logger *slog.Logger
}

// NewDedupe creates the middleware. Call Close to stop its cleanup goroutine.
func NewDedupe(ttl time.Duration, maxSize int, logger *slog.Logger) *Dedupe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dedupe{
		seen:   cache.New[struct{}](ttl, maxSize),
		logger: logger.With("component", "dedupe"),
	}
}

// OnTurn checks and marks the inbound activity, then continues if it is new.
func (d *Dedupe) OnTurn(ctx context.Context, tc *turn.Context, next Next) error {
	a := tc.Activity()
	if a.ID == "" {
		return next(ctx)
	}

	key := dedupeKey(a)
	if d.seen.SetIfAbsent(key, struct{}{}) {
		d.logger.Debug("dropping duplicate activity",
			"channel_id", a.ChannelID,
			"activity_id", a.ID,
		)
		return nil
	}

	if err := next(ctx); err != nil {
		d.seen.Delete(key)
		return err
	}
	return nil
}

// Close stops the cache cleanup goroutine.
func (d *Dedupe) Close() {
	d.seen.Close()
}

func dedupeKey(a *activity.Activity) string {
	conv := ""
	if a.Conversation != nil {
		conv = a.Conversation.ID
	}
	return a.ChannelID + "|" + conv + "|" + a.ID
}
