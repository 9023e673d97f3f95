// ABOUTME: Handles activities a skill sends back to this bot
// ABOUTME: Continues the caller's conversation and routes each activity to the channel or the bot

package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/auth"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
)

// Handler errors
var (
	ErrReferenceNotFound = errors.New("skill conversation reference not found")
	ErrNilContinuer      = errors.New("continuer cannot be nil")
	ErrNilBot            = errors.New("bot handler cannot be nil")
	ErrNilRegistry       = errors.New("registry cannot be nil")
)

// applicationPrefix marks command names meant for the channel.
const applicationPrefix = "application/"

// ReferenceKey holds the skill conversation reference for a skill turn.
var ReferenceKey = turn.NewKey[*ConversationReference]("botkit.skillConversationReference")

// Continuer starts proactive turns. *adapter.Adapter implements it.
type Continuer interface {
	ContinueConversation(ctx context.Context, identity *auth.Identity, ref activity.ConversationReference, scope string, handler pipeline.Handler) error
}

// Handler processes the skill-facing conversation operations.
type Handler struct {
	adapter  Continuer
	bot      pipeline.Handler
	registry *Registry
	logger   *slog.Logger
}

// NewHandler creates a skill handler.
func NewHandler(adapter Continuer, bot pipeline.Handler, registry *Registry, logger *slog.Logger) (*Handler, error) {
	if adapter == nil {
		return nil, ErrNilContinuer
	}
	if bot == nil {
		return nil, ErrNilBot
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		adapter:  adapter,
		bot:      bot,
		registry: registry,
		logger:   logger.With("component", "skills"),
	}, nil
}

// SendToConversation handles an activity the skill sent to the conversation.
func (h *Handler) SendToConversation(ctx context.Context, identity *auth.Identity, conversationID string, act *activity.Activity) (activity.ResourceResponse, error) {
	return h.process(ctx, identity, conversationID, "", act)
}

// ReplyToActivity handles an activity the skill sent in reply to activityID.
func (h *Handler) ReplyToActivity(ctx context.Context, identity *auth.Identity, conversationID, activityID string, act *activity.Activity) (activity.ResourceResponse, error) {
	return h.process(ctx, identity, conversationID, activityID, act)
}

// UpdateActivity forwards the skill's update to the channel.
func (h *Handler) UpdateActivity(ctx context.Context, identity *auth.Identity, conversationID, activityID string, act *activity.Activity) (activity.ResourceResponse, error) {
	if act == nil {
		return activity.ResourceResponse{}, ErrNilActivity
	}
	ref, err := h.reference(ctx, conversationID)
	if err != nil {
		return activity.ResourceResponse{}, err
	}

	var resp activity.ResourceResponse
	err = h.adapter.ContinueConversation(ctx, identity, ref.Reference, ref.OAuthScope, func(ctx context.Context, tc *turn.Context) error {
		h.prepare(tc, identity, ref, activityID)
		act.ApplyConversationReference(ref.Reference, false)
		if act.ID == "" {
			act.ID = activityID
		}
		r, err := tc.UpdateActivity(ctx, act)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	return orNewResponse(resp), nil
}

// DeleteActivity forwards the skill's delete to the channel.
func (h *Handler) DeleteActivity(ctx context.Context, identity *auth.Identity, conversationID, activityID string) error {
	ref, err := h.reference(ctx, conversationID)
	if err != nil {
		return err
	}
	return h.adapter.ContinueConversation(ctx, identity, ref.Reference, ref.OAuthScope, func(ctx context.Context, tc *turn.Context) error {
		h.prepare(tc, identity, ref, "")
		return tc.DeleteActivity(ctx, activityID)
	})
}

func (h *Handler) process(ctx context.Context, identity *auth.Identity, conversationID, replyToID string, act *activity.Activity) (activity.ResourceResponse, error) {
	if act == nil {
		return activity.ResourceResponse{}, ErrNilActivity
	}
	ref, err := h.reference(ctx, conversationID)
	if err != nil {
		return activity.ResourceResponse{}, err
	}

	var resp activity.ResourceResponse
	err = h.adapter.ContinueConversation(ctx, identity, ref.Reference, ref.OAuthScope, func(ctx context.Context, tc *turn.Context) error {
		h.prepare(tc, identity, ref, replyToID)
		act.ApplyConversationReference(ref.Reference, false)

		switch {
		case act.IsType(activity.TypeEndOfConversation):
			if err := h.registry.Delete(ctx, conversationID); err != nil {
				return err
			}
			return h.sendToBot(ctx, tc, act)
		case act.IsType(activity.TypeEvent):
			return h.sendToBot(ctx, tc, act)
		case act.IsType(activity.TypeCommand), act.IsType(activity.TypeCommandResult):
			if !strings.HasPrefix(act.Name, applicationPrefix) {
				return h.sendToBot(ctx, tc, act)
			}
		}

		r, err := tc.SendActivity(ctx, act)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	return orNewResponse(resp), nil
}

func (h *Handler) reference(ctx context.Context, conversationID string) (*ConversationReference, error) {
	ref, err := h.registry.Reference(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		h.logger.Warn("unknown skill conversation", "conversation_id", conversationID)
		return nil, fmt.Errorf("%w: %s", ErrReferenceNotFound, conversationID)
	}
	return ref, nil
}

// prepare marks the continuation turn as skill traffic.
func (h *Handler) prepare(tc *turn.Context, identity *auth.Identity, ref *ConversationReference, activityID string) {
	ReferenceKey.Set(tc.State(), ref)
	incoming := tc.Activity()
	incoming.ID = activityID
	incoming.CallerID = activity.CallerIDBotToBotPrefix + identity.AppID()
}

// sendToBot swaps the continuation event for the skill's activity and runs
// the bot on it.
func (h *Handler) sendToBot(ctx context.Context, tc *turn.Context, act *activity.Activity) error {
	incoming := tc.Activity()
	incoming.Type = act.Type
	incoming.Name = act.Name
	incoming.Text = act.Text
	incoming.Code = act.Code
	incoming.Value = act.Value
	incoming.ValueType = act.ValueType
	incoming.Locale = act.Locale
	incoming.LocalTimestamp = act.LocalTimestamp
	incoming.Timestamp = act.Timestamp
	incoming.ReplyToID = act.ReplyToID
	incoming.RelatesTo = act.RelatesTo
	incoming.Entities = act.Entities
	incoming.ChannelData = act.ChannelData
	if len(act.Properties) > 0 {
		if incoming.Properties == nil {
			incoming.Properties = make(map[string]any, len(act.Properties))
		}
		for k, v := range act.Properties {
			incoming.Properties[k] = v
		}
	}
	return h.bot(ctx, tc)
}

func orNewResponse(resp activity.ResourceResponse) activity.ResourceResponse {
	if resp.ID == "" {
		return activity.ResourceResponse{ID: uuid.NewString()}
	}
	return resp
}
