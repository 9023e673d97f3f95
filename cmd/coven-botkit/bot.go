// ABOUTME: Sample echo bot served by the serve subcommand
// ABOUTME: Counts messages per conversation and greets new members

package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/gateway"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/state"
	"github.com/2389/coven-botkit/internal/turn"
)

const resetCommand = "reset"

type echoBot struct {
	count *state.Property[int]
	conv  *state.BotState
}

// newEchoBot builds the bot handler on top of the gateway's conversation state.
func newEchoBot(svc *gateway.Services) (pipeline.Handler, error) {
	count, err := state.CreateProperty[int](svc.ConversationState, "messageCount")
	if err != nil {
		return nil, fmt.Errorf("creating count property: %w", err)
	}
	b := &echoBot{count: count, conv: svc.ConversationState}
	return b.OnTurn, nil
}

func (b *echoBot) OnTurn(ctx context.Context, tc *turn.Context) error {
	act := tc.Activity()
	switch act.Type {
	case activity.TypeMessage:
		return b.onMessage(ctx, tc)
	case activity.TypeConversationUpdate:
		return b.onMembersAdded(ctx, tc)
	case activity.TypeInvoke:
		_, err := tc.SendActivity(ctx, &activity.Activity{
			Type:  activity.TypeInvokeResponse,
			Value: &activity.InvokeResponse{Status: http.StatusOK, Body: map[string]string{"name": act.Name}},
		})
		return err
	case activity.TypeEndOfConversation:
		return b.conv.Delete(ctx, tc)
	}
	return nil
}

func (b *echoBot) onMessage(ctx context.Context, tc *turn.Context) error {
	text := strings.TrimSpace(tc.Activity().Text)
	if strings.EqualFold(text, resetCommand) {
		if err := b.count.Delete(ctx, tc); err != nil {
			return err
		}
		_, err := tc.SendText(ctx, "Counter reset.")
		return err
	}

	n, err := b.count.Get(ctx, tc, func() int { return 0 })
	if err != nil {
		return err
	}
	n++
	if err := b.count.Set(ctx, tc, n); err != nil {
		return err
	}
	_, err = tc.SendText(ctx, fmt.Sprintf("%d: You said %q", n, text))
	return err
}

func (b *echoBot) onMembersAdded(ctx context.Context, tc *turn.Context) error {
	act := tc.Activity()
	for _, m := range act.MembersAdded {
		if m == nil || (act.Recipient != nil && m.ID == act.Recipient.ID) {
			continue
		}
		name := m.Name
		if name == "" {
			name = m.ID
		}
		if _, err := tc.SendText(ctx, "Hello and welcome, "+name+"!"); err != nil {
			return err
		}
	}
	return nil
}
