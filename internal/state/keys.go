// ABOUTME: Storage key derivation for the built-in state scopes
// ABOUTME: Fails fast when the activity lacks the ids a scope needs

package state

import (
	"strings"

	"github.com/2389/coven-botkit/internal/activity"
)

// UserKey returns user/{channelId}/{fromId}.
func UserKey(a *activity.Activity) (string, error) {
	channel, err := channelID(a)
	if err != nil {
		return "", err
	}
	from, err := fromID(a)
	if err != nil {
		return "", err
	}
	return "user/" + channel + "/" + from, nil
}

// ConversationKey returns conversation/{channelId}/{conversationId}.
func ConversationKey(a *activity.Activity) (string, error) {
	channel, err := channelID(a)
	if err != nil {
		return "", err
	}
	conv, err := conversationID(a)
	if err != nil {
		return "", err
	}
	return "conversation/" + channel + "/" + conv, nil
}

// PrivateConversationKey returns private/{channelId}/{conversationId}/{fromId}.
func PrivateConversationKey(a *activity.Activity) (string, error) {
	channel, err := channelID(a)
	if err != nil {
		return "", err
	}
	conv, err := conversationID(a)
	if err != nil {
		return "", err
	}
	from, err := fromID(a)
	if err != nil {
		return "", err
	}
	return "private/" + channel + "/" + conv + "/" + from, nil
}

func channelID(a *activity.Activity) (string, error) {
	if a == nil || strings.TrimSpace(a.ChannelID) == "" {
		return "", ErrMissingChannelID
	}
	return a.ChannelID, nil
}

func fromID(a *activity.Activity) (string, error) {
	if a.From == nil || strings.TrimSpace(a.From.ID) == "" {
		return "", ErrMissingFromID
	}
	return a.From.ID, nil
}

func conversationID(a *activity.Activity) (string, error) {
	if a.Conversation == nil || strings.TrimSpace(a.Conversation.ID) == "" {
		return "", ErrMissingConversationID
	}
	return a.Conversation.ID, nil
}
