// ABOUTME: Transcript store contract and paging types
// ABOUTME: Shared validation and cursor helpers for store implementations

package transcript

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2389/coven-botkit/internal/activity"
)

// PageSize is the number of items returned per page.
const PageSize = 20

// Usage errors
var (
	ErrNilActivity         = errors.New("activity cannot be nil")
	ErrMissingChannelID    = errors.New("channel id is required")
	ErrMissingConversation = errors.New("conversation id is required")
	ErrInvalidContinuation = errors.New("invalid continuation token")
)

// Info describes one stored transcript.
type Info struct {
	ChannelID      string
	ConversationID string
	Created        time.Time
}

// ActivityPage is one page of a transcript, oldest first.
type ActivityPage struct {
	Activities        []*activity.Activity
	ContinuationToken string
}

// TranscriptPage is one page of transcripts on a channel, oldest first.
type TranscriptPage struct {
	Transcripts       []Info
	ContinuationToken string
}

// Store persists transcripts.
type Store interface {
	LogActivity(ctx context.Context, a *activity.Activity) error
	GetTranscriptActivities(ctx context.Context, channelID, conversationID, continuationToken string, since time.Time) (*ActivityPage, error)
	ListTranscripts(ctx context.Context, channelID, continuationToken string) (*TranscriptPage, error)
	DeleteTranscript(ctx context.Context, channelID, conversationID string) error
}

func validateActivity(a *activity.Activity) error {
	if a == nil {
		return ErrNilActivity
	}
	if strings.TrimSpace(a.ChannelID) == "" {
		return ErrMissingChannelID
	}
	if a.Conversation == nil || strings.TrimSpace(a.Conversation.ID) == "" {
		return ErrMissingConversation
	}
	return nil
}

func validateIDs(channelID, conversationID string) error {
	if strings.TrimSpace(channelID) == "" {
		return ErrMissingChannelID
	}
	if strings.TrimSpace(conversationID) == "" {
		return ErrMissingConversation
	}
	return nil
}

// encodeCursor creates an opaque token from a timestamp and an id.
// Format is base64(timestamp_rfc3339nano|id)
func encodeCursor(ts time.Time, id string) string {
	data := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), id)
	return base64.RawURLEncoding.EncodeToString([]byte(data))
}

func decodeCursor(token string) (time.Time, string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %w", ErrInvalidContinuation, err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: expected timestamp|id", ErrInvalidContinuation)
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %w", ErrInvalidContinuation, err)
	}
	return ts, parts[1], nil
}

func timestampOf(a *activity.Activity) time.Time {
	if a.Timestamp == nil {
		return time.Time{}
	}
	return a.Timestamp.UTC()
}
