// ABOUTME: In-memory transcript store keyed by channel and conversation
// ABOUTME: Keeps activities in log order and pages by timestamp and id

package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-botkit/internal/activity"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	channels map[string]map[string][]*activity.Activity
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{channels: make(map[string]map[string][]*activity.Activity)}
}

// LogActivity appends a copy of a to its conversation's transcript.
func (m *MemoryStore) LogActivity(_ context.Context, a *activity.Activity) error {
	if err := validateActivity(a); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	channel, ok := m.channels[a.ChannelID]
	if !ok {
		channel = make(map[string][]*activity.Activity)
		m.channels[a.ChannelID] = channel
	}
	channel[a.Conversation.ID] = append(channel[a.Conversation.ID], a.Clone())
	return nil
}

// GetTranscriptActivities returns activities at or after since, oldest first.
func (m *MemoryStore) GetTranscriptActivities(_ context.Context, channelID, conversationID, continuationToken string, since time.Time) (*ActivityPage, error) {
	if err := validateIDs(channelID, conversationID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	entries := append([]*activity.Activity(nil), m.channels[channelID][conversationID]...)
	m.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return timestampOf(entries[i]).Before(timestampOf(entries[j]))
	})

	start := 0
	if continuationToken != "" {
		_, id, err := decodeCursor(continuationToken)
		if err != nil {
			return nil, err
		}
		start = len(entries)
		for i, e := range entries {
			if e.ID == id {
				start = i + 1
				break
			}
		}
	}

	page := &ActivityPage{}
	for _, e := range entries[start:] {
		if !since.IsZero() && timestampOf(e).Before(since) {
			continue
		}
		page.Activities = append(page.Activities, e.Clone())
		if len(page.Activities) == PageSize {
			break
		}
	}
	if len(page.Activities) == PageSize {
		last := page.Activities[PageSize-1]
		page.ContinuationToken = encodeCursor(timestampOf(last), last.ID)
	}
	return page, nil
}

// ListTranscripts returns the conversations on a channel ordered by the
// timestamp of their first activity.
func (m *MemoryStore) ListTranscripts(_ context.Context, channelID, continuationToken string) (*TranscriptPage, error) {
	if channelID == "" {
		return nil, ErrMissingChannelID
	}

	m.mu.RLock()
	infos := make([]Info, 0, len(m.channels[channelID]))
	for conv, entries := range m.channels[channelID] {
		info := Info{ChannelID: channelID, ConversationID: conv}
		if len(entries) > 0 {
			info.Created = timestampOf(entries[0])
		}
		infos = append(infos, info)
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Created.Equal(infos[j].Created) {
			return infos[i].Created.Before(infos[j].Created)
		}
		return infos[i].ConversationID < infos[j].ConversationID
	})

	start := 0
	if continuationToken != "" {
		_, id, err := decodeCursor(continuationToken)
		if err != nil {
			return nil, err
		}
		start = len(infos)
		for i, info := range infos {
			if info.ConversationID == id {
				start = i + 1
				break
			}
		}
	}

	end := min(start+PageSize, len(infos))
	page := &TranscriptPage{Transcripts: infos[start:end]}
	if end-start == PageSize {
		last := infos[end-1]
		page.ContinuationToken = encodeCursor(last.Created, last.ConversationID)
	}
	return page, nil
}

// DeleteTranscript removes a conversation's transcript.
func (m *MemoryStore) DeleteTranscript(_ context.Context, channelID, conversationID string) error {
	if err := validateIDs(channelID, conversationID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels[channelID], conversationID)
	return nil
}
