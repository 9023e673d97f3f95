// ABOUTME: Skill conversation registry mapping skill conversation ids to caller references
// ABOUTME: Ids mix the caller's addressing with a nonce so repeated creates never collide

package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/storage"
)

// KeyPrefix namespaces registry records in storage.
const KeyPrefix = "skillconvo/"

// Registry errors
var (
	ErrNilStorage  = errors.New("storage cannot be nil")
	ErrNilActivity = errors.New("create options require an activity")
	ErrEmptyID     = errors.New("skill conversation id cannot be empty")
)

// Skill describes the skill being called.
type Skill struct {
	ID          string `json:"id"`
	AppID       string `json:"appId"`
	SkillURL    string `json:"skillEndpoint,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// CreateOptions are the inputs for a new skill conversation.
type CreateOptions struct {
	FromBotID         string
	FromBotOAuthScope string
	Skill             Skill
	Activity          *activity.Activity
}

// ConversationReference is the stored record: how to reach the caller's
// conversation and which scope to use when doing so.
type ConversationReference struct {
	Reference  activity.ConversationReference `json:"conversationReference"`
	OAuthScope string                         `json:"oAuthScope,omitempty"`
}

// Registry stores skill conversation references.
type Registry struct {
	store storage.Storage
	nonce func() string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNonce sets the generator for the id discriminator.
func WithNonce(fn func() string) RegistryOption {
	return func(r *Registry) { r.nonce = fn }
}

// NewRegistry creates a registry over store.
func NewRegistry(store storage.Storage, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, ErrNilStorage
	}
	r := &Registry{store: store, nonce: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Create stores the caller's reference and returns the new skill
// conversation id.
func (r *Registry) Create(ctx context.Context, opts CreateOptions) (string, error) {
	if opts.Activity == nil {
		return "", ErrNilActivity
	}
	ref := opts.Activity.ConversationReference()

	conversationID := ""
	if ref.Conversation != nil {
		conversationID = ref.Conversation.ID
	}
	id := strings.Join([]string{
		opts.FromBotID,
		opts.Skill.AppID,
		conversationID,
		ref.ChannelID,
		r.nonce(),
	}, "-")

	item, err := storage.NewItem(ConversationReference{Reference: ref, OAuthScope: opts.FromBotOAuthScope}, storage.Unset)
	if err != nil {
		return "", err
	}
	if err := r.store.Write(ctx, map[string]storage.Item{storageKey(id): item}); err != nil {
		return "", fmt.Errorf("storing skill conversation %s: %w", id, err)
	}
	return id, nil
}

// Reference returns the stored reference for id, or nil when there is none.
func (r *Registry) Reference(ctx context.Context, id string) (*ConversationReference, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyID
	}
	key := storageKey(id)
	items, err := r.store.Read(ctx, []string{key})
	if err != nil {
		return nil, fmt.Errorf("reading skill conversation %s: %w", id, err)
	}
	item, ok := items[key]
	if !ok {
		return nil, nil
	}

	var ref ConversationReference
	if err := item.Decode(&ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Delete removes the reference for id. Deleting an unknown id is not an error.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	if err := r.store.Delete(ctx, []string{storageKey(id)}); err != nil {
		return fmt.Errorf("deleting skill conversation %s: %w", id, err)
	}
	return nil
}

func storageKey(id string) string {
	return KeyPrefix + id
}
