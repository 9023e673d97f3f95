// ABOUTME: Scoped state persisted under a key derived from the turn's activity
// ABOUTME: Caches the document per turn and writes back only when it changed

package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/storage"
	"github.com/2389/coven-botkit/internal/turn"
)

// Usage errors
var (
	ErrNilStorage            = errors.New("storage cannot be nil")
	ErrNilTurnContext        = errors.New("turn context cannot be nil")
	ErrMissingChannelID      = errors.New("activity channel id is required")
	ErrMissingFromID         = errors.New("activity from id is required")
	ErrMissingConversationID = errors.New("activity conversation id is required")
	ErrEmptyPropertyName     = errors.New("property name cannot be empty")
	ErrNotLoaded             = errors.New("state has not been loaded for this turn")
)

// ErrPropertyNotFound is returned by Property.Get when the value is absent and
// no default was supplied.
var ErrPropertyNotFound = errors.New("property not found")

// KeyFunc derives a storage key from an activity.
type KeyFunc func(a *activity.Activity) (string, error)

// BotState is one persisted scope.
type BotState struct {
	storage  storage.Storage
	name     string
	keyFn    KeyFunc
	cacheKey turn.Key[*cachedState]
}

// cachedState is the per-turn copy of a scope document and the hash of the
// version last loaded or saved.
type cachedState struct {
	values map[string]json.RawMessage
	hash   string
}

func (c *cachedState) changed() bool {
	return hashValues(c.values) != c.hash
}

// New creates a scope with a custom key derivation. name identifies the scope
// in the turn side-table and must be unique among the scopes used in a turn.
func New(store storage.Storage, name string, keyFn KeyFunc) (*BotState, error) {
	if store == nil {
		return nil, ErrNilStorage
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("state name cannot be empty")
	}
	if keyFn == nil {
		return nil, errors.New("key function cannot be nil")
	}
	return &BotState{
		storage:  store,
		name:     name,
		keyFn:    keyFn,
		cacheKey: turn.NewKey[*cachedState]("botkit.state." + name),
	}, nil
}

// NewUserState creates the user scope.
func NewUserState(store storage.Storage) (*BotState, error) {
	return New(store, "user", UserKey)
}

// NewConversationState creates the conversation scope.
func NewConversationState(store storage.Storage) (*BotState, error) {
	return New(store, "conversation", ConversationKey)
}

// NewPrivateConversationState creates the per-user-per-conversation scope.
func NewPrivateConversationState(store storage.Storage) (*BotState, error) {
	return New(store, "private", PrivateConversationKey)
}

// Name returns the scope name.
func (b *BotState) Name() string { return b.name }

// StorageKey returns the key this scope uses for the turn.
func (b *BotState) StorageKey(tc *turn.Context) (string, error) {
	if tc == nil {
		return "", ErrNilTurnContext
	}
	return b.keyFn(tc.Activity())
}

// Load reads the scope document into the turn. A document already loaded on
// this turn is reused unless force is set. An absent key loads as empty.
func (b *BotState) Load(ctx context.Context, tc *turn.Context, force bool) error {
	if tc == nil {
		return ErrNilTurnContext
	}
	key, err := b.keyFn(tc.Activity())
	if err != nil {
		return err
	}
	if cached, ok := b.cacheKey.Get(tc.State()); ok && cached != nil && !force {
		return nil
	}

	items, err := b.storage.Read(ctx, []string{key})
	if err != nil {
		return fmt.Errorf("loading %s state: %w", b.name, err)
	}

	values := map[string]json.RawMessage{}
	if item, ok := items[key]; ok && len(item.Document) > 0 {
		if err := item.Decode(&values); err != nil {
			return fmt.Errorf("decoding %s state: %w", b.name, err)
		}
		if values == nil {
			values = map[string]json.RawMessage{}
		}
	}
	b.cacheKey.Set(tc.State(), &cachedState{values: values, hash: hashValues(values)})
	return nil
}

// SaveChanges writes the cached document if it changed since it was loaded or
// last saved, or unconditionally when force is set. It does nothing if the
// scope was never loaded on this turn.
func (b *BotState) SaveChanges(ctx context.Context, tc *turn.Context, force bool) error {
	if tc == nil {
		return ErrNilTurnContext
	}
	cached, ok := b.cacheKey.Get(tc.State())
	if !ok || cached == nil {
		return nil
	}
	if !force && !cached.changed() {
		return nil
	}

	key, err := b.keyFn(tc.Activity())
	if err != nil {
		return err
	}
	item, err := storage.NewItem(cached.values, storage.Wildcard())
	if err != nil {
		return fmt.Errorf("encoding %s state: %w", b.name, err)
	}
	if err := b.storage.Write(ctx, map[string]storage.Item{key: item}); err != nil {
		return fmt.Errorf("saving %s state: %w", b.name, err)
	}
	cached.hash = hashValues(cached.values)
	return nil
}

// ClearState replaces the cached document with an empty one. Storage is not
// touched until the next SaveChanges, which always writes after a clear.
func (b *BotState) ClearState(tc *turn.Context) error {
	if tc == nil {
		return ErrNilTurnContext
	}
	b.cacheKey.Set(tc.State(), &cachedState{values: map[string]json.RawMessage{}})
	return nil
}

// Delete drops the cached document and removes the scope's key from storage.
func (b *BotState) Delete(ctx context.Context, tc *turn.Context) error {
	if tc == nil {
		return ErrNilTurnContext
	}
	key, err := b.keyFn(tc.Activity())
	if err != nil {
		return err
	}
	b.cacheKey.Delete(tc.State())
	if err := b.storage.Delete(ctx, []string{key}); err != nil {
		return fmt.Errorf("deleting %s state: %w", b.name, err)
	}
	return nil
}

// Get returns a copy of the cached document, or nil if it is not loaded.
func (b *BotState) Get(tc *turn.Context) map[string]json.RawMessage {
	if tc == nil {
		return nil
	}
	cached, ok := b.cacheKey.Get(tc.State())
	if !ok || cached == nil {
		return nil
	}
	return maps.Clone(cached.values)
}

// IsLoaded reports whether the scope is cached on the turn.
func (b *BotState) IsLoaded(tc *turn.Context) bool {
	if tc == nil {
		return false
	}
	cached, ok := b.cacheKey.Get(tc.State())
	return ok && cached != nil
}

// IsChanged reports whether the cached document differs from storage as last
// seen by this turn.
func (b *BotState) IsChanged(tc *turn.Context) bool {
	if tc == nil {
		return false
	}
	cached, ok := b.cacheKey.Get(tc.State())
	return ok && cached != nil && cached.changed()
}

// PropertyValue decodes the named value into v and reports whether it exists.
func (b *BotState) PropertyValue(tc *turn.Context, name string, v any) (bool, error) {
	cached, err := b.cached(tc, name)
	if err != nil {
		return false, err
	}
	raw, ok := cached.values[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding property %q: %w", name, err)
	}
	return true, nil
}

// SetPropertyValue stores v under name in the cached document.
func (b *BotState) SetPropertyValue(tc *turn.Context, name string, v any) error {
	cached, err := b.cached(tc, name)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding property %q: %w", name, err)
	}
	cached.values[name] = raw
	return nil
}

// DeletePropertyValue removes name from the cached document.
func (b *BotState) DeletePropertyValue(tc *turn.Context, name string) error {
	cached, err := b.cached(tc, name)
	if err != nil {
		return err
	}
	delete(cached.values, name)
	return nil
}

func (b *BotState) cached(tc *turn.Context, name string) (*cachedState, error) {
	if tc == nil {
		return nil, ErrNilTurnContext
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyPropertyName
	}
	cached, ok := b.cacheKey.Get(tc.State())
	if !ok || cached == nil {
		return nil, fmt.Errorf("%s: %w", b.name, ErrNotLoaded)
	}
	return cached, nil
}

// hashValues fingerprints a document. json.Marshal sorts map keys and
// compacts raw values, so equal documents hash equally.
func hashValues(values map[string]json.RawMessage) string {
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
