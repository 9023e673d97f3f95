// ABOUTME: Activity envelope, accounts, and conversation references for the bot runtime
// ABOUTME: Provides cloning and reference application used by turns, adapters, and skills

package activity

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Activity types understood by the runtime.
const (
	TypeMessage               = "message"
	TypeContactRelationUpdate = "contactRelationUpdate"
	TypeConversationUpdate    = "conversationUpdate"
	TypeTyping                = "typing"
	TypeEndOfConversation     = "endOfConversation"
	TypeEvent                 = "event"
	TypeInvoke                = "invoke"
	TypeInvokeResponse        = "invokeResponse"
	TypeDelay                 = "delay"
	TypeTrace                 = "trace"
	TypeMessageUpdate         = "messageUpdate"
	TypeMessageDelete         = "messageDelete"
	TypeMessageReaction       = "messageReaction"
	TypeInstallationUpdate    = "installationUpdate"
	TypeHandoff               = "handoff"
	TypeCommand               = "command"
	TypeCommandResult         = "commandResult"
)

// Delivery modes.
const (
	DeliveryNormal        = "normal"
	DeliveryNotification  = "notification"
	DeliveryExpectReplies = "expectReplies"
	DeliveryEphemeral     = "ephemeral"
)

// Text formats.
const (
	TextFormatPlain    = "plain"
	TextFormatMarkdown = "markdown"
	TextFormatXML      = "xml"
)

// Roles for channel accounts.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// CallerIDBotToBotPrefix marks an activity's CallerID as originating from
// another bot. The calling bot's app id follows the prefix.
const CallerIDBotToBotPrefix = "urn:botframework:aadappid:"

// ContinueConversationEvent is the Name of the event activity created for a
// proactive turn.
const ContinueConversationEvent = "ContinueConversation"

// ChannelAccount identifies a participant on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// ConversationReference addresses a conversation and, optionally, one
// activity inside it.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	Locale       string               `json:"locale,omitempty"`
}

// ResourceResponse is returned by a channel after it accepts an activity.
type ResourceResponse struct {
	ID string `json:"id,omitempty"`
}

// InvokeResponse is the synchronous reply to an invoke or expectReplies turn.
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// ExpectedReplies is the body of an InvokeResponse for an expectReplies turn.
type ExpectedReplies struct {
	Activities []*Activity `json:"activities"`
}

// Activity is the message envelope exchanged with a channel.
type Activity struct {
	Type           string                 `json:"type"`
	ID             string                 `json:"id,omitempty"`
	Timestamp      *time.Time             `json:"timestamp,omitempty"`
	LocalTimestamp *time.Time             `json:"localTimestamp,omitempty"`
	ServiceURL     string                 `json:"serviceUrl,omitempty"`
	ChannelID      string                 `json:"channelId,omitempty"`
	From           *ChannelAccount        `json:"from,omitempty"`
	Conversation   *ConversationAccount   `json:"conversation,omitempty"`
	Recipient      *ChannelAccount        `json:"recipient,omitempty"`
	TextFormat     string                 `json:"textFormat,omitempty"`
	Text           string                 `json:"text,omitempty"`
	Speak          string                 `json:"speak,omitempty"`
	InputHint      string                 `json:"inputHint,omitempty"`
	Locale         string                 `json:"locale,omitempty"`
	ReplyToID      string                 `json:"replyToId,omitempty"`
	Name           string                 `json:"name,omitempty"`
	Label          string                 `json:"label,omitempty"`
	ValueType      string                 `json:"valueType,omitempty"`
	Value          any                    `json:"value,omitempty"`
	Code           string                 `json:"code,omitempty"`
	CallerID       string                 `json:"callerId,omitempty"`
	DeliveryMode   string                 `json:"deliveryMode,omitempty"`
	MembersAdded   []*ChannelAccount      `json:"membersAdded,omitempty"`
	MembersRemoved []*ChannelAccount      `json:"membersRemoved,omitempty"`
	RelatesTo      *ConversationReference `json:"relatesTo,omitempty"`
	Entities       []json.RawMessage      `json:"entities,omitempty"`
	ChannelData    json.RawMessage        `json:"channelData,omitempty"`
	Properties     map[string]any         `json:"properties,omitempty"`
}

// NewMessage creates a message activity with the given text.
func NewMessage(text string) *Activity {
	return &Activity{Type: TypeMessage, Text: text}
}

// NewTrace creates a trace activity. Trace activities are diagnostic and never
// count as a user-visible response.
func NewTrace(name string, value any, valueType, label string) *Activity {
	return &Activity{
		Type:      TypeTrace,
		Name:      name,
		Label:     label,
		ValueType: valueType,
		Value:     value,
	}
}

// NewTyping creates a typing indicator activity.
func NewTyping() *Activity {
	return &Activity{Type: TypeTyping}
}

// IsType reports whether the activity has the given type.
func (a *Activity) IsType(t string) bool {
	return a != nil && a.Type == t
}

// ConversationReference captures the addressing information of the activity.
// From becomes the reference's user and Recipient its bot.
func (a *Activity) ConversationReference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         cloneAccount(a.From),
		Bot:          cloneAccount(a.Recipient),
		Conversation: cloneConversation(a.Conversation),
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyConversationReference addresses the activity using ref. For an incoming
// activity the reference's user is the sender and its activity id becomes the
// activity id; for an outgoing activity the bot is the sender and the
// reference's activity id becomes ReplyToID.
func (a *Activity) ApplyConversationReference(ref ConversationReference, incoming bool) *Activity {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = cloneConversation(ref.Conversation)
	if ref.Locale != "" && a.Locale == "" {
		a.Locale = ref.Locale
	}

	if incoming {
		a.From = cloneAccount(ref.User)
		a.Recipient = cloneAccount(ref.Bot)
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
		return a
	}

	a.From = cloneAccount(ref.Bot)
	a.Recipient = cloneAccount(ref.User)
	if ref.ActivityID != "" && a.Type != TypeConversationUpdate {
		a.ReplyToID = ref.ActivityID
	}
	return a
}

// ContinuationActivity builds the event activity that starts a proactive turn
// for the given reference.
func ContinuationActivity(ref ConversationReference) *Activity {
	now := time.Now().UTC()
	a := &Activity{
		Type:      TypeEvent,
		Name:      ContinueConversationEvent,
		ID:        uuid.NewString(),
		Timestamp: &now,
		RelatesTo: &ref,
	}
	a.ApplyConversationReference(ref, true)
	return a
}

// CreateReply builds a message addressed back to the sender of a.
func (a *Activity) CreateReply(text string) *Activity {
	now := time.Now().UTC()
	reply := &Activity{
		Type:         TypeMessage,
		Timestamp:    &now,
		Text:         text,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		ReplyToID:    a.ID,
		Locale:       a.Locale,
		From:         cloneAccount(a.Recipient),
		Recipient:    cloneAccount(a.From),
		Conversation: cloneConversation(a.Conversation),
	}
	return reply
}

// Clone returns a copy of the activity. Accounts, references, and collections
// are copied; Value and the values inside Properties are shared.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	c.From = cloneAccount(a.From)
	c.Recipient = cloneAccount(a.Recipient)
	c.Conversation = cloneConversation(a.Conversation)
	if a.Timestamp != nil {
		ts := *a.Timestamp
		c.Timestamp = &ts
	}
	if a.LocalTimestamp != nil {
		ts := *a.LocalTimestamp
		c.LocalTimestamp = &ts
	}
	if a.RelatesTo != nil {
		ref := cloneReference(*a.RelatesTo)
		c.RelatesTo = &ref
	}
	c.MembersAdded = cloneAccounts(a.MembersAdded)
	c.MembersRemoved = cloneAccounts(a.MembersRemoved)
	c.Entities = slices.Clone(a.Entities)
	c.ChannelData = slices.Clone(a.ChannelData)
	c.Properties = maps.Clone(a.Properties)
	return &c
}

func cloneReference(ref ConversationReference) ConversationReference {
	ref.User = cloneAccount(ref.User)
	ref.Bot = cloneAccount(ref.Bot)
	ref.Conversation = cloneConversation(ref.Conversation)
	return ref
}

func cloneAccount(acc *ChannelAccount) *ChannelAccount {
	if acc == nil {
		return nil
	}
	c := *acc
	return &c
}

func cloneAccounts(accs []*ChannelAccount) []*ChannelAccount {
	if accs == nil {
		return nil
	}
	out := make([]*ChannelAccount, len(accs))
	for i, acc := range accs {
		out[i] = cloneAccount(acc)
	}
	return out
}

func cloneConversation(conv *ConversationAccount) *ConversationAccount {
	if conv == nil {
		return nil
	}
	c := *conv
	return &c
}
