// ABOUTME: Well-known side-table keys shared across runtime components
// ABOUTME: Identity, OAuth scope, and invoke response slots set by the adapter

package turn

import (
	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/auth"
)

var (
	// IdentityKey holds the validated caller identity for the turn.
	IdentityKey = NewKey[*auth.Identity]("botkit.identity")

	// OAuthScopeKey holds the audience used for outbound calls on this turn.
	OAuthScopeKey = NewKey[string]("botkit.oauthScope")

	// InvokeResponseKey holds the invokeResponse activity sent by the bot.
	InvokeResponseKey = NewKey[*activity.Activity]("botkit.invokeResponse")
)
