// Package adapter connects the turn pipeline to a channel.
//
// # Overview
//
// An Adapter receives authenticated activities, creates a turn for each one,
// runs its middleware chain and the bot handler, and performs the turn's
// outbound I/O through a Connector. It also starts proactive turns from a
// stored conversation reference with ContinueConversation.
//
// # Outbound rules
//
//   - trace activities are dropped unless the channel is "emulator"
//   - delay activities pause the send for their value in milliseconds
//     (default 1000)
//   - invokeResponse activities are kept on the turn and returned from
//     ProcessActivity
//   - activities with a ReplyToID are sent as replies, everything else is
//     sent to the conversation
//
// # Credentials
//
// HTTPConnector calls the channel's REST API with a bearer token from a
// TokenSource. CredentialCache is the TokenSource the adapter owns: it keeps
// minted tokens per app id and scope for a bounded time and coalesces
// concurrent mints for the same scope.
package adapter
