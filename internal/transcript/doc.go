// Package transcript records every activity of a conversation.
//
// The Logger middleware captures the inbound activity, each outbound
// activity, and updates and deletes made during a turn, then writes them to a
// Store when the turn finishes. Store failures are logged and never fail the
// turn.
//
// Two stores are provided: MemoryStore for tests and development, and
// SQLiteStore for a single-node deployment. Both page results 20 at a time
// using an opaque continuation token.
package transcript
