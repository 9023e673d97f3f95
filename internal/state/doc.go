// Package state persists per-user and per-conversation data for a bot.
//
// # Overview
//
// A BotState derives a storage key from the turn's activity, loads the JSON
// document stored under that key into the turn's side-table, and writes it
// back on SaveChanges. Writes only happen when the cached document differs
// from what was last loaded or saved.
//
// # Scopes
//
//	user:          user/{channelId}/{fromId}
//	conversation:  conversation/{channelId}/{conversationId}
//	private:       private/{channelId}/{conversationId}/{fromId}
//
// Deriving a key from an activity missing any of these fields fails with a
// usage error before storage is touched.
//
// # Properties
//
// Property accessors read and write a single named value inside the scope
// document. They never write to storage:
//
//	count, _ := state.CreateProperty[int](convState, "count")
//	n, err := count.Get(ctx, tc, func() int { return 0 })
//	err = count.Set(ctx, tc, n+1)
//	err = convState.SaveChanges(ctx, tc, false)
//
// AutoSave saves a list of scopes after the rest of the pipeline succeeds.
//
// # Concurrency
//
// SaveChanges writes with the wildcard ETag, so the last writer wins when two
// turns for the same conversation overlap.
package state
