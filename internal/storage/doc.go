// Package storage provides key/value persistence with optimistic concurrency
// for bot state and skill conversation references.
//
// # Contract
//
// Every implementation satisfies the same Storage interface:
//
//   - Read returns the items that exist; missing keys are simply absent.
//   - Write applies each key independently. A key is written when the incoming
//     ETag matches the stored tag, when the incoming ETag is the wildcard, or
//     when no record exists yet. Every successful write assigns a fresh tag.
//   - Delete removes keys unconditionally; absent keys are not an error.
//
// # ETags
//
// ETag is a small sum type with three states: Unset, Wildcard, and Tag(value).
// The empty string is never a valid tag. Writing an Unset ETag over an existing
// record returns ErrETagRequired rather than silently overwriting it.
//
// # Implementations
//
//   - MemoryStorage: process-local map, for tests and single-instance bots
//   - SQLiteStorage: modernc.org/sqlite with WAL, conditional writes in a transaction
//   - RedisStorage: go-redis with WATCH/MULTI per key
//
// # Error Handling
//
// Conflicts are reported as *ConflictError values joined into the returned
// error, so callers can test errors.Is(err, ErrConflict) or extract the keys with
// errors.As. Keys that did not conflict in the same call are still written.
package storage
