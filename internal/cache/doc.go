// Package cache provides a thread-safe, TTL-based, size-limited cache.
//
// It backs two runtime concerns: recognizing activities a channel redelivers
// (see pipeline.Dedupe) and holding outbound bearer tokens per app id (see
// adapter.CredentialCache). Entries expire after the cache TTL unless stored
// with their own shorter lifetime, and the oldest entry is evicted when the
// cache is full.
package cache
