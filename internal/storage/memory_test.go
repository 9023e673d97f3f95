// ABOUTME: Tests for the in-memory storage
// ABOUTME: Runs the storage contract plus copy-isolation and property checks

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMemoryStorage_Contract(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		return NewMemoryStorage()
	})
}

func TestMemoryStorage_ReadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	require.NoError(t, s.Write(ctx, map[string]Item{"k": {Document: []byte(`{"count":1}`)}}))

	items, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	items["k"].Document[2] = 'X'

	again, err := s.Read(ctx, []string{"k"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":1}`, string(again["k"].Document))
}

func TestMemoryStorage_SequentialWritesAlwaysChangeTag(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s := NewMemoryStorage()
		writes := rapid.IntRange(2, 20).Draw(rt, "writes")

		seen := make(map[string]bool)
		for i := 0; i < writes; i++ {
			if err := s.Write(ctx, map[string]Item{"k": {Document: []byte(`{}`), ETag: Wildcard()}}); err != nil {
				rt.Fatalf("write %d: %v", i, err)
			}
			items, err := s.Read(ctx, []string{"k"})
			if err != nil {
				rt.Fatalf("read %d: %v", i, err)
			}
			tag := items["k"].ETag.Value()
			if seen[tag] {
				rt.Fatalf("tag %q reused after %d writes", tag, i+1)
			}
			seen[tag] = true
		}
	})
}

func TestMemoryStorage_WriteSucceedsOnlyWithCurrentTag(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		s := NewMemoryStorage()
		if err := s.Write(ctx, map[string]Item{"k": {Document: []byte(`1`)}}); err != nil {
			rt.Fatalf("seed: %v", err)
		}
		items, _ := s.Read(ctx, []string{"k"})
		current := items["k"].ETag

		guess := rapid.StringMatching(`[a-f0-9-]{1,36}`).Draw(rt, "guess")
		err := s.Write(ctx, map[string]Item{"k": {Document: []byte(`2`), ETag: Tag(guess)}})
		if (guess == current.Value()) != (err == nil) {
			rt.Fatalf("guess %q current %q err %v", guess, current.Value(), err)
		}
	})
}
