// ABOUTME: ETag sum type for optimistic concurrency on storage writes
// ABOUTME: Distinguishes unset, wildcard, and concrete tag values

package storage

import "github.com/google/uuid"

type etagKind uint8

const (
	etagUnset etagKind = iota
	etagWildcard
	etagValue
)

const wildcard = "*"

// ETag is a record version tag. The zero value is Unset.
type ETag struct {
	kind  etagKind
	value string
}

// Unset is the ETag of an item that has never been read from storage.
var Unset = ETag{}

// Wildcard returns the ETag that bypasses the conflict check.
func Wildcard() ETag {
	return ETag{kind: etagWildcard}
}

// Tag returns a concrete ETag. An empty value yields Unset.
func Tag(value string) ETag {
	if value == "" {
		return Unset
	}
	if value == wildcard {
		return Wildcard()
	}
	return ETag{kind: etagValue, value: value}
}

// ParseETag converts a wire string to an ETag.
func ParseETag(s string) ETag {
	return Tag(s)
}

// newTag generates a fresh concrete tag.
func newTag() ETag {
	return ETag{kind: etagValue, value: uuid.NewString()}
}

// IsUnset reports whether no tag is set.
func (e ETag) IsUnset() bool { return e.kind == etagUnset }

// IsWildcard reports whether the tag is the wildcard.
func (e ETag) IsWildcard() bool { return e.kind == etagWildcard }

// Value returns the concrete tag value, or "" for Unset and Wildcard.
func (e ETag) Value() string {
	if e.kind != etagValue {
		return ""
	}
	return e.value
}

// String returns the wire form: "" for Unset, "*" for Wildcard.
func (e ETag) String() string {
	switch e.kind {
	case etagWildcard:
		return wildcard
	case etagValue:
		return e.value
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e ETag) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *ETag) UnmarshalText(b []byte) error {
	*e = ParseETag(string(b))
	return nil
}
