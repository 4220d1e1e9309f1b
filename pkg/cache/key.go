package cache

import (
	"strconv"
	"strings"
)

// payloadSuffix marks the compressed payload key of a content entry.
const payloadSuffix = ":d"

// ContentKey identifies one cached content variant of a book.
type ContentKey struct {
	// Variant is the content variant name (e.g., "txt", "card", "html")
	Variant string

	// BookID is the catalog book identifier
	BookID int
}

// DigestKey returns the key holding the entry's digest.
// Format: {variant}{bookId}
//
// Example:
//
//	txt123
func (k ContentKey) DigestKey() string {
	return k.Variant + strconv.Itoa(k.BookID)
}

// PayloadKey returns the key holding the entry's compressed payload.
// Format: {variant}{bookId}:d
func (k ContentKey) PayloadKey() string {
	return k.DigestKey() + payloadSuffix
}

// DigestKeyFor derives the digest key from a payload key.
// It returns false if payloadKey is not a payload key.
func DigestKeyFor(payloadKey string) (string, bool) {
	return strings.CutSuffix(payloadKey, payloadSuffix)
}

// String implements fmt.Stringer.
func (k ContentKey) String() string {
	return k.DigestKey()
}
