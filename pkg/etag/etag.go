// Package etag computes response validators and evaluates If-None-Match.
package etag

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Size is the length of a digest in hex characters.
const Size = sha1.Size * 2

// Digest returns the hex-encoded SHA-1 of b.
func Digest(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// Quote renders digest as a strong ETag header value.
func Quote(digest string) string {
	return `"` + digest + `"`
}

// Match reports whether an If-None-Match header value names digest.
// Each listed validator is compared after removing a weak prefix and quotes.
func Match(ifNoneMatch, digest string) bool {
	if ifNoneMatch == "" || digest == "" {
		return false
	}
	for _, v := range strings.Split(ifNoneMatch, ",") {
		v = strings.TrimSpace(v)
		v = strings.TrimPrefix(v, "W/")
		v = strings.Trim(v, `"`)
		if v == digest {
			return true
		}
	}
	return false
}
