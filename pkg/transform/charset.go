package transform

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	xtransform "golang.org/x/text/transform"
)

// ErrEncoding is returned when bytes cannot be decoded from, or text cannot
// be encoded into, the declared character set.
var ErrEncoding = errors.New("encoding error")

// Charset is a character encoding used by upstream documents.
type Charset int

const (
	// UTF8 is used by card pages.
	UTF8 Charset = iota
	// ShiftJIS is used by full-text documents and archives.
	ShiftJIS
)

// String returns the charset label as used in Content-Type headers.
func (c Charset) String() string {
	switch c {
	case UTF8:
		return "utf-8"
	case ShiftJIS:
		return "shift_jis"
	default:
		return fmt.Sprintf("charset(%d)", int(c))
	}
}

// Decode converts b into text. Malformed sequences are reported, never
// replaced.
func (c Charset) Decode(b []byte) (string, error) {
	switch c {
	case UTF8:
		out, _, err := xtransform.Bytes(encoding.UTF8Validator, b)
		if err != nil {
			return "", fmt.Errorf("%w: decode %s: %v", ErrEncoding, c, err)
		}
		return string(out), nil
	case ShiftJIS:
		out, err := japanese.ShiftJIS.NewDecoder().Bytes(b)
		if err != nil {
			return "", fmt.Errorf("%w: decode %s: %v", ErrEncoding, c, err)
		}
		// The decoder substitutes U+FFFD for invalid input. Shift_JIS has
		// no such character, so any occurrence marks a malformed sequence.
		if strings.ContainsRune(string(out), utf8.RuneError) {
			return "", fmt.Errorf("%w: decode %s: malformed sequence", ErrEncoding, c)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("%w: unknown charset %d", ErrEncoding, int(c))
	}
}

// Encode converts text back into c.
func (c Charset) Encode(s string) ([]byte, error) {
	switch c {
	case UTF8:
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("%w: encode %s: invalid utf-8", ErrEncoding, c)
		}
		return []byte(s), nil
	case ShiftJIS:
		out, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s: %v", ErrEncoding, c, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown charset %d", ErrEncoding, int(c))
	}
}
