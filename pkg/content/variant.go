package content

import (
	"github.com/aozorahack/pubserver2/pkg/catalog"
	"github.com/aozorahack/pubserver2/pkg/transform"
)

// Variant is one of the content forms served per book.
type Variant int

const (
	// Text is the ruby-annotated text archive, served as its single
	// extracted entry in the original Shift-JIS encoding.
	Text Variant = iota
	// Card is the book's card page with an OGP block injected.
	Card
	// HTML is the full XHTML document with an OGP block injected.
	HTML
)

// Content types declared for each variant.
const (
	ContentTypeText   = "text/plain; charset=shift_jis"
	ContentTypeCard   = "text/html; charset=utf-8"
	ContentTypeHTML   = "text/html; charset=shift_jis"
	ContentTypeBinary = "application/octet-stream"
)

// String returns the variant name, also used as its cache key prefix.
func (v Variant) String() string {
	switch v {
	case Text:
		return "txt"
	case Card:
		return "card"
	case HTML:
		return "html"
	default:
		return "unknown"
	}
}

// ContentType returns the declared content type of the variant.
func (v Variant) ContentType() string {
	switch v {
	case Text:
		return ContentTypeText
	case Card:
		return ContentTypeCard
	case HTML:
		return ContentTypeHTML
	default:
		return ContentTypeBinary
	}
}

// SourceURL returns the upstream location of the variant for a book.
func (v Variant) SourceURL(src *catalog.BookSource) string {
	switch v {
	case Text:
		return src.TextURL
	case Card:
		return src.CardURL
	case HTML:
		return src.HTMLURL
	default:
		return ""
	}
}

func (v Variant) charset() transform.Charset {
	if v == HTML {
		return transform.ShiftJIS
	}
	return transform.UTF8
}

func (v Variant) rewrite() transform.Rewrite {
	if v == HTML {
		return transform.RewriteDocument
	}
	return transform.RewriteCard
}

// ParseFormat maps the format query parameter of a content request to a
// variant and the content type to serve it with. "" and "txt" select Text,
// "html" selects HTML. Any other value serves the Text payload as
// application/octet-stream.
func ParseFormat(format string) (Variant, string) {
	switch format {
	case "", "txt":
		return Text, ContentTypeText
	case "html":
		return HTML, ContentTypeHTML
	default:
		return Text, ContentTypeBinary
	}
}
