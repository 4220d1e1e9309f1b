package transform

import (
	"html"
	"strings"
)

// DefaultDescription is the og:description of every injected block.
const DefaultDescription = "青空文庫は、誰にでもアクセスできる自由な電子本を、図書館のようにインターネット上に集めようとする活動です。"

// Preview is the book metadata shown in link previews.
type Preview struct {
	Title string

	// Author is the first author's last name followed by the first name.
	Author string
}

// TitleLine formats the og:title value as "{title}({author})".
func (p Preview) TitleLine() string {
	if p.Author == "" {
		return p.Title
	}
	return p.Title + "(" + p.Author + ")"
}

// ogpBlock renders the Open Graph metadata block.
func (t *Transformer) ogpBlock(p Preview) string {
	lines := []string{
		`<meta name="twitter:card" content="summary" />`,
		`<meta property="og:type" content="book" />`,
		`<meta property="og:image" content="` + html.EscapeString(t.imageURL) + `" />`,
		`<meta property="og:image:type" content="image/png" />`,
		`<meta property="og:image:width" content="100" />`,
		`<meta property="og:image:height" content="100" />`,
		`<meta property="og:description" content="` + html.EscapeString(t.description) + `" />`,
		`<meta property="og:title" content="` + html.EscapeString(p.TitleLine()) + `" />`,
	}
	return strings.Join(lines, "\n") + "\n"
}

// InjectOGP inserts the Open Graph block immediately before the first
// opening head tag. A document without one is returned unchanged.
func (t *Transformer) InjectOGP(doc string, p Preview) string {
	i := headIndex(doc)
	if i < 0 {
		return doc
	}
	return doc[:i] + t.ogpBlock(p) + doc[i:]
}

// headIndex returns the offset of the first "<head>" or "<head ...>" tag.
func headIndex(doc string) int {
	offset := 0
	for {
		i := strings.Index(doc[offset:], "<head")
		if i < 0 {
			return -1
		}
		i += offset
		next := i + len("<head")
		if next < len(doc) {
			switch doc[next] {
			case '>', ' ', '\t', '\n', '\r':
				return i
			}
		}
		offset = next
	}
}
