// Package transform rewrites upstream HTML into the documents we serve.
//
// Transformation is purely textual: no HTML parsing takes place. A document
// is decoded from its source charset, receives an Open Graph block, has its
// relative references made absolute, and is encoded back into the source
// charset.
package transform

import (
	"strings"
)

// DefaultSiteRoot is the canonical root of the upstream site.
const DefaultSiteRoot = "https://www.aozora.gr.jp/"

// Rewrite selects the relative reference rules applied to a document.
type Rewrite int

const (
	// RewriteCard maps "../../" to the site root and "../" to the cards path.
	RewriteCard Rewrite = iota
	// RewriteDocument maps "../../" to the cards path.
	RewriteDocument
)

// Transformer applies OGP injection and reference rewriting.
type Transformer struct {
	imageURL    string
	description string

	card     *strings.Replacer
	document *strings.Replacer
}

// New creates a Transformer for the site rooted at siteRoot.
func New(siteRoot string) *Transformer {
	if siteRoot == "" {
		siteRoot = DefaultSiteRoot
	}
	if !strings.HasSuffix(siteRoot, "/") {
		siteRoot += "/"
	}
	cardsBase := siteRoot + "cards/"

	return &Transformer{
		imageURL:    siteRoot + "images/top_logo.png",
		description: DefaultDescription,
		// Replacer compares old strings in argument order, so "../../"
		// wins over "../" at the same position. Output is never rescanned.
		card:     strings.NewReplacer("../../", siteRoot, "../", cardsBase),
		document: strings.NewReplacer("../../", cardsBase),
	}
}

// RewriteRefs replaces relative references according to r.
func (t *Transformer) RewriteRefs(doc string, r Rewrite) string {
	switch r {
	case RewriteCard:
		return t.card.Replace(doc)
	case RewriteDocument:
		return t.document.Replace(doc)
	default:
		return doc
	}
}

// HTML runs the full pipeline over src: decode from cs, inject the OGP
// block, rewrite references, and encode back into cs.
func (t *Transformer) HTML(src []byte, cs Charset, r Rewrite, p Preview) ([]byte, error) {
	doc, err := cs.Decode(src)
	if err != nil {
		return nil, err
	}

	doc = t.InjectOGP(doc, p)
	doc = t.RewriteRefs(doc, r)

	return cs.Encode(doc)
}
