// Package parse extracts plain text (with page hints where available) from
// uploaded Material bytes, ahead of internal/rag/chunker. Supported content
// types: PDF, plain text, and rich text (HTML/markdown passed through a
// markdown converter). Image extraction and multi-language heading
// classification, both present in the reference PDF parser this package is
// grounded on, are out of scope here — chunking tags section headings
// generically from markdown-style "#" lines regardless of source format.
package parse

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeNFC applies Unicode NFC normalization on top of the \r\n->\n
// newline normalization each Parser already does, per spec.md 4.1's
// post-parse normalization step, so chunk/embed/duplicate-hash all operate
// on a canonical form regardless of the source encoding's composition.
func normalizeNFC(s string) string {
	return norm.NFC.String(s)
}

// Page marks the character offset in Document.Text at which a new source
// page begins, for PDF-derived documents. Plain text and rich text sources
// produce no Pages.
type Page struct {
	Offset int
	Number int
}

// Document is the parsed output: plain text ready for chunker.Split, plus
// optional page boundaries.
type Document struct {
	Text  string
	Pages []Page
}

// PageHintAt returns the page number active at character offset pos, or nil
// if the source had no page information.
func (d Document) PageHintAt(pos int) *int {
	if len(d.Pages) == 0 {
		return nil
	}
	num := d.Pages[0].Number
	for _, p := range d.Pages {
		if p.Offset > pos {
			break
		}
		num = p.Number
	}
	n := num
	return &n
}

// Parser extracts a Document from raw Material bytes.
type Parser interface {
	Parse(ctx context.Context, data []byte) (Document, error)
}

// ParserFor returns the Parser for the given content type, following the
// same prefix/exact-match switch the rest of this codebase uses for
// content-type dispatch.
func ParserFor(contentType string) (Parser, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case ct == "application/pdf":
		return PDFParser{}, nil
	case ct == "text/plain":
		return PlainTextParser{}, nil
	case ct == "text/html", ct == "text/markdown", strings.HasPrefix(ct, "application/xhtml"):
		return RichTextParser{}, nil
	default:
		return nil, fmt.Errorf("parse: unsupported content type %q", contentType)
	}
}
