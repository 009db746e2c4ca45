package parse

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// RichTextParser flattens HTML (or passes through already-Markdown source)
// into Markdown text, so chunker's "#"-line heading detection applies
// uniformly regardless of the Material's original format.
type RichTextParser struct{}

func (RichTextParser) Parse(ctx context.Context, data []byte) (Document, error) {
	raw := string(data)
	if !looksLikeHTML(raw) {
		text := normalizeNFC(strings.TrimSpace(raw))
		if text == "" {
			return Document{}, fmt.Errorf("parse: rich text material is empty")
		}
		return Document{Text: text}, nil
	}

	md, err := htmltomarkdown.ConvertString(raw)
	if err != nil {
		return Document{}, fmt.Errorf("parse: convert html to markdown: %w", err)
	}
	md = normalizeNFC(strings.TrimSpace(md))
	if md == "" {
		return Document{}, fmt.Errorf("parse: rich text material produced no content")
	}
	return Document{Text: md}, nil
}

func looksLikeHTML(s string) bool {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") ||
		strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<div") ||
		strings.Contains(lower, "<p>")
}
