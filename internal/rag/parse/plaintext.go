package parse

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PlainTextParser passes raw bytes through as a single unpaged Document,
// after validating UTF-8 and normalizing line endings.
type PlainTextParser struct{}

func (PlainTextParser) Parse(ctx context.Context, data []byte) (Document, error) {
	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("parse: plain text material is not valid UTF-8")
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = normalizeNFC(text)
	text = strings.TrimSpace(text)
	if text == "" {
		return Document{}, fmt.Errorf("parse: plain text material is empty")
	}
	return Document{Text: text}, nil
}
