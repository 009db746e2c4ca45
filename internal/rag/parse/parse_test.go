package parse

import (
	"context"
	"testing"
)

func TestParserForDispatch(t *testing.T) {
	cases := map[string]any{
		"application/pdf":  PDFParser{},
		"text/plain":       PlainTextParser{},
		"text/html":        RichTextParser{},
		"text/markdown":    RichTextParser{},
	}
	for ct, want := range cases {
		p, err := ParserFor(ct)
		if err != nil {
			t.Fatalf("ParserFor(%q): %v", ct, err)
		}
		if p != want {
			t.Errorf("ParserFor(%q) = %T, want %T", ct, p, want)
		}
	}
	if _, err := ParserFor("application/zip"); err == nil {
		t.Fatalf("expected error for unsupported content type")
	}
}

func TestPlainTextParserTrimsAndValidates(t *testing.T) {
	doc, err := PlainTextParser{}.Parse(context.Background(), []byte("  hello\r\nworld  "))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Text != "hello\nworld" {
		t.Fatalf("Text = %q", doc.Text)
	}
	if _, err := PlainTextParser{}.Parse(context.Background(), []byte("   ")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestRichTextParserPassesThroughMarkdown(t *testing.T) {
	doc, err := RichTextParser{}.Parse(context.Background(), []byte("# Heading\n\nBody text."))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Text != "# Heading\n\nBody text." {
		t.Fatalf("Text = %q", doc.Text)
	}
}

func TestRichTextParserConvertsHTML(t *testing.T) {
	doc, err := RichTextParser{}.Parse(context.Background(), []byte("<html><body><h1>Title</h1><p>Para.</p></body></html>"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Text == "" {
		t.Fatalf("expected non-empty converted markdown")
	}
}

func TestPlainTextParserNormalizesToNFC(t *testing.T) {
	// "e" + combining acute accent (U+0065 U+0301), decomposed (NFD).
	decomposed := "café"
	doc, err := PlainTextParser{}.Parse(context.Background(), []byte(decomposed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := "café"; doc.Text != want {
		t.Fatalf("Text = %q, want NFC-composed %q", doc.Text, want)
	}
}

func TestDocumentPageHintAt(t *testing.T) {
	d := Document{Text: "abcdefghij", Pages: []Page{{Offset: 0, Number: 1}, {Offset: 5, Number: 2}}}
	if got := *d.PageHintAt(0); got != 1 {
		t.Errorf("PageHintAt(0) = %d, want 1", got)
	}
	if got := *d.PageHintAt(7); got != 2 {
		t.Errorf("PageHintAt(7) = %d, want 2", got)
	}
	if (Document{}).PageHintAt(0) != nil {
		t.Errorf("expected nil PageHintAt for unpaged document")
	}
}
