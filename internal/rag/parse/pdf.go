package parse

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts plain text from a PDF, page by page, recording a Page
// boundary at the start of each page's text so chunker output can carry a
// page hint. Image extraction and OCR fallback, present in the reference PDF
// parser this is grounded on, are out of scope: uploaded Materials are
// assumed to be text-layer PDFs.
type PDFParser struct{}

func (PDFParser) Parse(ctx context.Context, data []byte) (Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("parse: open pdf: %w", err)
	}

	var buf strings.Builder
	var pages []Page
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		select {
		case <-ctx.Done():
			return Document{}, ctx.Err()
		default:
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := extractPageTextOrdered(page)
		if err != nil {
			continue
		}
		text = normalizeNFC(strings.TrimSpace(text))
		if text == "" {
			continue
		}

		pages = append(pages, Page{Offset: buf.Len(), Number: i})
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(text)
	}

	if buf.Len() == 0 {
		return Document{}, fmt.Errorf("parse: no extractable text in pdf")
	}
	return Document{Text: buf.String(), Pages: pages}, nil
}

// extractPageTextOrdered groups a page's text fragments into visual lines by
// Y proximity and sorts top-to-bottom, since the library's own GetPlainText
// follows content-stream order, which can put a heading after the body text
// it labels.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0
	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		if text := strings.TrimSpace(l.buf.String()); text != "" {
			parts = append(parts, text)
		}
	}
	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}
