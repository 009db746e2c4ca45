package chunker

import (
	"strings"
	"testing"
)

func genText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("word")
	}
	return b.String()
}

func TestSplit_SizeToleranceAndOverlap(t *testing.T) {
	text := genText(4000) // ~16000 chars, several windows
	chunks := Split("material-1", "owner-1", text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	tgt := targetTokens * approxCharsPerToken
	tolLow := int(float64(tgt) * (1 - toleranceFraction - 0.05))
	tolHigh := int(float64(tgt) * (1 + toleranceFraction + 0.05))
	for i, c := range chunks {
		if i == len(chunks)-1 {
			continue // the last window is allowed to be short
		}
		if l := len(c.Text); l < tolLow || l > tolHigh {
			t.Fatalf("chunk %d length %d out of tolerance [%d,%d]", i, l, tolLow, tolHigh)
		}
	}

	for i, c := range chunks {
		if c.Ordinal != i {
			t.Fatalf("chunk %d has ordinal %d, want dense from 0", i, c.Ordinal)
		}
		if c.MaterialID != "material-1" || c.OwnerID != "owner-1" {
			t.Fatalf("chunk %d missing stamped ids", i)
		}
		if c.CharEnd <= c.CharStart {
			t.Fatalf("chunk %d has char_end <= char_start", i)
		}
	}
}

func TestSplit_PreservesHeadings(t *testing.T) {
	text := "# Title\n\n" + genText(200) + "\n\n## Sub\n\n" + genText(200)
	chunks := Split("m", "o", text)
	if len(chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	if chunks[0].SectionHeading != "Title" {
		t.Fatalf("first chunk should be tagged with heading %q, got %q", "Title", chunks[0].SectionHeading)
	}
	foundSub := false
	for _, c := range chunks {
		if c.SectionHeading == "Sub" {
			foundSub = true
		}
	}
	if !foundSub {
		t.Fatalf("expected a chunk tagged with the Sub heading")
	}
}

func TestSplit_EmptyText(t *testing.T) {
	if chunks := Split("m", "o", ""); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}
