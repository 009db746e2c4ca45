package llmorch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"medtutor/internal/errs"
)

// stripCodeFence removes a single surrounding ```json ... ``` or ``` ... ```
// fence, per spec.md 4.3's structured-output contract. Text without a fence
// is returned unchanged.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "" || strings.EqualFold(first, "json") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimRight(s, " \t\n"), "```")
	return strings.TrimSpace(s)
}

// ParseStructured strips an optional Markdown code fence from raw, parses it
// as JSON, and validates it against schema. Any failure maps to
// errs.ErrGenerationFormat — the core never auto-retries a malformed
// structured response.
func ParseStructured(raw string, schema *jsonschema.Schema) (map[string]any, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response body", errs.ErrGenerationFormat)
	}

	var instance map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrGenerationFormat, err)
	}

	if schema != nil {
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve schema: %w", err)
		}
		if err := resolved.Validate(instance); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrGenerationFormat, err)
		}
	}

	return instance, nil
}

// CollectStructured runs req to completion (Structured must be true) and
// returns the parsed, schema-validated JSON object.
func (o *Orchestrator) CollectStructured(ctx context.Context, req Request, schema *jsonschema.Schema) (map[string]any, error) {
	req.Structured = true
	raw, err := o.Collect(ctx, req)
	if err != nil {
		return nil, err
	}
	return ParseStructured(raw, schema)
}
