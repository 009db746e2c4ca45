package llmorch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"medtutor/internal/errs"
)

func TestStripCodeFenceVariants(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"{\"a\":1}":               `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseStructuredRejectsMalformedJSON(t *testing.T) {
	_, err := ParseStructured("```json\nnot json\n```", nil)
	if !errors.Is(err, errs.ErrGenerationFormat) {
		t.Fatalf("err = %v, want ErrGenerationFormat", err)
	}
}

func TestCollectStructuredParsesFencedJSON(t *testing.T) {
	setHelperEnv(t)
	o := New(testConfig("json"))
	schema := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"ok"},
		Properties: map[string]*jsonschema.Schema{
			"ok": {Type: "boolean"},
		},
	}
	out, err := o.CollectStructured(context.Background(), Request{
		OwnerID: "u1", Model: "default", Prompt: "x",
	}, schema)
	if err != nil {
		t.Fatalf("CollectStructured: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("out = %v, want ok=true", out)
	}
}
