package questiongen

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"medtutor/internal/config"
	"medtutor/internal/llmorch"
	"medtutor/internal/store/memstore"
)

func helperOrchestrator(t *testing.T, script string) *llmorch.Orchestrator {
	t.Helper()
	os.Setenv("QUESTIONGEN_WANT_HELPER_PROCESS", script)
	t.Cleanup(func() { os.Unsetenv("QUESTIONGEN_WANT_HELPER_PROCESS") })
	return llmorch.New(config.OrchestratorConfig{
		Binary:               os.Args[0],
		Args:                 []string{"-test.run=TestHelperProcess", "--", script},
		ModelAllowList:       []string{"default"},
		IdleTimeout:          2 * time.Second,
		MaxConcurrent:        2,
		MaxConcurrentPerUser: 1,
		CancelGrace:          200 * time.Millisecond,
	})
}

func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("QUESTIONGEN_WANT_HELPER_PROCESS")
	if mode == "" {
		return
	}
	defer os.Exit(0)

	switch mode {
	case "valid":
		fmt.Fprint(os.Stdout, `{"items":[{"vignette":"A 45 y/o man presents with palpitations.","question":"What is the most likely diagnosis?","options":["Atrial fibrillation","Influenza","Appendicitis","Gout"],"correct_index":0,"explanation":"Irregularly irregular rhythm suggests AF.","teaching_points":["AF is irregularly irregular"]}]}`)
	case "mixed":
		fmt.Fprint(os.Stdout, `{"items":[{"vignette":"valid case","question":"q?","options":["a","b","c","d"],"correct_index":1,"explanation":"exp"},{"vignette":"","question":"bad","options":["a","b"],"correct_index":9,"explanation":""}]}`)
	case "empty":
		fmt.Fprint(os.Stdout, `{"items":[]}`)
	case "malformed":
		fmt.Fprint(os.Stdout, `not json`)
	}
}

func TestGeneratePersistsValidItem(t *testing.T) {
	orch := helperOrchestrator(t, "valid")
	questions := memstore.NewQuestions(memstore.NewLedger())
	g := New(questions, orch, nil)

	got, err := g.Generate(context.Background(), Request{
		OwnerID: "user-1", Topic: "cardiology", Difficulty: 3, Count: 1, StudentLevel: 2, Model: "default",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	q := got[0]
	if q.CorrectIndex != 0 {
		t.Fatalf("CorrectIndex = %d, want 0", q.CorrectIndex)
	}
	if q.Difficulty != "medium" {
		t.Fatalf("Difficulty = %s, want medium", q.Difficulty)
	}
	if q.DuplicateHash == "" {
		t.Fatalf("expected DuplicateHash to be set")
	}
}

func TestGenerateDropsInvalidItemsKeepsValid(t *testing.T) {
	orch := helperOrchestrator(t, "mixed")
	questions := memstore.NewQuestions(memstore.NewLedger())
	g := New(questions, orch, nil)

	got, err := g.Generate(context.Background(), Request{
		OwnerID: "user-1", Topic: "cardiology", Difficulty: 1, Count: 2, StudentLevel: 2, Model: "default",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 (the invalid item should be dropped)", len(got))
	}
}

func TestGenerateFailsWhenNoItemSurvives(t *testing.T) {
	orch := helperOrchestrator(t, "empty")
	questions := memstore.NewQuestions(memstore.NewLedger())
	g := New(questions, orch, nil)

	if _, err := g.Generate(context.Background(), Request{
		OwnerID: "user-1", Topic: "cardiology", Difficulty: 1, Count: 1, StudentLevel: 2, Model: "default",
	}); err == nil {
		t.Fatalf("expected error when zero items survive")
	}
}

func TestGenerateFailsOnMalformedResponse(t *testing.T) {
	orch := helperOrchestrator(t, "malformed")
	questions := memstore.NewQuestions(memstore.NewLedger())
	g := New(questions, orch, nil)

	if _, err := g.Generate(context.Background(), Request{
		OwnerID: "user-1", Topic: "cardiology", Difficulty: 1, Count: 1, StudentLevel: 2, Model: "default",
	}); err == nil {
		t.Fatalf("expected error for malformed JSON response")
	}
}
