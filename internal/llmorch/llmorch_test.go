package llmorch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"medtutor/internal/config"
	"medtutor/internal/errs"
)

// testConfig returns an OrchestratorConfig whose Binary re-execs this test
// binary in "helper process" mode, following the standard library's
// TestHelperProcess pattern for faking a subprocess without a shell.
func testConfig(mode string) config.OrchestratorConfig {
	return config.OrchestratorConfig{
		Binary:               os.Args[0],
		Args:                 []string{"-test.run=TestHelperProcess", "--", mode},
		ModelAllowList:       []string{"default", "gpt-test"},
		IdleTimeout:          2 * time.Second,
		MaxConcurrent:        2,
		MaxConcurrentPerUser: 1,
		CancelGrace:          200 * time.Millisecond,
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("LLMORCH_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "missing mode")
		os.Exit(2)
	}
	mode := args[1]

	switch mode {
	case "echo":
		buf := make([]byte, 4096)
		n, _ := os.Stdin.Read(buf)
		fmt.Fprintf(os.Stdout, "echo:%s", buf[:n])
	case "hang":
		time.Sleep(5 * time.Second)
	case "fail":
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(1)
	case "json":
		fmt.Fprint(os.Stdout, "```json\n{\"ok\":true}\n```")
	}
}

// setHelperEnv marks the re-exec'd test binary to behave as TestHelperProcess
// instead of running the full test suite, following the os/exec package's own
// test fixture pattern for faking a subprocess without a shell.
func setHelperEnv(t *testing.T) {
	t.Helper()
	os.Setenv("LLMORCH_WANT_HELPER_PROCESS", "1")
	t.Cleanup(func() { os.Unsetenv("LLMORCH_WANT_HELPER_PROCESS") })
}

func TestCollectEchoesPrompt(t *testing.T) {
	setHelperEnv(t)
	o := New(testConfig("echo"))
	out, err := o.Collect(context.Background(), Request{
		OwnerID: "u1", Model: "default", Effort: EffortLow, Verbosity: VerbosityLow, Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if out != "echo:hello" {
		t.Fatalf("out = %q, want %q", out, "echo:hello")
	}
}

func TestCollectExitNonZero(t *testing.T) {
	setHelperEnv(t)
	o := New(testConfig("fail"))
	_, err := o.Collect(context.Background(), Request{
		OwnerID: "u1", Model: "default", Effort: EffortLow, Verbosity: VerbosityLow, Prompt: "x",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestStartRejectsUnknownModel(t *testing.T) {
	setHelperEnv(t)
	o := New(testConfig("echo"))
	_, err := o.Start(context.Background(), Request{
		OwnerID: "u1", Model: "not-allowed", Prompt: "x",
	})
	if !errs.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestStartRejectsOversizedPrompt(t *testing.T) {
	setHelperEnv(t)
	o := New(testConfig("echo"))
	big := strings.Repeat("a", maxPromptBytes+1)
	_, err := o.Start(context.Background(), Request{OwnerID: "u1", Model: "default", Prompt: big})
	if !errs.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestStartRejectsNullByte(t *testing.T) {
	setHelperEnv(t)
	o := New(testConfig("echo"))
	_, err := o.Start(context.Background(), Request{OwnerID: "u1", Model: "default", Prompt: "a\x00b"})
	if !errs.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCancelStopsHangingChild(t *testing.T) {
	setHelperEnv(t)
	cfg := testConfig("hang")
	cfg.IdleTimeout = 10 * time.Second
	o := New(cfg)

	h, err := o.Start(context.Background(), Request{OwnerID: "u1", Model: "default", Prompt: "x"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		h.Cancel()
	}()
	for range h.Deltas {
	}
	outcome := <-h.Done
	if outcome.State != StateCancelled {
		t.Fatalf("state = %s, want cancelled", outcome.State)
	}
}

func TestIdleTimeoutFailsHangingChild(t *testing.T) {
	setHelperEnv(t)
	cfg := testConfig("hang")
	cfg.IdleTimeout = 50 * time.Millisecond
	o := New(cfg)

	h, err := o.Start(context.Background(), Request{OwnerID: "u1", Model: "default", Prompt: "x"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range h.Deltas {
	}
	outcome := <-h.Done
	if outcome.State != StateFailed || outcome.Err != errs.ErrGenerationTimeout {
		t.Fatalf("outcome = %+v, want failed/timeout", outcome)
	}
}

func TestPerUserConcurrencyGate(t *testing.T) {
	setHelperEnv(t)
	cfg := testConfig("hang")
	cfg.IdleTimeout = time.Second
	cfg.MaxConcurrentPerUser = 1
	o := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	h1, err := o.Start(context.Background(), Request{OwnerID: "u1", Model: "default", Prompt: "x"})
	if err != nil {
		t.Fatalf("Start 1: %v", err)
	}
	defer h1.Cancel()

	_, err = o.Start(ctx, Request{OwnerID: "u1", Model: "default", Prompt: "x"})
	if err == nil {
		t.Fatalf("expected second same-user Start to block until ctx deadline")
	}
}
