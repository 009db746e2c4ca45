package llmorch

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"medtutor/internal/config"
	"medtutor/internal/errs"
)

// maxPromptBytes is the 50 KiB post-normalization ceiling from spec.md 4.3.
const maxPromptBytes = 50 * 1024

// SanitizePrompt enforces the prompt sanitization rules from spec.md 4.3:
// control characters other than \n and \t (including null bytes) are
// stripped rather than rejected, so generation proceeds on the cleaned
// prompt; only a structural problem (invalid UTF-8) or the size ceiling
// after stripping is a hard validation failure.
func SanitizePrompt(prompt string) (string, error) {
	if !utf8.ValidString(prompt) {
		return "", errs.NewValidation("prompt", "must be valid UTF-8")
	}

	var b strings.Builder
	b.Grow(len(prompt))
	for _, r := range prompt {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	stripped := b.String()

	if len(stripped) > maxPromptBytes {
		return "", errs.NewValidation("prompt", fmt.Sprintf("must be at most %d bytes after normalization", maxPromptBytes))
	}
	return stripped, nil
}

// argvSpec is the resolved command line the orchestrator will exec.
type argvSpec struct {
	binary string
	args   []string
}

// buildArgv constructs the argument vector per spec.md 4.3/6's flag
// grammar: --model, --effort, --verbosity, --stream. The prompt is never
// placed on argv — it is written to the child's stdin by the caller. Every
// enum value has already been validated by Start before this runs; buildArgv
// re-checks defensively since it is the last place before spawn.
func buildArgv(cfg config.OrchestratorConfig, req Request) (argvSpec, error) {
	if err := cfg.ValidateModel(req.Model); err != nil {
		return argvSpec{}, errs.NewValidation("model", err.Error())
	}
	if !req.Effort.valid() {
		return argvSpec{}, errs.NewValidation("reasoning_effort", "invalid enum value")
	}
	if !req.Verbosity.valid() {
		return argvSpec{}, errs.NewValidation("verbosity", "invalid enum value")
	}
	if cfg.Binary == "" {
		return argvSpec{}, fmt.Errorf("%w: orchestrator binary is not configured", errs.ErrGenerationSpawn)
	}

	args := make([]string, 0, len(cfg.Args)+8)
	args = append(args, cfg.Args...)
	args = append(args,
		"--model", req.Model,
		"--effort", string(req.Effort),
		"--verbosity", string(req.Verbosity),
		"--stream",
	)
	return argvSpec{binary: cfg.Binary, args: args}, nil
}

// interruptSignal returns the signal used to request cooperative shutdown
// of the child process before the Kill escalation.
func interruptSignal() os.Signal {
	return os.Interrupt
}
