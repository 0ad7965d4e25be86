package ai

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// CodexRunner implements AgentRunner for the codex CLI.
type CodexRunner struct {
	Model             string
	Verbose           bool
	InactivityTimeout int // seconds; 0 means no bound
}

// Name implements AgentRunner.
func (r *CodexRunner) Name() string {
	return "codex"
}

// BuildArgs constructs the argument list for the codex CLI command.
// Codex uses "exec" mode for non-interactive runs; "default" selects the
// CLI's own model choice.
func (r *CodexRunner) BuildArgs(prompt string) []string {
	args := []string{"exec", "--full-auto"}
	if r.Model != "" && r.Model != "default" {
		args = append(args, "--model", r.Model)
	}
	args = append(args, prompt)
	return args
}

// Generate executes the codex CLI with the given prompt and writes output
// to outputPath.
func (r *CodexRunner) Generate(ctx context.Context, prompt string, outputPath string) error {
	if r.InactivityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.InactivityTimeout)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "codex", r.BuildArgs(prompt)...)

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()

	cmd.Stdout = outFile
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("codex command failed: %w", err)
	}
	return nil
}
