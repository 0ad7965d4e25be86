package ai

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ClaudeRunner implements AgentRunner for the claude CLI.
type ClaudeRunner struct {
	Model             string
	Verbose           bool
	InactivityTimeout int // seconds; 0 means no bound
}

// Name implements AgentRunner.
func (r *ClaudeRunner) Name() string {
	return "claude"
}

// BuildArgs constructs the argument list for the claude CLI command.
func (r *ClaudeRunner) BuildArgs(prompt string) []string {
	args := []string{
		"--print",
		"--dangerously-skip-permissions",
		"--model", r.Model,
	}
	if r.Verbose {
		args = append(args, "--verbose")
	}
	args = append(args, "--prompt", prompt)
	return args
}

// Generate executes the claude CLI with the given prompt and writes output
// to outputPath.
func (r *ClaudeRunner) Generate(ctx context.Context, prompt string, outputPath string) error {
	if r.InactivityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.InactivityTimeout)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "claude", r.BuildArgs(prompt)...)

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()

	cmd.Stdout = outFile
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("claude command failed: %w", err)
	}
	return nil
}
