// Package ai wraps the two external code-generation CLIs the loop routes
// between. Runners are pure consumers of session state: they receive a
// prompt, write generated output to a file, and report errors. All
// persistence goes through the state store, never through this package.
package ai

import (
	"context"
	"os/exec"
)

// AgentRunner runs one code-generation back-end.
type AgentRunner interface {
	// Name identifies the back-end ("claude", "codex") as recorded in
	// the session's assigned_agent field.
	Name() string

	// Generate invokes the back-end with the prompt and writes its
	// output to outputPath.
	Generate(ctx context.Context, prompt string, outputPath string) error
}

// Available reports whether the named back-end CLI is installed on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
