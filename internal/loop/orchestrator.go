// Package loop drives one development session end to end: score the task,
// route it to a back-end, generate, review, and repair until the verdict is
// final. Every piece of progress is persisted through the state store and
// mirrored to the append-only event log; the loop never touches the state
// file directly.
package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/duetforge/agent-tools/internal/ai"
	"github.com/duetforge/agent-tools/internal/config"
	"github.com/duetforge/agent-tools/internal/events"
	"github.com/duetforge/agent-tools/internal/exitcode"
	"github.com/duetforge/agent-tools/internal/logging"
	"github.com/duetforge/agent-tools/internal/review"
	"github.com/duetforge/agent-tools/internal/router"
	"github.com/duetforge/agent-tools/internal/statestore"
)

// Orchestrator wires the state store, event log, and back-end runners into
// the generate-review-repair loop.
type Orchestrator struct {
	Cfg    *config.Config
	Store  *statestore.Store
	Events *events.Log

	// Runners maps agent name to its runner. Populated by the caller so
	// tests can substitute fakes.
	Runners map[string]ai.AgentRunner

	// Available probes back-end availability; nil means ai.Available.
	Available func(string) bool
}

// routingDecision is the payload this component owns under the
// architectural_design "router" namespace.
type routingDecision struct {
	Complexity statestore.Complexity `json:"complexity"`
	Agent      string                `json:"agent"`
	Reason     string                `json:"reason"`
}

// Run executes one session and returns the process exit code. With resume
// set, it continues the session already on disk instead of starting a new
// one.
func (o *Orchestrator) Run(ctx context.Context, task string, resume bool) int {
	state, code := o.prepareSession(ctx, task, resume)
	if code != exitcode.Success {
		return code
	}
	task = state.CurrentTask

	// Routing.
	logging.Phase("Routing task for session %s", state.SessionID)
	complexity := router.Score(task)
	agent := router.Route(complexity, o.Cfg.PrimaryAgent, o.Cfg.SecondaryAgent, o.available())
	if agent == "" {
		logging.Error("Neither %s nor %s is installed", o.Cfg.PrimaryAgent, o.Cfg.SecondaryAgent)
		return exitcode.AgentUnavailable
	}
	runner, ok := o.Runners[agent]
	if !ok {
		logging.Error("No runner configured for agent %s", agent)
		return exitcode.Error
	}

	state, err := o.Store.Update(ctx, func(s *statestore.SessionState) error {
		s.Complexity = complexity
		s.AssignedAgent = agent
		return nil
	})
	if err != nil {
		return o.fail(err)
	}
	if _, err := o.recordRouting(ctx, state.SessionID, complexity, agent); err != nil {
		return o.fail(err)
	}
	logging.Info("Task scored %s, assigned to %s", complexity, agent)

	// Generate-review-repair loop.
	prompt := task
	for round := 1; ; round++ {
		logging.Phase("Generation round %d (%s)", round, agent)
		output, err := o.generate(ctx, runner, state.SessionID, round, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return exitcode.Interrupted
			}
			return o.fail(err)
		}
		o.emit(ctx, state.SessionID, events.TypeGenerationDone, agent, fmt.Sprintf("round %d", round))

		verdict, findings := review.Evaluate(output, state.RepairAttempts, o.Cfg.MaxRepairAttempts)
		state, err = o.Store.Update(ctx, func(s *statestore.SessionState) error {
			s.ReviewVerdict = verdict
			if verdict == statestore.VerdictNeedsRepair {
				s.RepairAttempts++
			}
			return nil
		})
		if err != nil {
			return o.fail(err)
		}
		o.emit(ctx, state.SessionID, events.TypeReviewRecorded, agent,
			fmt.Sprintf("verdict %s (%d findings)", verdict, len(findings)))

		switch verdict {
		case statestore.VerdictApproved:
			if _, err := o.Store.UpdateField(ctx, "status", statestore.StatusComplete); err != nil {
				return o.fail(err)
			}
			o.emit(ctx, state.SessionID, events.TypeSessionFinished, agent, "approved")
			logging.Success("Review approved after %d round(s)", round)
			return exitcode.Success

		case statestore.VerdictRejected:
			if _, err := o.Store.UpdateField(ctx, "status", statestore.StatusFailed); err != nil {
				return o.fail(err)
			}
			o.emit(ctx, state.SessionID, events.TypeSessionFinished, agent, "rejected")
			logging.Error("Review rejected the output (%d findings, %d repair attempts)",
				len(findings), state.RepairAttempts)
			return exitcode.Rejected

		default: // needs_repair
			logging.Warn("Review requested repairs (attempt %d of %d)",
				state.RepairAttempts, o.Cfg.MaxRepairAttempts)
			o.emit(ctx, state.SessionID, events.TypeRepairAttempted, agent,
				fmt.Sprintf("attempt %d", state.RepairAttempts))
			prompt = task + "\n\n" + review.Summarize(findings)
		}
	}
}

// prepareSession creates a fresh session or resumes the one on disk.
func (o *Orchestrator) prepareSession(ctx context.Context, task string, resume bool) (*statestore.SessionState, int) {
	if resume {
		// Detect up front whether the read will have to recover, so the
		// recovery lands in the event trail.
		recovered := false
		if data, err := os.ReadFile(o.Store.Path()); err != nil || statestore.ValidateBytes(data) != nil {
			recovered = true
		}

		// Read and status flip share one critical section.
		state, err := o.Store.Update(ctx, func(s *statestore.SessionState) error {
			s.Status = statestore.StatusInProgress
			return nil
		})
		if err != nil {
			return nil, o.fail(err)
		}
		if recovered {
			o.emit(ctx, state.SessionID, events.TypeStateRecovered, "", "primary restored from backup")
		}
		o.emit(ctx, state.SessionID, events.TypeSessionResumed, state.AssignedAgent, state.CurrentTask)
		logging.Info("Resumed session %s", state.SessionID)
		return state, exitcode.Success
	}

	if task == "" {
		logging.Error("No task given; pass a task description or --resume")
		return nil, exitcode.Error
	}
	if o.Store.Exists() {
		if existing, err := o.Store.GetState(); err == nil && existing.Status == statestore.StatusInProgress {
			logging.Error("Session %s is still in progress; use --resume or --clean", existing.SessionID)
			return nil, exitcode.Error
		}
	}

	state := statestore.NewSessionState(task)
	if err := o.Store.WriteState(ctx, state); err != nil {
		return nil, o.fail(err)
	}
	o.emit(ctx, state.SessionID, events.TypeSessionStarted, "", task)
	logging.Info("Started session %s", state.SessionID)
	return state, exitcode.Success
}

// generate runs one back-end round and returns the produced output.
func (o *Orchestrator) generate(ctx context.Context, runner ai.AgentRunner, sessionID string, round int, prompt string) (string, error) {
	if err := os.MkdirAll(o.Cfg.OutputDir(), 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	outputPath := filepath.Join(o.Cfg.OutputDir(), fmt.Sprintf("%s-round-%d.out", sessionID, round))

	if err := runner.Generate(ctx, prompt, outputPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return "", fmt.Errorf("read generated output: %w", err)
	}
	return string(data), nil
}

// recordRouting stores the routing decision under this component's
// architectural_design namespace.
func (o *Orchestrator) recordRouting(ctx context.Context, sessionID string, c statestore.Complexity, agent string) (*statestore.SessionState, error) {
	payload, err := json.Marshal(routingDecision{
		Complexity: c,
		Agent:      agent,
		Reason:     "keyword/length heuristic",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal routing decision: %w", err)
	}
	state, err := o.Store.UpdateNamespace(ctx, "router", payload)
	if err != nil {
		return nil, err
	}
	o.emit(ctx, sessionID, events.TypeTaskRouted, agent, string(c))
	return state, nil
}

// MarkInterrupted flips the session to INTERRUPTED; called from the signal
// handler with a fresh context because the run context is being cancelled.
func (o *Orchestrator) MarkInterrupted(ctx context.Context) {
	state, err := o.Store.UpdateField(ctx, "status", statestore.StatusInterrupted)
	if err != nil {
		logging.Warn("Could not mark session interrupted: %v", err)
		return
	}
	o.emit(ctx, state.SessionID, events.TypeSessionFinished, state.AssignedAgent, "interrupted")
}

// emit appends to the event log when one is configured. Event logging is
// advisory; failures never abort the session.
func (o *Orchestrator) emit(ctx context.Context, sessionID, eventType, agent, detail string) {
	if o.Events == nil {
		return
	}
	err := o.Events.Append(ctx, events.Event{
		SessionID: sessionID,
		Type:      eventType,
		Agent:     agent,
		Detail:    detail,
	})
	if err != nil {
		logging.Debug("Event append failed: %v", err)
	}
}

func (o *Orchestrator) available() func(string) bool {
	if o.Available != nil {
		return o.Available
	}
	return ai.Available
}

// fail logs err and maps it to the exit code for its failure class.
func (o *Orchestrator) fail(err error) int {
	logging.Error("%v", err)
	return ExitCodeForError(err)
}

// ExitCodeForError maps state store failures to named exit codes.
func ExitCodeForError(err error) int {
	var lockErr *statestore.LockTimeoutError
	if errors.As(err, &lockErr) {
		return exitcode.LockTimeout
	}
	var corruptErr *statestore.CorruptedStateError
	if errors.As(err, &corruptErr) {
		return exitcode.CorruptedState
	}
	return exitcode.Error
}
