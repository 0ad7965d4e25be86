package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/duetforge/agent-tools/internal/ai"
	"github.com/duetforge/agent-tools/internal/cli"
	"github.com/duetforge/agent-tools/internal/config"
	"github.com/duetforge/agent-tools/internal/events"
	"github.com/duetforge/agent-tools/internal/exitcode"
	"github.com/duetforge/agent-tools/internal/logging"
	"github.com/duetforge/agent-tools/internal/loop"
	sighandler "github.com/duetforge/agent-tools/internal/signal"
	"github.com/duetforge/agent-tools/internal/statestore"
)

// version vars injected via ldflags at build time
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cfg := config.NewDefaultConfig()

	rootCmd := &cobra.Command{
		Use:     "duet-loop [task description]",
		Short:   "Dual back-end code-generation loop with a crash-safe session store",
		Long:    "Duet Loop routes a development task between two code-generation CLIs,\nreviews the output, and records every decision in an atomic, lock-coordinated,\nbackup-protected session state file.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.ValidateFlags(cmd, cfg); err != nil {
				return err
			}
			return run(cmd, cfg, strings.Join(args, " "))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.BindFlags(rootCmd, cfg)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcode.Error)
	}
}

// buildCLIOverrides creates a map of CLI flag overrides from the config.
// Uses cmd.Flags().Changed() to only include flags explicitly set by the
// user, so config file values are not clobbered by flag defaults.
func buildCLIOverrides(cmd *cobra.Command, cfg *config.Config) map[string]string {
	overrides := make(map[string]string)

	stringFlags := map[string]struct {
		key string
		val string
	}{
		"state-dir":       {"STATE_DIR", cfg.StateDir},
		"primary-agent":   {"PRIMARY_AGENT", cfg.PrimaryAgent},
		"secondary-agent": {"SECONDARY_AGENT", cfg.SecondaryAgent},
		"primary-model":   {"PRIMARY_MODEL", cfg.PrimaryModel},
		"secondary-model": {"SECONDARY_MODEL", cfg.SecondaryModel},
		"events-file":     {"EVENTS_FILE", cfg.EventsFile},
	}
	for flag, mapping := range stringFlags {
		if cmd.Flags().Changed(flag) {
			overrides[mapping.key] = mapping.val
		}
	}

	intFlags := map[string]struct {
		key string
		val int
	}{
		"lock-timeout":        {"LOCK_TIMEOUT", cfg.LockTimeout},
		"stale-grace":         {"STALE_GRACE", cfg.StaleGrace},
		"backup-interval":     {"BACKUP_INTERVAL", cfg.BackupInterval},
		"backup-retain-count": {"BACKUP_RETAIN_COUNT", cfg.BackupRetainCount},
		"backup-retain-age":   {"BACKUP_RETAIN_AGE", cfg.BackupRetainAge},
		"max-repair-attempts": {"MAX_REPAIR_ATTEMPTS", cfg.MaxRepairAttempts},
		"max-agent-retry":     {"MAX_AGENT_RETRY", cfg.MaxAgentRetry},
		"inactivity-timeout":  {"INACTIVITY_TIMEOUT", cfg.InactivityTimeout},
	}
	for flag, mapping := range intFlags {
		if cmd.Flags().Changed(flag) {
			overrides[mapping.key] = fmt.Sprintf("%d", mapping.val)
		}
	}

	if cmd.Flags().Changed("verbose") {
		overrides["VERBOSE"] = fmt.Sprintf("%t", cfg.Verbose)
	}

	return overrides
}

func run(cmd *cobra.Command, cfg *config.Config, task string) error {
	// Load config with the full precedence chain; CLI-only flags are
	// merged back afterwards.
	globalConfigPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		globalConfigPath = filepath.Join(home, ".config", "duet-loop", "config")
	}
	projectConfigPath := filepath.Join(cfg.StateDir, "config")

	cliOverrides := buildCLIOverrides(cmd, cfg)
	finalCfg, err := config.LoadWithPrecedence(globalConfigPath, projectConfigPath, cfg.ConfigFile, cliOverrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	finalCfg.ConfigFile = cfg.ConfigFile
	finalCfg.Resume = cfg.Resume
	finalCfg.Clean = cfg.Clean
	finalCfg.Status = cfg.Status
	finalCfg.Cancel = cfg.Cancel
	cfg = finalCfg

	logging.SetVerbose(cfg.Verbose)

	store := statestore.New(statestore.Options{
		Path:        cfg.StatePath(),
		Locker:      statestore.NewFileLocker(cfg.StatePath(), cfg.StaleGraceDuration()),
		Rotator:     statestore.NewRotator(cfg.BackupDir(), cfg.BackupIntervalDuration(), cfg.BackupRetainCount, cfg.BackupRetainAgeDuration()),
		LockTimeout: cfg.LockTimeoutDuration(),
	})

	// Session-management modes that do not run the loop.
	switch {
	case cfg.Status:
		return showStatus(store)
	case cfg.Clean:
		logging.Info("Removing state directory %s", cfg.StateDir)
		if err := os.RemoveAll(cfg.StateDir); err != nil {
			return fmt.Errorf("clean state dir: %w", err)
		}
		return nil
	case cfg.Cancel:
		return cancelSession(store)
	}

	eventLog, err := events.Open(cfg.EventsPath())
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer eventLog.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch := &loop.Orchestrator{
		Cfg:     cfg,
		Store:   store,
		Events:  eventLog,
		Runners: buildRunners(cfg),
	}

	sighandler.SetupSignalHandler(ctx, cancel, func() {
		logging.Warn("Interrupted, saving session state...")
		// Fresh context: the run context is about to be cancelled.
		markCtx, markCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer markCancel()
		orch.MarkInterrupted(markCtx)
	})

	code := orch.Run(ctx, task, cfg.Resume)

	// os.Exit skips deferred cleanup.
	cancel()
	eventLog.Close()
	os.Exit(code)
	return nil // unreachable
}

// buildRunners assembles the retry-wrapped back-end runners.
func buildRunners(cfg *config.Config) map[string]ai.AgentRunner {
	wrap := func(inner ai.AgentRunner) ai.AgentRunner {
		return &ai.RetryRunner{Inner: inner, MaxRetries: cfg.MaxAgentRetry, BaseDelay: 5 * time.Second}
	}
	modelFor := func(agent string) string {
		if agent == cfg.PrimaryAgent {
			return cfg.PrimaryModel
		}
		return cfg.SecondaryModel
	}
	return map[string]ai.AgentRunner{
		"claude": wrap(&ai.ClaudeRunner{
			Model:             modelFor("claude"),
			Verbose:           cfg.Verbose,
			InactivityTimeout: cfg.InactivityTimeout,
		}),
		"codex": wrap(&ai.CodexRunner{
			Model:             modelFor("codex"),
			Verbose:           cfg.Verbose,
			InactivityTimeout: cfg.InactivityTimeout,
		}),
	}
}

// showStatus prints the current session via the lock-free advisory read.
func showStatus(store *statestore.Store) error {
	state, err := store.GetState()
	if err != nil {
		// Distinguish "never started" from genuine corruption.
		var cErr *statestore.CorruptedStateError
		if !store.Exists() && errors.As(err, &cErr) && cErr.Snapshots == 0 {
			return fmt.Errorf("no session found at %s", store.Path())
		}
		return fmt.Errorf("read state: %w", err)
	}
	fmt.Printf("Session:         %s\n", state.SessionID)
	fmt.Printf("Status:          %s\n", state.Status)
	fmt.Printf("Task:            %s\n", state.CurrentTask)
	fmt.Printf("Complexity:      %s\n", state.Complexity)
	fmt.Printf("Assigned agent:  %s\n", state.AssignedAgent)
	fmt.Printf("Review verdict:  %s\n", state.ReviewVerdict)
	fmt.Printf("Repair attempts: %d\n", state.RepairAttempts)
	fmt.Printf("Last updated:    %s\n", state.LastUpdated)
	return nil
}

// cancelSession marks the on-disk session CANCELLED.
func cancelSession(store *statestore.Store) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state, err := store.UpdateField(ctx, "status", statestore.StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	logging.Success("Session %s cancelled", state.SessionID)
	return nil
}
