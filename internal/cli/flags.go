// Package cli provides flag binding and validation for the duet-loop CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duetforge/agent-tools/internal/config"
)

// BindFlags registers all CLI flags on the given cobra command.
// The flags directly modify fields in the provided config pointer.
// Call ValidateFlags after parsing to check flag combinations.
func BindFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	// Back-end selection.
	flags.StringVar(&cfg.PrimaryAgent, "primary-agent", cfg.PrimaryAgent, "Back-end for complex tasks: claude or codex")
	flags.StringVar(&cfg.SecondaryAgent, "secondary-agent", cfg.SecondaryAgent, "Back-end for simple tasks: claude or codex")
	flags.StringVar(&cfg.PrimaryModel, "primary-model", cfg.PrimaryModel, "Model for the primary back-end")
	flags.StringVar(&cfg.SecondaryModel, "secondary-model", cfg.SecondaryModel, "Model for the secondary back-end")

	// State store tuning.
	flags.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "Directory holding state file, lock, backups, events")
	flags.IntVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "Seconds to wait for the state lock")
	flags.IntVar(&cfg.StaleGrace, "stale-grace", cfg.StaleGrace, "Seconds beyond its timeout before a lock is stale")
	flags.IntVar(&cfg.BackupInterval, "backup-interval", cfg.BackupInterval, "Minutes between state snapshots")
	flags.IntVar(&cfg.BackupRetainCount, "backup-retain-count", cfg.BackupRetainCount, "Snapshots kept by count")
	flags.IntVar(&cfg.BackupRetainAge, "backup-retain-age", cfg.BackupRetainAge, "Snapshot retention in hours")
	flags.StringVar(&cfg.EventsFile, "events-file", "", "Event log path (default <state-dir>/events.db)")

	// Loop limits.
	flags.IntVar(&cfg.MaxRepairAttempts, "max-repair-attempts", cfg.MaxRepairAttempts, "Repair rounds before the review rejects")
	flags.IntVar(&cfg.MaxAgentRetry, "max-agent-retry", cfg.MaxAgentRetry, "Max retries per back-end invocation")
	flags.IntVar(&cfg.InactivityTimeout, "inactivity-timeout", cfg.InactivityTimeout, "Seconds before a back-end run is killed")

	// Runtime flags.
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug output")
	flags.StringVar(&cfg.ConfigFile, "config", "", "Path to additional config file")

	// Session management.
	flags.BoolVar(&cfg.Resume, "resume", false, "Resume the session on disk")
	flags.BoolVar(&cfg.Clean, "clean", false, "Delete the state directory and start fresh")
	flags.BoolVar(&cfg.Status, "status", false, "Show session status and exit")
	flags.BoolVar(&cfg.Cancel, "cancel", false, "Cancel the active session and exit")
}

// ValidateFlags checks for invalid flag combinations after parsing.
// Must be called after cmd.Execute() or cmd.ParseFlags().
func ValidateFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.PrimaryAgent == cfg.SecondaryAgent {
		return fmt.Errorf("--primary-agent and --secondary-agent must differ")
	}
	if !validAgent(cfg.PrimaryAgent) || !validAgent(cfg.SecondaryAgent) {
		return fmt.Errorf("agents must be one of: claude, codex")
	}

	// --config must exist if provided.
	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err != nil {
			return fmt.Errorf("--config: %w", err)
		}
	}

	// Mutually exclusive session-management modes.
	modes := 0
	for _, on := range []bool{cfg.Resume, cfg.Clean, cfg.Status, cfg.Cancel} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("--resume, --clean, --status, and --cancel are mutually exclusive")
	}

	if cfg.LockTimeout <= 0 {
		return fmt.Errorf("--lock-timeout must be positive")
	}
	if cfg.MaxRepairAttempts < 0 {
		return fmt.Errorf("--max-repair-attempts must be non-negative")
	}

	return nil
}

func validAgent(name string) bool {
	return name == "claude" || name == "codex"
}
