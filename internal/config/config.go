// Package config defines the duet-loop configuration model and default
// values.
//
// Configuration is assembled from multiple sources with a strict precedence
// chain: built-in defaults < global config file < project config file <
// explicit config file < CLI flag overrides.
package config

import (
	"path/filepath"
	"time"
)

// WhitelistedVars lists every configuration variable name that may appear
// in config files. Variables not in this list are silently ignored during
// loading.
var WhitelistedVars = [15]string{
	"STATE_DIR",
	"PRIMARY_AGENT",
	"SECONDARY_AGENT",
	"PRIMARY_MODEL",
	"SECONDARY_MODEL",
	"LOCK_TIMEOUT",
	"STALE_GRACE",
	"BACKUP_INTERVAL",
	"BACKUP_RETAIN_COUNT",
	"BACKUP_RETAIN_AGE",
	"MAX_REPAIR_ATTEMPTS",
	"MAX_AGENT_RETRY",
	"INACTIVITY_TIMEOUT",
	"EVENTS_FILE",
	"VERBOSE",
}

// Config holds every configuration field for the duet-loop CLI.
type Config struct {
	// State store location. All state-file siblings (lock marker, backup
	// directory, event log) live under StateDir.
	StateDir string

	// Back-end selection for the two code-generation CLIs.
	PrimaryAgent   string
	SecondaryAgent string
	PrimaryModel   string
	SecondaryModel string

	// State store tuning.
	LockTimeout       int // seconds
	StaleGrace        int // seconds
	BackupInterval    int // minutes
	BackupRetainCount int
	BackupRetainAge   int // hours

	// Session loop limits.
	MaxRepairAttempts int
	MaxAgentRetry     int
	InactivityTimeout int // seconds

	// Event log location; empty means <StateDir>/events.db.
	EventsFile string

	// Runtime flags.
	Verbose bool

	// CLI-only flags (not loaded from config files).
	ConfigFile string
	Resume     bool
	Clean      bool
	Status     bool
	Cancel     bool
}

// NewDefaultConfig returns a Config populated with all built-in default
// values. Lock timeout 5 s and backup interval 10 min match the state
// store's own defaults.
func NewDefaultConfig() *Config {
	return &Config{
		StateDir:          ".duet-loop",
		PrimaryAgent:      "claude",
		SecondaryAgent:    "codex",
		PrimaryModel:      "opus",
		SecondaryModel:    "default",
		LockTimeout:       5,
		StaleGrace:        30,
		BackupInterval:    10,
		BackupRetainCount: 10,
		BackupRetainAge:   168,
		MaxRepairAttempts: 3,
		MaxAgentRetry:     5,
		InactivityTimeout: 1800,
	}
}

// StatePath returns the primary state file location.
func (c *Config) StatePath() string {
	return filepath.Join(c.StateDir, "state.json")
}

// BackupDir returns the snapshot directory.
func (c *Config) BackupDir() string {
	return filepath.Join(c.StateDir, "backups")
}

// EventsPath returns the event log location.
func (c *Config) EventsPath() string {
	if c.EventsFile != "" {
		return c.EventsFile
	}
	return filepath.Join(c.StateDir, "events.db")
}

// OutputDir returns where generated back-end output is written.
func (c *Config) OutputDir() string {
	return filepath.Join(c.StateDir, "output")
}

// Duration accessors for fields stored as scalar config values.

func (c *Config) LockTimeoutDuration() time.Duration {
	return time.Duration(c.LockTimeout) * time.Second
}

func (c *Config) StaleGraceDuration() time.Duration {
	return time.Duration(c.StaleGrace) * time.Second
}

func (c *Config) BackupIntervalDuration() time.Duration {
	return time.Duration(c.BackupInterval) * time.Minute
}

func (c *Config) BackupRetainAgeDuration() time.Duration {
	return time.Duration(c.BackupRetainAge) * time.Hour
}
