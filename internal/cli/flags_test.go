package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duetforge/agent-tools/internal/config"
)

func newTestCommand() (*cobra.Command, *config.Config) {
	cfg := config.NewDefaultConfig()
	cmd := &cobra.Command{Use: "duet-loop", RunE: func(*cobra.Command, []string) error { return nil }}
	BindFlags(cmd, cfg)
	return cmd, cfg
}

// TestValidateFlags validates the flag combination rules.
func TestValidateFlags(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(existing, []byte("LOCK_TIMEOUT=9\n"), 0644))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name: "defaults are valid",
		},
		{
			name:    "same agent twice",
			args:    []string{"--primary-agent", "claude", "--secondary-agent", "claude"},
			wantErr: "must differ",
		},
		{
			name:    "unknown agent",
			args:    []string{"--primary-agent", "gemini"},
			wantErr: "must be one of",
		},
		{
			name: "existing config file",
			args: []string{"--config", existing},
		},
		{
			name:    "missing config file",
			args:    []string{"--config", "/nonexistent/config"},
			wantErr: "--config",
		},
		{
			name:    "resume and clean together",
			args:    []string{"--resume", "--clean"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "status and cancel together",
			args:    []string{"--status", "--cancel"},
			wantErr: "mutually exclusive",
		},
		{
			name: "resume alone is fine",
			args: []string{"--resume"},
		},
		{
			name:    "zero lock timeout",
			args:    []string{"--lock-timeout", "0"},
			wantErr: "--lock-timeout",
		},
		{
			name:    "negative repair attempts",
			args:    []string{"--max-repair-attempts", "-1"},
			wantErr: "--max-repair-attempts",
		},
		{
			name: "swapped agents are valid",
			args: []string{"--primary-agent", "codex", "--secondary-agent", "claude"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, cfg := newTestCommand()
			require.NoError(t, cmd.ParseFlags(tt.args))

			err := ValidateFlags(cmd, cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

// TestBindFlagsDefaults validates that flag defaults track the config
// defaults instead of drifting separately.
func TestBindFlagsDefaults(t *testing.T) {
	cmd, cfg := newTestCommand()
	require.NoError(t, cmd.ParseFlags(nil))

	want := config.NewDefaultConfig()
	assert.Equal(t, want.PrimaryAgent, cfg.PrimaryAgent)
	assert.Equal(t, want.SecondaryAgent, cfg.SecondaryAgent)
	assert.Equal(t, want.StateDir, cfg.StateDir)
	assert.Equal(t, want.LockTimeout, cfg.LockTimeout)
	assert.Equal(t, want.BackupRetainCount, cfg.BackupRetainCount)
	assert.False(t, cfg.Verbose)
}

// TestFlagParsingUpdatesConfig validates that parsed flags land in the
// bound config fields.
func TestFlagParsingUpdatesConfig(t *testing.T) {
	cmd, cfg := newTestCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--state-dir", "/tmp/other",
		"--lock-timeout", "12",
		"-v",
	}))

	assert.Equal(t, "/tmp/other", cfg.StateDir)
	assert.Equal(t, 12, cfg.LockTimeout)
	assert.True(t, cfg.Verbose)
	assert.True(t, cmd.Flags().Changed("lock-timeout"))
	assert.False(t, cmd.Flags().Changed("stale-grace"))
}
