package router

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duetforge/agent-tools/internal/statestore"
)

// TestScore validates the keyword and length heuristics.
func TestScore(t *testing.T) {
	tests := []struct {
		name string
		task string
		want statestore.Complexity
	}{
		{
			name: "short task without markers is simple",
			task: "fix the typo in the readme",
			want: statestore.ComplexitySimple,
		},
		{
			name: "keyword marker makes it complex",
			task: "refactor the import pipeline",
			want: statestore.ComplexityComplex,
		},
		{
			name: "marker match is case-insensitive",
			task: "investigate the SECURITY hole in auth",
			want: statestore.ComplexityComplex,
		},
		{
			name: "marker inside a larger word still counts",
			task: "write the migrations for the users table",
			want: statestore.ComplexityComplex,
		},
		{
			name: "long task without markers is complex",
			task: strings.Repeat("word ", 41),
			want: statestore.ComplexityComplex,
		},
		{
			name: "forty words exactly stays simple",
			task: strings.TrimSpace(strings.Repeat("word ", 40)),
			want: statestore.ComplexitySimple,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.task))
		})
	}
}

// TestRoute validates agent selection and availability fallback.
func TestRoute(t *testing.T) {
	only := func(name string) func(string) bool {
		return func(s string) bool { return s == name }
	}
	all := func(string) bool { return true }
	none := func(string) bool { return false }

	tests := []struct {
		name      string
		c         statestore.Complexity
		available func(string) bool
		want      string
	}{
		{
			name:      "complex goes to primary",
			c:         statestore.ComplexityComplex,
			available: all,
			want:      "claude",
		},
		{
			name:      "simple goes to secondary",
			c:         statestore.ComplexitySimple,
			available: all,
			want:      "codex",
		},
		{
			name:      "complex falls back when primary missing",
			c:         statestore.ComplexityComplex,
			available: only("codex"),
			want:      "codex",
		},
		{
			name:      "simple falls back when secondary missing",
			c:         statestore.ComplexitySimple,
			available: only("claude"),
			want:      "claude",
		},
		{
			name:      "nothing installed",
			c:         statestore.ComplexityComplex,
			available: none,
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.c, "claude", "codex", tt.available))
		})
	}
}
