package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duetforge/agent-tools/internal/statestore"
)

// TestEvaluate validates the verdict decision table.
func TestEvaluate(t *testing.T) {
	clean := "func Add(a, b int) int {\n\treturn a + b\n}\n"

	tests := []struct {
		name        string
		output      string
		attempts    int
		maxRepairs  int
		wantVerdict statestore.Verdict
		wantRule    string
	}{
		{
			name:        "clean output is approved",
			output:      clean,
			maxRepairs:  3,
			wantVerdict: statestore.VerdictApproved,
		},
		{
			name:        "empty output is rejected",
			output:      "   \n\t ",
			maxRepairs:  3,
			wantVerdict: statestore.VerdictRejected,
			wantRule:    "empty-output",
		},
		{
			name:        "merge conflict markers are fatal",
			output:      "<<<<<<< HEAD\nfoo\n=======\nbar\n>>>>>>> branch\n",
			maxRepairs:  3,
			wantVerdict: statestore.VerdictRejected,
			wantRule:    "merge-conflict",
		},
		{
			name:        "todo marker requests repair",
			output:      clean + "// TODO: handle overflow\n",
			maxRepairs:  3,
			wantVerdict: statestore.VerdictNeedsRepair,
			wantRule:    "todo-marker",
		},
		{
			name:        "placeholder requests repair",
			output:      "// your code here\n",
			maxRepairs:  3,
			wantVerdict: statestore.VerdictNeedsRepair,
			wantRule:    "placeholder",
		},
		{
			name:        "non-fatal finding with attempts exhausted rejects",
			output:      clean + "// FIXME later\n",
			attempts:    3,
			maxRepairs:  3,
			wantVerdict: statestore.VerdictRejected,
			wantRule:    "todo-marker",
		},
		{
			name:        "panic call requests repair",
			output:      "if err != nil {\n\tpanic(err)\n}\n",
			maxRepairs:  3,
			wantVerdict: statestore.VerdictNeedsRepair,
			wantRule:    "panic-call",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, findings := Evaluate(tt.output, tt.attempts, tt.maxRepairs)
			assert.Equal(t, tt.wantVerdict, verdict)

			if tt.wantRule == "" {
				assert.Empty(t, findings)
				return
			}
			require.NotEmpty(t, findings)
			rules := make([]string, 0, len(findings))
			for _, f := range findings {
				rules = append(rules, f.Rule)
			}
			assert.Contains(t, rules, tt.wantRule)
		})
	}
}

// TestSummarize validates the repair instruction rendering.
func TestSummarize(t *testing.T) {
	assert.Empty(t, Summarize(nil))

	out := Summarize([]Finding{
		{Rule: "todo-marker", Detail: "unfinished work markers"},
		{Rule: "panic-call", Detail: "panic used for error handling"},
	})
	assert.Contains(t, out, "todo-marker: unfinished work markers")
	assert.Contains(t, out, "panic-call: panic used for error handling")
	assert.Contains(t, out, "fix all of them")
}
