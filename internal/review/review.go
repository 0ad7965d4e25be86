// Package review inspects generated output and produces the verdict
// recorded in the session state. Checks are regex/string based: the review
// is a consumer of state, not a correctness oracle.
package review

import (
	"regexp"
	"strings"

	"github.com/duetforge/agent-tools/internal/statestore"
)

// Finding describes one rule violation in generated output.
type Finding struct {
	Rule   string
	Detail string
	Fatal  bool
}

// rule pairs a name with the pattern that trips it.
type rule struct {
	name    string
	pattern *regexp.Regexp
	detail  string
	fatal   bool
}

var rules = []rule{
	{
		name:    "merge-conflict",
		pattern: regexp.MustCompile(`(?m)^(<<<<<<<|=======$|>>>>>>>)`),
		detail:  "unresolved merge conflict markers",
		fatal:   true,
	},
	{
		name:    "todo-marker",
		pattern: regexp.MustCompile(`(?i)\b(TODO|FIXME|XXX)\b`),
		detail:  "unfinished work markers",
	},
	{
		name:    "placeholder",
		pattern: regexp.MustCompile(`(?i)(your code here|not implemented|implementation omitted)`),
		detail:  "placeholder instead of an implementation",
	},
	{
		name:    "panic-call",
		pattern: regexp.MustCompile(`\bpanic\(`),
		detail:  "panic used for error handling",
	},
	{
		name:    "debug-print",
		pattern: regexp.MustCompile(`fmt\.Println\("(debug|DEBUG|here)`),
		detail:  "leftover debug printing",
	},
}

// Evaluate reviews generated output against the rule set and decides the
// verdict:
//
//   - no findings: approved
//   - a fatal finding, or repair attempts exhausted: rejected
//   - otherwise: needs_repair
//
// maxRepairs bounds how many repair rounds a session gets; attempts counts
// the rounds already spent.
func Evaluate(output string, attempts, maxRepairs int) (statestore.Verdict, []Finding) {
	var findings []Finding

	if strings.TrimSpace(output) == "" {
		findings = append(findings, Finding{
			Rule:   "empty-output",
			Detail: "back-end produced no output",
			Fatal:  true,
		})
	}

	for _, r := range rules {
		if r.pattern.MatchString(output) {
			findings = append(findings, Finding{Rule: r.name, Detail: r.detail, Fatal: r.fatal})
		}
	}

	if len(findings) == 0 {
		return statestore.VerdictApproved, nil
	}
	for _, f := range findings {
		if f.Fatal {
			return statestore.VerdictRejected, findings
		}
	}
	if attempts >= maxRepairs {
		return statestore.VerdictRejected, findings
	}
	return statestore.VerdictNeedsRepair, findings
}

// Summarize renders findings as a short repair instruction for the next
// generation round.
func Summarize(findings []Finding) string {
	if len(findings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Review found the following problems; fix all of them:\n")
	for _, f := range findings {
		b.WriteString("- ")
		b.WriteString(f.Rule)
		b.WriteString(": ")
		b.WriteString(f.Detail)
		b.WriteString("\n")
	}
	return b.String()
}
