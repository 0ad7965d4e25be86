// Package router scores a task's complexity and picks which of the two
// code-generation back-ends handles it. The routing decision matters only
// as state recorded through the store, not as a quality guarantee.
package router

import (
	"strings"

	"github.com/duetforge/agent-tools/internal/statestore"
)

// complexMarkers are keywords that push a task into the complex bucket.
var complexMarkers = []string{
	"architecture",
	"refactor",
	"migrate",
	"migration",
	"concurrency",
	"concurrent",
	"distributed",
	"protocol",
	"redesign",
	"security",
	"performance",
	"transaction",
}

// simpleWordLimit is the task length (in words) below which a task with no
// complexity markers is considered simple.
const simpleWordLimit = 40

// Score classifies a task description as simple or complex.
func Score(task string) statestore.Complexity {
	lower := strings.ToLower(task)
	for _, marker := range complexMarkers {
		if strings.Contains(lower, marker) {
			return statestore.ComplexityComplex
		}
	}
	if len(strings.Fields(task)) > simpleWordLimit {
		return statestore.ComplexityComplex
	}
	return statestore.ComplexitySimple
}

// Route selects the back-end for a scored task: complex tasks go to the
// primary agent, simple ones to the secondary. If the chosen agent is not
// available, the other takes over; availability is probed by the caller.
func Route(c statestore.Complexity, primary, secondary string, available func(string) bool) string {
	chosen, fallback := primary, secondary
	if c == statestore.ComplexitySimple {
		chosen, fallback = secondary, primary
	}
	if available(chosen) {
		return chosen
	}
	if available(fallback) {
		return fallback
	}
	return ""
}
