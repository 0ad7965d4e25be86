// Package statestore persists the shared session document that every agent
// in a duet-loop run reads and mutates. One JSON file is the single source
// of truth for routing decisions, review verdicts, and session progress;
// this package keeps it valid, durable, and mutually excluded: a marker-file
// lock serializes writers, every write goes through a temp-file-then-rename
// atomic protocol, and timestamped backups allow recovery from a corrupted
// primary.
package statestore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current top-level schema version of SessionState.
const SchemaVersion = 1

// Complexity classifies a task for routing between the two back-ends.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// Verdict is the outcome recorded by a review of generated output.
type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictNeedsRepair Verdict = "needs_repair"
	VerdictRejected    Verdict = "rejected"
)

// Session status constants.
const (
	StatusInProgress  = "IN_PROGRESS"
	StatusComplete    = "COMPLETE"
	StatusFailed      = "FAILED"
	StatusInterrupted = "INTERRUPTED"
	StatusCancelled   = "CANCELLED"
)

// SessionState is the single persisted document describing one development
// session. It is created at session start, mutated field-by-field or
// wholesale throughout the session, and archived when the session ends.
//
// ArchitecturalDesign is a typed mapping from namespace key to an opaque
// payload. Each namespace is owned by exactly one producing component
// (router, reviewer, back-end wrapper); payloads round-trip unchanged so
// producers keep full flexibility without colliding with each other.
type SessionState struct {
	SchemaVersion       int                        `json:"schema_version"`
	SessionID           string                     `json:"session_id"`
	CreatedAt           string                     `json:"created_at"`
	LastUpdated         string                     `json:"last_updated"`
	Status              string                     `json:"status"`
	CurrentTask         string                     `json:"current_task"`
	Complexity          Complexity                 `json:"complexity"`
	AssignedAgent       string                     `json:"assigned_agent"`
	ArchitecturalDesign map[string]json.RawMessage `json:"architectural_design"`
	ReviewVerdict       Verdict                    `json:"review_verdict"`
	RepairAttempts      int                        `json:"repair_attempts"`
}

// NewSessionState returns a fresh IN_PROGRESS session for the given task.
func NewSessionState(task string) *SessionState {
	now := time.Now().UTC().Format(time.RFC3339)
	return &SessionState{
		SchemaVersion:       SchemaVersion,
		SessionID:           newSessionID(),
		CreatedAt:           now,
		LastUpdated:         now,
		Status:              StatusInProgress,
		CurrentTask:         task,
		ArchitecturalDesign: map[string]json.RawMessage{},
	}
}

// newSessionID builds a human-sortable session identifier:
// duet-20260823-143000-1a2b3c4d.
func newSessionID() string {
	ts := time.Now().UTC().Format("20060102-150405")
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("duet-%s-%s", ts, short)
}

// Marshal serializes the state deterministically as 4-space-indented JSON.
// Struct field order is fixed and map keys are sorted by encoding/json, so
// equal documents always produce identical bytes.
func Marshal(s *SessionState) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a state document previously produced by Marshal.
func Unmarshal(data []byte) (*SessionState, error) {
	var s SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if s.ArchitecturalDesign == nil {
		s.ArchitecturalDesign = map[string]json.RawMessage{}
	}
	return &s, nil
}

// Clone returns a deep copy, so callers can hand out state without aliasing
// the namespace payloads.
func (s *SessionState) Clone() *SessionState {
	dup := *s
	dup.ArchitecturalDesign = make(map[string]json.RawMessage, len(s.ArchitecturalDesign))
	for k, v := range s.ArchitecturalDesign {
		dup.ArchitecturalDesign[k] = append(json.RawMessage(nil), v...)
	}
	return &dup
}
