package statestore

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrLockNotHeld is returned when releasing a lock this process no
	// longer owns, typically because a waiter reclaimed it as stale.
	ErrLockNotHeld = errors.New("lock not held")

	// ErrNoSnapshot is returned by RestoreLatest when no snapshot in the
	// backup directory passes validation.
	ErrNoSnapshot = errors.New("no valid snapshot available")
)

// LockTimeoutError is returned when the state lock could not be acquired
// within the configured bound against a live, non-stale holder. The caller
// must not proceed unsynchronized; retry with backoff is the recovery path.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
	Holder  string
}

func (e *LockTimeoutError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("lock on %s not acquired within %s (held by %s)", e.Path, e.Timeout, e.Holder)
	}
	return fmt.Sprintf("lock on %s not acquired within %s", e.Path, e.Timeout)
}

// ValidationError reports a structural defect in a candidate document.
// On read it triggers backup recovery; on write it rejects the mutation
// before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid state: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid state: %s", e.Reason)
}

// CorruptedStateError means neither the primary document nor any backup
// validates. It is fatal for the session: fabricating a default document
// here would silently erase session history, so the operator must decide.
type CorruptedStateError struct {
	Path      string
	Snapshots int
}

func (e *CorruptedStateError) Error() string {
	return fmt.Sprintf("session state at %s is corrupted and no valid backup exists (%d snapshots checked)", e.Path, e.Snapshots)
}
