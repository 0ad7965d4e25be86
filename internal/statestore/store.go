package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/duetforge/agent-tools/internal/logging"
)

// Store exposes the read/update/write operations every agent uses. It owns
// the primary state file, its lock marker, and the backup directory; no
// other component touches those paths directly.
//
// Every mutation runs as a single critical section:
//
//	Idle -> LockAcquired -> Validated -> Written -> (Snapshotted) -> Released
//
// with lock release guaranteed on the timeout and validation failure exits.
type Store struct {
	path        string
	locker      Locker
	rotator     *Rotator
	lockTimeout time.Duration
}

// Options configures a Store. Zero values select production defaults:
// a FileLocker on the state path and a Rotator in <dir>/backups.
type Options struct {
	// Path is the primary state file location. Required.
	Path string

	// Locker overrides the cross-process marker-file lock, letting tests
	// substitute an in-memory lock.
	Locker Locker

	// Rotator overrides the backup rotator.
	Rotator *Rotator

	// LockTimeout bounds every lock acquisition. Zero means
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// New returns a Store over opts.Path.
func New(opts Options) *Store {
	locker := opts.Locker
	if locker == nil {
		locker = NewFileLocker(opts.Path, 0)
	}
	rotator := opts.Rotator
	if rotator == nil {
		rotator = NewRotator(filepath.Join(filepath.Dir(opts.Path), "backups"), 0, 0, 0)
	}
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &Store{
		path:        opts.Path,
		locker:      locker,
		rotator:     rotator,
		lockTimeout: timeout,
	}
}

// Path returns the primary state file location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a primary state document is present, without
// judging its validity.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// ReadState returns the current session state under the lock. A missing or
// invalid primary is recovered from the most recent valid backup, which is
// also persisted back to the primary path; if no backup validates either,
// ReadState fails with *CorruptedStateError and writes nothing.
func (s *Store) ReadState(ctx context.Context) (*SessionState, error) {
	tok, err := s.locker.Acquire(ctx, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer s.release(tok)

	return s.readLocked()
}

// WriteState validates the candidate document and persists it atomically
// under the lock, snapshotting on cadence. An invalid candidate is rejected
// before anything reaches disk.
func (s *Store) WriteState(ctx context.Context, doc *SessionState) error {
	if err := ValidateState(doc); err != nil {
		return err
	}

	tok, err := s.locker.Acquire(ctx, s.lockTimeout)
	if err != nil {
		return err
	}
	defer s.release(tok)

	return s.writeLocked(doc)
}

// Update applies fn to the current state and writes the result back within
// the same held lock, one critical section, so concurrent updaters can
// never lose each other's writes between read and write.
func (s *Store) Update(ctx context.Context, fn func(*SessionState) error) (*SessionState, error) {
	tok, err := s.locker.Acquire(ctx, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer s.release(tok)

	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := ValidateState(doc); err != nil {
		return nil, err
	}
	if err := s.writeLocked(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateField mutates one named top-level field. Unknown or immutable
// fields and mismatched value types fail with *ValidationError before
// anything is persisted.
func (s *Store) UpdateField(ctx context.Context, name string, value any) (*SessionState, error) {
	return s.Update(ctx, func(doc *SessionState) error {
		return setField(doc, name, value)
	})
}

// UpdateNamespace sets one architectural_design entry. Each namespace key
// is owned by a single producing component; payloads are stored opaquely
// and round-trip unchanged.
func (s *Store) UpdateNamespace(ctx context.Context, key string, payload json.RawMessage) (*SessionState, error) {
	return s.Update(ctx, func(doc *SessionState) error {
		if key == "" {
			return &ValidationError{Field: "architectural_design", Reason: "namespace key must not be empty"}
		}
		if !json.Valid(payload) {
			return &ValidationError{Field: "architectural_design." + key, Reason: "payload is not valid JSON"}
		}
		if doc.ArchitecturalDesign == nil {
			doc.ArchitecturalDesign = map[string]json.RawMessage{}
		}
		doc.ArchitecturalDesign[key] = append(json.RawMessage(nil), payload...)
		return nil
	})
}

// GetState is the lock-optional inspection read: it tolerates staleness
// relative to concurrent writers but still never returns a structurally
// invalid document. On corruption it falls back to the latest valid backup
// without repairing the primary; repairs require the lock.
func (s *Store) GetState() (*SessionState, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		if vErr := ValidateBytes(data); vErr == nil {
			return Unmarshal(data)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	snap, rErr := s.rotator.RestoreLatest()
	if rErr != nil {
		if errors.Is(rErr, ErrNoSnapshot) {
			return nil, &CorruptedStateError{Path: s.path, Snapshots: s.rotator.SnapshotCount()}
		}
		return nil, rErr
	}
	return Unmarshal(snap)
}

// readLocked loads and validates the primary document, recovering from
// backup when needed. Caller holds the lock.
func (s *Store) readLocked() (*SessionState, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		vErr := ValidateBytes(data)
		if vErr == nil {
			return Unmarshal(data)
		}
		logging.Warn("State file %s failed validation (%v), recovering from backup", s.path, vErr)
	case os.IsNotExist(err):
		logging.Warn("State file %s is missing, recovering from backup", s.path)
	default:
		return nil, fmt.Errorf("read state file: %w", err)
	}

	return s.recoverLocked()
}

// recoverLocked adopts the most recent valid backup as the current state:
// it repairs the primary path atomically and snapshots the recovery so a
// fresh recovery candidate exists. Caller holds the lock.
func (s *Store) recoverLocked() (*SessionState, error) {
	snap, err := s.rotator.RestoreLatest()
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return nil, &CorruptedStateError{Path: s.path, Snapshots: s.rotator.SnapshotCount()}
		}
		return nil, err
	}

	if err := WriteFileAtomic(s.path, snap); err != nil {
		return nil, fmt.Errorf("repair state file: %w", err)
	}
	if err := s.rotator.Snapshot(snap); err != nil {
		logging.Warn("Post-recovery snapshot failed: %v", err)
	}

	logging.Success("Recovered session state from backup into %s", s.path)
	return Unmarshal(snap)
}

// writeLocked stamps, serializes, and atomically persists the document,
// then snapshots on cadence. Caller holds the lock and has validated doc.
func (s *Store) writeLocked(doc *SessionState) error {
	doc.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(s.path, data); err != nil {
		return err
	}
	if err := s.rotator.MaybeSnapshot(data); err != nil {
		logging.Warn("Snapshot failed: %v", err)
	}
	return nil
}

// release frees the lock on every exit path of a critical section.
func (s *Store) release(tok *Token) {
	if err := s.locker.Release(tok); err != nil {
		logging.Warn("Lock release failed: %v", err)
	}
}

// setField applies a single named mutation. session_id, created_at, and
// schema_version are immutable once the session exists.
func setField(doc *SessionState, name string, value any) error {
	switch name {
	case "current_task":
		v, err := asString(name, value)
		if err != nil {
			return err
		}
		doc.CurrentTask = v
	case "status":
		v, err := asString(name, value)
		if err != nil {
			return err
		}
		doc.Status = v
	case "complexity":
		v, err := asString(name, value)
		if err != nil {
			return err
		}
		doc.Complexity = Complexity(v)
	case "assigned_agent":
		v, err := asString(name, value)
		if err != nil {
			return err
		}
		doc.AssignedAgent = v
	case "review_verdict":
		v, err := asString(name, value)
		if err != nil {
			return err
		}
		doc.ReviewVerdict = Verdict(v)
	case "repair_attempts":
		switch v := value.(type) {
		case int:
			doc.RepairAttempts = v
		case float64:
			if v != math.Trunc(v) {
				return &ValidationError{Field: name, Reason: "must be an integer"}
			}
			doc.RepairAttempts = int(v)
		default:
			return &ValidationError{Field: name, Reason: "must be an integer"}
		}
	default:
		return &ValidationError{Field: name, Reason: "unknown or immutable field"}
	}
	return nil
}

func asString(field string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case Complexity:
		return string(v), nil
	case Verdict:
		return string(v), nil
	default:
		return "", &ValidationError{Field: field, Reason: "must be a string"}
	}
}
