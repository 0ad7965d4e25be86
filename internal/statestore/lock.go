package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/duetforge/agent-tools/internal/logging"
)

// Lock timing defaults. Acquisition polls with doubling backoff, capped so
// a waiter behind a long critical section is not starved by its own sleep.
const (
	DefaultLockTimeout = 5 * time.Second
	DefaultStaleGrace  = 30 * time.Second

	lockPollInterval = 10 * time.Millisecond
	lockPollMax      = 250 * time.Millisecond
)

// Token is the exclusive mutual-exclusion token for the state document.
// It must be passed back to Release by the same holder.
type Token struct {
	HolderID   string
	AcquiredAt time.Time

	release func(*Token) error
}

// Locker grants exclusive access to the state document. The production
// implementation coordinates across processes through a marker file; tests
// substitute NewMemoryLocker to avoid real filesystem races.
type Locker interface {
	// Acquire blocks until the lock is free, the timeout elapses
	// (*LockTimeoutError), or ctx is cancelled.
	Acquire(ctx context.Context, timeout time.Duration) (*Token, error)

	// Release frees the lock. Returns ErrLockNotHeld if the token no
	// longer owns it, e.g. after a staleness reclamation.
	Release(tok *Token) error
}

// lockInfo is the JSON body of the marker file. The recorded timeout lets a
// later waiter judge staleness against the holder's own expectation rather
// than its own.
type lockInfo struct {
	HolderID   string    `json:"holder_id"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	TimeoutMS  int64     `json:"timeout_ms"`
}

// stale reports whether the marker has outlived its own timeout plus the
// grace period and is presumed abandoned by a crashed holder. Elapsed time
// cannot distinguish a slow-but-alive holder from a dead one; the grace
// period only narrows that window.
func (li *lockInfo) stale(grace time.Duration, now time.Time) bool {
	age := now.Sub(li.AcquiredAt)
	return age > time.Duration(li.TimeoutMS)*time.Millisecond+grace
}

// FileLocker implements Locker with an exclusive marker file next to the
// state document. Creation uses O_CREATE|O_EXCL, which is atomic on every
// filesystem the loop runs on, so at most one process holds the marker.
type FileLocker struct {
	markerPath string
	grace      time.Duration
}

// NewFileLocker returns a Locker whose marker is <statePath>.lock. A zero
// grace means DefaultStaleGrace.
func NewFileLocker(statePath string, grace time.Duration) *FileLocker {
	if grace <= 0 {
		grace = DefaultStaleGrace
	}
	return &FileLocker{markerPath: statePath + ".lock", grace: grace}
}

// Acquire implements Locker.
func (l *FileLocker) Acquire(ctx context.Context, timeout time.Duration) (*Token, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	deadline := time.Now().Add(timeout)
	delay := lockPollInterval

	for {
		tok, err := l.tryAcquire(timeout)
		if err == nil {
			return tok, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock marker: %w", err)
		}

		// Marker exists. A stale or unreadable marker is reclaimed
		// immediately; a live one means we wait.
		holder, reclaimed := l.reclaimIfStale()
		if reclaimed {
			continue
		}

		if time.Now().After(deadline) {
			return nil, &LockTimeoutError{Path: l.markerPath, Timeout: timeout, Holder: holder}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > lockPollMax {
			delay = lockPollMax
		}
	}
}

// tryAcquire attempts a single exclusive marker creation.
func (l *FileLocker) tryAcquire(timeout time.Duration) (*Token, error) {
	f, err := os.OpenFile(l.markerPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	info := lockInfo{
		HolderID:   uuid.NewString(),
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
		TimeoutMS:  timeout.Milliseconds(),
	}
	data, err := json.MarshalIndent(info, "", "    ")
	if err != nil {
		f.Close()
		_ = os.Remove(l.markerPath)
		return nil, fmt.Errorf("marshal lock info: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(l.markerPath)
		return nil, fmt.Errorf("write lock info: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(l.markerPath)
		return nil, fmt.Errorf("close lock marker: %w", err)
	}

	return &Token{HolderID: info.HolderID, AcquiredAt: info.AcquiredAt, release: l.releaseToken}, nil
}

// reclaimIfStale removes an abandoned marker. Returns the live holder's ID
// (for error reporting) and whether a reclamation happened.
//
// Removing the marker directly would race: between reading the marker and
// unlinking it, a faster waiter can reclaim it and create a fresh one, and
// the unlink then destroys a live lock. The marker is therefore claimed
// first with an atomic rename to a name only this waiter knows (losers of
// the race get ENOENT and re-poll), re-verified under the private name, and
// only then removed. A live marker grabbed by mistake is handed back.
func (l *FileLocker) reclaimIfStale() (holder string, reclaimed bool) {
	data, err := os.ReadFile(l.markerPath)
	if err != nil {
		// Holder released between our create attempt and this read.
		return "", os.IsNotExist(err)
	}

	var info lockInfo
	readable := json.Unmarshal(data, &info) == nil
	if readable && !info.stale(l.grace, time.Now().UTC()) {
		return info.HolderID, false
	}

	claim := l.markerPath + ".claim-" + uuid.NewString()
	if err := os.Rename(l.markerPath, claim); err != nil {
		return "", os.IsNotExist(err)
	}

	// The marker can change hands between the read and the rename, so the
	// staleness judgment must be repeated on the claimed file.
	if claimed, err := os.ReadFile(claim); err == nil {
		var cur lockInfo
		if json.Unmarshal(claimed, &cur) == nil && !cur.stale(l.grace, time.Now().UTC()) {
			if err := os.Rename(claim, l.markerPath); err != nil {
				logging.Warn("Could not hand back live lock marker %s: %v", l.markerPath, err)
			}
			return cur.HolderID, false
		}
	}

	if readable {
		logging.Warn("Reclaiming stale lock %s (holder %s, pid %d, acquired %s)",
			l.markerPath, info.HolderID, info.PID, info.AcquiredAt.Format(time.RFC3339))
	} else {
		logging.Warn("Reclaiming unreadable lock marker %s", l.markerPath)
	}
	_ = os.Remove(claim)
	return "", true
}

// Release implements Locker.
func (l *FileLocker) Release(tok *Token) error {
	if tok == nil || tok.release == nil {
		return ErrLockNotHeld
	}
	return tok.release(tok)
}

// releaseToken frees the marker. The same rename-based claim as reclamation
// is used here: verifying ownership on the primary path and then removing it
// would let a long-running holder delete a reclaimer's fresh marker.
func (l *FileLocker) releaseToken(tok *Token) error {
	claim := l.markerPath + ".release-" + tok.HolderID
	if err := os.Rename(l.markerPath, claim); err != nil {
		if os.IsNotExist(err) {
			return ErrLockNotHeld
		}
		return fmt.Errorf("claim lock marker: %w", err)
	}

	data, err := os.ReadFile(claim)
	if err != nil {
		_ = os.Remove(claim)
		return fmt.Errorf("read lock marker: %w", err)
	}

	var info lockInfo
	if err := json.Unmarshal(data, &info); err == nil && info.HolderID != tok.HolderID {
		// Another process reclaimed our marker while we ran long; the
		// marker belongs to the new holder, hand it back.
		if err := os.Rename(claim, l.markerPath); err != nil {
			logging.Warn("Could not hand back reclaimed lock marker %s: %v", l.markerPath, err)
		}
		return ErrLockNotHeld
	}

	if err := os.Remove(claim); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock marker: %w", err)
	}
	return nil
}
