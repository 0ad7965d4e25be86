package statestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/duetforge/agent-tools/internal/logging"
)

// Backup rotation defaults.
const (
	DefaultBackupInterval    = 10 * time.Minute
	DefaultBackupRetainCount = 10
	DefaultBackupRetainAge   = 7 * 24 * time.Hour

	snapshotPrefix = "state-"
	snapshotSuffix = ".json"
	// Nanosecond resolution keeps names unique and lexical order equal to
	// age order.
	snapshotTimeFormat = "20060102T150405.000000000"
)

// Rotator snapshots the last known-valid state document on a fixed cadence
// and prunes old snapshots. Snapshots are written with the same atomic-write
// discipline as the primary, under the same held lock as the triggering
// write, so backups never interleave with writers.
type Rotator struct {
	dir         string
	interval    time.Duration
	retainCount int
	retainAge   time.Duration

	lastSnapshot time.Time
	now          func() time.Time
}

// NewRotator returns a rotator over dir. Zero values select the defaults.
// The cadence is measured from the newest existing snapshot, so restarts do
// not reset the clock.
func NewRotator(dir string, interval time.Duration, retainCount int, retainAge time.Duration) *Rotator {
	if interval <= 0 {
		interval = DefaultBackupInterval
	}
	if retainCount <= 0 {
		retainCount = DefaultBackupRetainCount
	}
	if retainAge <= 0 {
		retainAge = DefaultBackupRetainAge
	}
	r := &Rotator{
		dir:         dir,
		interval:    interval,
		retainCount: retainCount,
		retainAge:   retainAge,
		now:         time.Now,
	}
	if names, err := r.snapshotNames(); err == nil && len(names) > 0 {
		if ts, err := snapshotTime(names[0]); err == nil {
			r.lastSnapshot = ts
		}
	}
	return r
}

// MaybeSnapshot persists a snapshot if at least one interval has elapsed
// since the last successful one. The caller guarantees data already passed
// validation; only validated documents may become snapshots.
func (r *Rotator) MaybeSnapshot(data []byte) error {
	if r.now().Sub(r.lastSnapshot) < r.interval {
		return nil
	}
	return r.Snapshot(data)
}

// Snapshot unconditionally persists a dated copy of data and prunes old
// snapshots. Used on cadence and after every successful recovery.
func (r *Rotator) Snapshot(data []byte) error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	ts := r.now().UTC()
	name := snapshotPrefix + ts.Format(snapshotTimeFormat) + snapshotSuffix
	if err := WriteFileAtomic(filepath.Join(r.dir, name), data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	r.lastSnapshot = ts

	if err := r.Prune(); err != nil {
		// A failed prune must not fail the write that triggered it.
		logging.Warn("Snapshot prune failed: %v", err)
	}
	return nil
}

// RestoreLatest returns the contents of the most recent snapshot that
// itself passes validation. If none validate, recovery fails with
// ErrNoSnapshot: the session must be treated as corrupted rather than
// fabricated from a default.
func (r *Rotator) RestoreLatest() ([]byte, error) {
	names, err := r.snapshotNames()
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			logging.Warn("Skipping unreadable snapshot %s: %v", name, err)
			continue
		}
		if err := ValidateBytes(data); err != nil {
			logging.Warn("Skipping invalid snapshot %s: %v", name, err)
			continue
		}
		return data, nil
	}
	return nil, ErrNoSnapshot
}

// Prune removes snapshots beyond the retention window (count and age) but
// never deletes the single most recent valid snapshot, so a recovery
// candidate always exists.
func (r *Rotator) Prune() error {
	names, err := r.snapshotNames()
	if err != nil {
		return err
	}

	// Locate the newest snapshot that validates; it is exempt from every
	// retention rule.
	keep := ""
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			continue
		}
		if ValidateBytes(data) == nil {
			keep = name
			break
		}
	}

	cutoff := r.now().UTC().Add(-r.retainAge)
	for i, name := range names {
		if name == keep {
			continue
		}
		ts, err := snapshotTime(name)
		expired := err == nil && ts.Before(cutoff)
		if i < r.retainCount && !expired {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("prune snapshot %s: %w", name, err)
		}
	}
	return nil
}

// SnapshotCount reports how many snapshots exist, for status output.
func (r *Rotator) SnapshotCount() int {
	names, err := r.snapshotNames()
	if err != nil {
		return 0
	}
	return len(names)
}

// snapshotNames lists snapshot file names, newest first.
func (r *Rotator) snapshotNames() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// snapshotTime recovers the creation time encoded in a snapshot name.
func snapshotTime(name string) (time.Time, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
	return time.Parse(snapshotTimeFormat, trimmed)
}
