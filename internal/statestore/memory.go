package statestore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is an in-process Locker backed by a buffered channel. It has
// the same timeout semantics as FileLocker but no staleness reclamation:
// an in-process holder cannot crash without taking the waiters with it.
// Intended for tests and single-process embedding.
type MemoryLocker struct {
	sem    chan struct{}
	holder chan string
}

// NewMemoryLocker returns an unlocked MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{
		sem:    make(chan struct{}, 1),
		holder: make(chan string, 1),
	}
	m.sem <- struct{}{}
	return m
}

// Acquire implements Locker.
func (m *MemoryLocker) Acquire(ctx context.Context, timeout time.Duration) (*Token, error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.sem:
		id := uuid.NewString()
		m.holder <- id
		return &Token{HolderID: id, AcquiredAt: time.Now().UTC(), release: m.releaseToken}, nil
	case <-timer.C:
		return nil, &LockTimeoutError{Path: "(memory)", Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release implements Locker.
func (m *MemoryLocker) Release(tok *Token) error {
	if tok == nil || tok.release == nil {
		return ErrLockNotHeld
	}
	return tok.release(tok)
}

func (m *MemoryLocker) releaseToken(tok *Token) error {
	select {
	case id := <-m.holder:
		if id != tok.HolderID {
			m.holder <- id
			return ErrLockNotHeld
		}
		m.sem <- struct{}{}
		return nil
	default:
		return ErrLockNotHeld
	}
}
