// Package translock implements the advisory tape-transfer lock file shared
// between a tape-export process and a recorder's chunking worker. The lock
// has throttling semantics, not mutual exclusion: chunking checks whether a
// transfer holds it and slows down, it never waits for it.
package translock

import (
	"fmt"

	"github.com/gofrs/flock"
)

// LockFileName is the well-known lock file inside the cache directory.
const LockFileName = "tape-transfer.lock"

// TransferLock is held by a tape-export session while a transfer runs.
type TransferLock struct {
	lock *flock.Flock
}

// New builds a lock handle for the given lock file path. Nothing is
// acquired until Acquire is called.
func New(path string) *TransferLock {
	return &TransferLock{lock: flock.New(path)}
}

// Acquire takes the lock, failing immediately if another process holds it.
func (t *TransferLock) Acquire() error {
	ok, err := t.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire transfer lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("transfer lock %s held by another process", t.lock.Path())
	}
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (t *TransferLock) Release() error {
	if !t.lock.Locked() {
		return nil
	}
	if err := t.lock.Unlock(); err != nil {
		return fmt.Errorf("release transfer lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (t *TransferLock) Path() string {
	return t.lock.Path()
}

// Held reports whether any process currently holds the lock at path. Used
// by chunking as its throttle check; the probe itself never blocks.
func Held(path string) bool {
	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil {
		// Treat probe failure as held so chunking errs on the side of
		// yielding bandwidth.
		return true
	}
	if !ok {
		return true
	}
	_ = probe.Unlock()
	return false
}
