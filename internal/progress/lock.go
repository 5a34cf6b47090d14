package progress

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process is driving the same run.
var ErrLocked = errors.New("run is locked by another process")

// RunLock is an advisory lock on a run's progress files.
type RunLock struct {
	lock *flock.Flock
}

// AcquireLock takes the run lock without blocking.
func AcquireLock(layout Layout) (*RunLock, error) {
	lock := flock.New(layout.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", layout.LockPath(), ErrLocked)
	}
	return &RunLock{lock: lock}, nil
}

// Release unlocks the run.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
