package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock guards a RunState / raw-log pair. Two runs writing the same files
// interleave unpredictably, so the first run takes an advisory lock beside
// the state file and later ones are refused up front.
type RunLock struct {
	fl *flock.Flock
}

// AcquireRunLock takes the lock for statePath without blocking. A held lock
// is reported as an error naming the lock file.
func AcquireRunLock(statePath string) (*RunLock, error) {
	lockPath := statePath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another run is active (lock held: %s)", lockPath)
	}
	return &RunLock{fl: fl}, nil
}

func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
