package artifact

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock guards a run directory against concurrent runs. The underlying file
// lock is advisory: both runs must go through lorapipe for it to hold.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes an exclusive lock on the run directory. It fails
// immediately when another run already holds it.
func AcquireLock(runDir string) (*Lock, error) {
	fl := flock.New(filepath.Join(runDir, ".lorapipe.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock run directory %s: %w", runDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("run directory %s is locked by another run", runDir)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
