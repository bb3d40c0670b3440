package organize

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockName is the lock file kept in a source folder while it is being
// organized or restored.
const LockName = ".tidy.lock"

func lockPath(source string) string {
	return filepath.Join(source, LockName)
}

func acquireLock(source string) (*flock.Flock, error) {
	lock := flock.New(lockPath(source))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, source)
	}
	return lock, nil
}

// lockSource recreates source if an earlier run left it missing and locks it.
func lockSource(source string) (*flock.Flock, error) {
	if err := os.MkdirAll(source, 0o755); err != nil {
		return nil, fmt.Errorf("recreate source: %w", err)
	}
	return acquireLock(source)
}

func releaseLock(lock *flock.Flock) {
	_ = lock.Unlock()
}
