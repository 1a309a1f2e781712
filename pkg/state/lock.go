package state

import (
	"os"
	"path/filepath"

	"github.com/arthur-debert/jin/pkg/errors"
	"github.com/gofrs/flock"
)

// Locker serializes invocations that touch the workspace
type Locker interface {
	// TryLock takes the lock without waiting. The returned function
	// releases it.
	TryLock() (func() error, error)
}

// FileLocker is an advisory lock on a file
type FileLocker struct {
	Path string
}

// TryLock implements Locker. A lock held by another process is ErrLocked.
func (l FileLocker) TryLock() (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", filepath.Dir(l.Path))
	}

	lock := flock.New(l.Path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to acquire lock %s", l.Path).
			WithDetail("path", l.Path)
	}
	if !locked {
		return nil, errors.New(errors.ErrLocked, "another jin apply or resolve is running in this workspace").
			WithDetail("path", l.Path)
	}
	return lock.Unlock, nil
}
