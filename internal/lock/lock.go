// Package lock provides a process-wide advisory file lock so concurrent
// post-action invocations against the same seed directory serialize instead
// of racing, per spec.md §5. The platform-specific half lives in
// lock_unix.go and lock_windows.go.
package lock

import (
	"context"
	"os"

	"github.com/seedhook/seedhook/internal/apperr"
)

const fileMode = 0o666

// Lock is an exclusive, blocking file lock held for the lifetime of one
// invocation. The zero value is not usable; build one with New.
type Lock struct {
	path string
	file *os.File
}

// New returns a Lock bound to path. The lock file is created on first
// Acquire if it does not already exist.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Acquire blocks until the lock is held or ctx is done. Calling Acquire on
// an already-held Lock is a no-op.
func (l *Lock) Acquire(ctx context.Context) error {
	if l.file != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, fileMode)
	if err != nil {
		return apperr.Wrapf(err, "open lock file %q", l.path)
	}
	if err := lockFile(ctx, f); err != nil {
		f.Close()
		return apperr.Wrapf(err, "acquire lock %q", l.path)
	}
	l.file = f
	return nil
}

// Release unlocks and closes the underlying file handle. Safe to call on an
// unacquired or already-released Lock.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := unlockFile(f); err != nil {
		f.Close()
		return apperr.Wrapf(err, "release lock %q", l.path)
	}
	return f.Close()
}
