//go:build windows

package lock

import (
	"context"
	"os"

	"golang.org/x/sys/windows"
)

// lockFile takes an exclusive, blocking LockFileEx lock, translating
// original_source/queersmission/filelock.py's msvcrt.locking retry loop
// into the native Windows lock API.
func lockFile(ctx context.Context, f *os.File) error {
	ol := new(windows.Overlapped)
	done := make(chan error, 1)
	go func() {
		done <- windows.LockFileEx(
			windows.Handle(f.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK,
			0, 1, 0, ol,
		)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}
