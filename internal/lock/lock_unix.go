//go:build unix

package lock

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive flock, translating
// original_source/queersmission/filelock.py's fcntl.flock(fd, LOCK_EX) path.
// flock itself has no cancellation hook, so the blocking call runs on a
// helper goroutine and Acquire gives up on ctx instead.
func lockFile(ctx context.Context, f *os.File) error {
	done := make(chan error, 1)
	go func() { done <- unix.Flock(int(f.Fd()), unix.LOCK_EX) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
