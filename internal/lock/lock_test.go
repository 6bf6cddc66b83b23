package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seedhook.lock")
	l := New(path)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx), "re-Acquire on held lock should be a no-op")
	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "double Release should be a no-op")
}

func TestSecondAcquireBlocksUntilReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seedhook.lock")
	first := New(path)
	second := New(path)

	require.NoError(t, first.Acquire(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		acquired <- second.Acquire(ctx)
	}()

	select {
	case err := <-acquired:
		t.Fatalf("second Acquire returned before release, err=%v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, first.Release())
	require.NoError(t, <-acquired, "second Acquire after release")
	second.Release()
}
