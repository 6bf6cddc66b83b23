package copyutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFileIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	require.NoError(t, copyFileAtomic(src, dst, 0o644))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got, "first copy")

	require.NoError(t, copyFileAtomic(src, dst, 0o644))
	got2, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got2, "second copy")
}

func TestCopyDirMerges(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "keepme.txt"), []byte("keep"), 0o644))

	require.NoError(t, copyTree(src, dst))

	got, _ := os.ReadFile(filepath.Join(dst, "a.txt"))
	assert.Equal(t, "a", string(got))

	got, _ = os.ReadFile(filepath.Join(dst, "keepme.txt"))
	assert.Equal(t, "keep", string(got), "expected pre-existing dst entry to survive merge")
}

func TestCopyKindMismatch(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(dst, 0o755))

	assert.Error(t, Copy(src, dst), "expected kind-mismatch error")
}

func TestCopyPreservesSymlink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "real.txt"), []byte("x"), 0o644))
	if err := os.Symlink("real.txt", filepath.Join(src, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	require.NoError(t, copyTree(src, dst))
	info, err := os.Lstat(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "expected link.txt to remain a symlink")
}
