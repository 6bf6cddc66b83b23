// Package fsutil holds the small path and size helpers shared by the
// classifier, the storage manager, and the copy primitive.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsSubpath reports whether child equals parent or lies strictly beneath it.
// Both paths are expected to already be absolute and canonicalized; this
// only normalizes separators and appends a trailing separator before the
// prefix test so that "/a/bc" does not match parent "/a/b".
func IsSubpath(child, parent string) bool {
	child = filepath.Clean(child)
	parent = filepath.Clean(parent)
	if child == parent {
		return true
	}
	if !strings.HasSuffix(parent, string(os.PathSeparator)) {
		parent += string(os.PathSeparator)
	}
	return strings.HasPrefix(child+string(os.PathSeparator), parent)
}

var iecSuffixes = [...]string{"", "Ki", "Mi", "Gi", "Ti", "Pi", "Ei", "Zi"}

// HumanSize renders n bytes using IEC units up to YiB, two decimal places.
// Negative sizes keep their sign; zero renders as "0.00 B".
func HumanSize(n int64) string {
	size := float64(n)
	for _, suffix := range iecSuffixes {
		if size > -1024 && size < 1024 {
			return fmt.Sprintf("%.2f %sB", size, suffix)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f YiB", size)
}

// Normalize applies the sole transformation the classifier performs before
// testing a string against a category regex: replace underscores with
// hyphens, then lowercase.
func Normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "-"))
}

// RealPath canonicalizes path, resolving symlinks the way EvalSymlinks does.
// It is a thin wrapper over filepath.EvalSymlinks.
func RealPath(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}
