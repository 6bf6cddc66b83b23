//go:build unix

package fsutil

import "golang.org/x/sys/unix"

// DiskUsage reports the total and available bytes of the filesystem holding
// path, read directly via statfs rather than the RPC client's freeSpace
// fallback (spec.md §4.E).
func DiskUsage(path string) (total, free int64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total = int64(stat.Blocks) * int64(stat.Bsize)
	free = int64(stat.Bavail) * int64(stat.Bsize)
	return total, free, nil
}
