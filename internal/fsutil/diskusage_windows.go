//go:build windows

package fsutil

import "golang.org/x/sys/windows"

// DiskUsage reports the total and available bytes of the volume holding path.
func DiskUsage(path string) (total, free int64, err error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	var freeAvail, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeAvail, &totalBytes, &totalFree); err != nil {
		return 0, 0, err
	}
	return int64(totalBytes), int64(freeAvail), nil
}
