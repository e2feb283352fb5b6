//go:build linux || darwin

package main

import "golang.org/x/sys/unix"

// checkDiskSpace returns the free megabytes on the filesystem holding
// path, and false when the path cannot be statted.
func checkDiskSpace(path string) (uint64, bool) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize) / (1024 * 1024), true
}
