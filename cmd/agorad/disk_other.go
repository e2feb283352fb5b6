//go:build !linux && !darwin

package main

// checkDiskSpace has no implementation on this platform; the daemon
// simply skips the low-disk warning.
func checkDiskSpace(path string) (uint64, bool) {
	return 0, false
}
