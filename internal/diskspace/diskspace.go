// Package diskspace reports filesystem capacity for the cache directory so
// recording and chunking can self-stop before the disk fills.
package diskspace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// StatfsFunc reports (total, free) bytes for the filesystem containing path.
// Tests swap in a fake.
type StatfsFunc func(path string) (total, free uint64, err error)

// Free returns the bytes available to unprivileged writers on the
// filesystem containing path.
func Free(path string) (uint64, error) {
	_, free, err := Statfs(path)
	return free, err
}

// Statfs is the real StatfsFunc.
func Statfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
