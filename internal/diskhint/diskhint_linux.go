//go:build linux

package diskhint

import (
	"os"

	"golang.org/x/sys/unix"
)

// dropCache issues posix_fadvise(..., POSIX_FADV_DONTNEED) for the whole
// file.
func dropCache(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}
