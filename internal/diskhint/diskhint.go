// Package diskhint gives the label streamer (persistence.FileStreamer) an
// advisory hook to tell the OS a file won't be reread soon, since label
// files are read exactly once per proving/verification pass and are
// usually far larger than useful to keep cached. Only the Linux
// posix_fadvise path is wired up; DropCache is a no-op on every other
// platform.
package diskhint

import "os"

// DropCache advises the kernel that f's already-read contents are
// unlikely to be needed again soon. Best-effort: callers should log a
// failure, not treat it as fatal.
func DropCache(f *os.File) error {
	return dropCache(f)
}
