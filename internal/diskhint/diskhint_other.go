//go:build !linux

package diskhint

import "os"

// dropCache is a no-op outside Linux: posix_fadvise has no portable
// equivalent and the hint is advisory, not required.
func dropCache(f *os.File) error { return nil }
