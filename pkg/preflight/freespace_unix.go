//go:build !windows

package preflight

import (
	"golang.org/x/sys/unix"
)

// platformFreeSpace returns the bytes available to an unprivileged caller
// on the filesystem holding path.
func platformFreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
