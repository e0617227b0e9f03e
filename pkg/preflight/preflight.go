// Package preflight validates the destination directory before a backup
// run mutates anything: the directory must exist, be writable, and have
// enough free space for the uncompressed size of the selected files.
package preflight

import (
	"fmt"
	"os"

	"github.com/tarvault/tarvault/pkg/plog"
)

// CheckDestination verifies that dir exists and is a directory.
func CheckDestination(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("destination directory %s does not exist", dir)
		}
		return fmt.Errorf("failed to access destination directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination %s is not a directory", dir)
	}
	return nil
}

// CheckWritable probes that the destination accepts new files by creating
// and removing a scratch file.
func CheckWritable(dir string) error {
	probe, err := os.CreateTemp(dir, "tarvault-probe-*")
	if err != nil {
		return fmt.Errorf("destination directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		plog.Warn("Could not remove preflight probe file", "path", name, "error", err)
	}
	return nil
}

// CheckFreeSpace verifies that the destination's filesystem reports at
// least requiredBytes of available space. The requirement is the summed
// uncompressed size of the manifest, a deliberately pessimistic bound since
// the archive is compressed.
func CheckFreeSpace(dir string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}
	free, err := platformFreeSpace(dir)
	if err != nil {
		// Free-space probing is best effort; an exotic filesystem must not
		// block the backup.
		plog.Warn("Could not determine free space for destination", "path", dir, "error", err)
		return nil
	}
	if free < uint64(requiredBytes) {
		return fmt.Errorf("destination %s has %d bytes free but the selection needs up to %d bytes", dir, free, requiredBytes)
	}
	plog.Debug("Destination free space", "path", dir, "freeBytes", free, "requiredBytes", requiredBytes)
	return nil
}
