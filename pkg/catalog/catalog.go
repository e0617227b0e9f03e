// Package catalog discovers existing backup archives in a destination
// directory. The archive filename is the single source of truth for the
// backup timestamp; an archive whose name does not match the fixed pattern
// is invisible to the rest of the system and can never be pruned.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/tarvault/tarvault/pkg/plog"
)

// TimestampLayout is the Go time layout of the timestamp embedded in every
// archive filename, e.g. "2025-06-21_13-19-45_backup.tar.gz".
const TimestampLayout = "2006-01-02_15-04-05"

// nameSuffix separates the timestamp from the archive extension.
const nameSuffix = "_backup"

// archiveNameRe matches the fixed archive naming pattern. The timestamp is
// validated structurally here and semantically by time.Parse; a name that
// matches the pattern but carries an impossible date (month 13) is
// quarantined, never deleted.
var archiveNameRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})_backup\.(tar\.gz|tar\.zst)$`)

// Archive is one discovered backup archive. Its identity is the timestamp
// parsed from the filename; the file modification time only breaks ties
// between two archives whose names parse to the same instant.
type Archive struct {
	Timestamp time.Time
	Path      string
	ModTime   time.Time
}

// Name returns the archive's base filename.
func (a Archive) Name() string {
	return filepath.Base(a.Path)
}

// Scan is the result of reading a destination directory.
type Scan struct {
	// Archives holds all parseable archives, sorted newest first.
	Archives []Archive
	// Unparseable holds names that match the archive pattern but whose
	// embedded timestamp failed to parse. They are preserved on disk and
	// excluded from all retention decisions.
	Unparseable []string
}

// Latest returns the timestamp of the newest archive, or false when the
// destination holds no parseable archives.
func (s *Scan) Latest() (time.Time, bool) {
	if len(s.Archives) == 0 {
		return time.Time{}, false
	}
	return s.Archives[0].Timestamp, true
}

// FileName builds the canonical archive filename for a run timestamp.
// Timestamps are rendered in UTC so that names parse back to the exact
// instant regardless of the host timezone.
func FileName(ts time.Time, ext string) string {
	return ts.UTC().Format(TimestampLayout) + nameSuffix + "." + ext
}

// MatchesPattern reports whether name looks like an archive produced by a
// backup run. The pruner re-checks this before every deletion.
func MatchesPattern(name string) bool {
	return archiveNameRe.MatchString(name)
}

// ParseName extracts the embedded timestamp from an archive filename.
// The second return value reports whether the name matched the archive
// pattern at all; a pattern match with a parse error means the name is
// ambiguous and the file must be left alone.
func ParseName(name string) (time.Time, bool, error) {
	m := archiveNameRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(TimestampLayout, m[1])
	if err != nil {
		return time.Time{}, true, err
	}
	return ts, true, nil
}

// ScanDir enumerates the immediate children of the destination directory
// and parses every matching archive filename. It never recurses into
// subdirectories. Results are sorted newest first, with the file
// modification time and then the name as deterministic tie-breakers.
func ScanDir(dir string) (*Scan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read destination directory %s: %w", dir, err)
	}

	scan := &Scan{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ts, matched, err := ParseName(name)
		if !matched {
			continue
		}
		if err != nil {
			plog.Warn("Archive name matches the backup pattern but its timestamp is unparseable; file will be preserved",
				"name", name, "reason", err)
			scan.Unparseable = append(scan.Unparseable, name)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// The file vanished mid-scan. Without a mod time we can still
			// order by timestamp, so keep it.
			plog.Debug("Could not stat archive during scan", "name", name, "reason", err)
		}
		archive := Archive{
			Timestamp: ts,
			Path:      filepath.Join(dir, name),
		}
		if info != nil {
			archive.ModTime = info.ModTime()
		}
		scan.Archives = append(scan.Archives, archive)
	}

	sort.Slice(scan.Archives, func(i, j int) bool {
		a, b := scan.Archives[i], scan.Archives[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.After(b.ModTime)
		}
		return a.Path > b.Path
	})
	sort.Strings(scan.Unparseable)

	return scan, nil
}
