package pathselect

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tarvault/tarvault/pkg/plog"
)

// ErrEmptySelection is returned when zero files survive filtering. Creating
// an empty archive would mask misconfiguration, so a normal-mode run must
// treat this as fatal; dry-run callers downgrade it to a warning.
var ErrEmptySelection = errors.New("no files matched the selection rules")

// Manifest is the ordered result of a selection pass.
type Manifest struct {
	// Files holds the selected absolute paths, sorted for reproducible
	// ordering within a run.
	Files []string
	// TotalBytes is the summed size of all selected files, used for
	// destination free-space preflight.
	TotalBytes int64
	// Warnings counts unreadable paths that were skipped during traversal.
	Warnings int
}

// Build walks every include root, applies the rule set and criteria to each
// regular file, and returns the final manifest. Include rules that resolve
// to a single file are filtered directly. Permission errors on individual
// subtrees are skipped with a warning; only context cancellation aborts the
// traversal.
func Build(ctx context.Context, rules *RuleSet, criteria Criteria) (*Manifest, error) {
	m := &Manifest{}
	seen := make(map[string]struct{})

	add := func(path string, size int64) {
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		m.Files = append(m.Files, path)
		m.TotalBytes += size
	}

	for _, root := range rules.IncludeRoots() {
		info, err := os.Stat(root)
		if err != nil {
			plog.Warn("Skipping unreadable include path", "path", root, "error", err)
			m.Warnings++
			continue
		}

		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				plog.Debug("Include path is not a regular file, skipping", "path", root)
				continue
			}
			cand := Candidate{Path: root, Size: info.Size(), ModTime: info.ModTime()}
			if rules.Includes(root) && criteria.Matches(cand) {
				add(root, info.Size())
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if walkErr != nil {
				plog.Warn("Skipping unreadable path during traversal", "path", path, "error", walkErr)
				m.Warnings++
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				// Prune excluded subtrees instead of testing every
				// descendant individually.
				if !rules.Includes(path) {
					return filepath.SkipDir
				}
				return nil
			}

			// WalkDir does not follow symlinks, so every visited path kept
			// here is already in canonical form relative to its root.
			if !d.Type().IsRegular() {
				return nil
			}
			if !rules.Includes(path) {
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				plog.Warn("Skipping file with unreadable metadata", "path", path, "error", err)
				m.Warnings++
				return nil
			}

			cand := Candidate{Path: path, Size: fi.Size(), ModTime: fi.ModTime()}
			if !criteria.Matches(cand) {
				return nil
			}
			add(path, fi.Size())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(m.Files)
	return m, nil
}
