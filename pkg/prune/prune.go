// Package prune deletes archives that the retention planner did not
// protect. Deletion failures are warnings, never fatal: a prune run always
// processes the full catalog and reports what happened to every entry.
package prune

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tarvault/tarvault/pkg/catalog"
	"github.com/tarvault/tarvault/pkg/plog"
	"github.com/tarvault/tarvault/pkg/retention"
)

// DefaultWorkers is the default size of the deletion worker pool. Parallel
// deletion mainly helps on network drives where per-file latency dominates.
const DefaultWorkers = 4

// Result reports the outcome for every catalog entry of a prune run.
// Kept and Deleted partition the catalog; Failed lists entries that should
// have been deleted but could not be.
type Result struct {
	Deleted []catalog.Archive
	Kept    []catalog.Archive
	Failed  []catalog.Archive
}

// Pruner deletes unprotected archives from the destination directory.
type Pruner struct {
	DryRun  bool
	Workers int
}

// New creates a Pruner. A non-positive worker count falls back to
// DefaultWorkers.
func New(dryRun bool, workers int) *Pruner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pruner{DryRun: dryRun, Workers: workers}
}

// Apply deletes (or in dry-run mode, reports) every archive not in the
// keep-set. The caller passes only real catalog entries; a synthetic
// dry-run archive represents a backup that would be created, not an
// existing file, and must never reach the pruner.
func (p *Pruner) Apply(ctx context.Context, archives []catalog.Archive, keep retention.KeepSet) (*Result, error) {
	result := &Result{}

	var toDelete []catalog.Archive
	for _, a := range archives {
		if keep.Contains(a.Path) {
			result.Kept = append(result.Kept, a)
		} else {
			toDelete = append(toDelete, a)
		}
	}

	if len(toDelete) == 0 {
		plog.Debug("No archives need deletion")
		return result, nil
	}

	if p.DryRun {
		for _, a := range toDelete {
			plog.Notice("[DRY RUN] DELETE", "path", a.Path)
		}
		result.Deleted = toDelete
		return result, nil
	}

	plog.Info("Deleting outdated archives", "count", len(toDelete))

	// Delete in parallel with a bounded pool. Outcomes are recorded per
	// index so the reported order stays deterministic regardless of which
	// worker finished first.
	deleted := make([]bool, len(toDelete))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i, a := range toDelete {
		i, a := i, a
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			ok := p.deleteArchive(a)
			mu.Lock()
			deleted[i] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, a := range toDelete {
		if deleted[i] {
			result.Deleted = append(result.Deleted, a)
		} else {
			result.Failed = append(result.Failed, a)
		}
	}
	return result, nil
}

// deleteArchive removes a single archive file. Before unlinking it
// re-verifies that the name still matches the archive pattern and that the
// path is still a regular file, guarding against races and tampering
// between the catalog scan and the deletion.
func (p *Pruner) deleteArchive(a catalog.Archive) bool {
	name := filepath.Base(a.Path)
	if !catalog.MatchesPattern(name) {
		plog.Warn("Refusing to delete path that no longer matches the archive pattern", "path", a.Path)
		return false
	}

	info, err := os.Lstat(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already gone; the goal state is reached.
			plog.Debug("Archive already removed", "path", a.Path)
			return true
		}
		plog.Warn("Failed to stat archive before deletion", "path", a.Path, "error", err)
		return false
	}
	if !info.Mode().IsRegular() {
		plog.Warn("Refusing to delete non-regular file", "path", a.Path)
		return false
	}

	plog.Notice("DELETE", "path", a.Path)
	if err := os.Remove(a.Path); err != nil {
		plog.Warn("Failed to delete outdated archive", "path", a.Path, "error", err)
		return false
	}
	return true
}
