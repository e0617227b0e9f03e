// Package engine orchestrates one backup run from start to finish:
// selection, archive creation, catalog rescan, retention planning, and
// pruning. Execution is strictly sequential; the destination directory's
// contents are the only persisted state and are rescanned at the start of
// every run. A destination lock guards real runs against concurrent
// processes targeting the same directory.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tarvault/tarvault/pkg/catalog"
	"github.com/tarvault/tarvault/pkg/config"
	"github.com/tarvault/tarvault/pkg/destlock"
	"github.com/tarvault/tarvault/pkg/flagparse"
	"github.com/tarvault/tarvault/pkg/metrics"
	"github.com/tarvault/tarvault/pkg/patharchive"
	"github.com/tarvault/tarvault/pkg/pathselect"
	"github.com/tarvault/tarvault/pkg/plog"
	"github.com/tarvault/tarvault/pkg/preflight"
	"github.com/tarvault/tarvault/pkg/prune"
	"github.com/tarvault/tarvault/pkg/report"
	"github.com/tarvault/tarvault/pkg/retention"
	"github.com/tarvault/tarvault/pkg/util"
)

// Engine runs backups according to a fixed configuration. It is stateless
// across runs and safe to reuse for scheduled execution.
type Engine struct {
	cfg     config.Config
	version string

	// now is swapped in tests to pin run timestamps.
	now func() time.Time
}

// New creates a backup engine for the given configuration.
func New(cfg config.Config, version string) *Engine {
	return &Engine{
		cfg:     cfg,
		version: version,
		now:     time.Now,
	}
}

// newMetrics returns fresh counters for one run, so the SUM line of a
// scheduled execution never accumulates across cron ticks.
func (e *Engine) newMetrics() metrics.Metrics {
	if e.cfg.Metrics {
		return &metrics.RunMetrics{}
	}
	return &metrics.NoopMetrics{}
}

// Execute performs one full backup run and returns its summary. In dry-run
// mode nothing on disk changes: the archive about to be created is
// simulated as a synthetic catalog entry so that the reported retention
// decisions match exactly what a real run would do.
func (e *Engine) Execute(ctx context.Context) (*report.Summary, error) {
	start := e.now()
	m := e.newMetrics()

	if e.cfg.DryRun {
		plog.Info("Starting backup (DRY RUN)", "destination", e.cfg.Destination)
	} else {
		plog.Info("Starting backup", "destination", e.cfg.Destination)
	}

	// Validation runs before anything touches the filesystem.
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	dest, err := util.CanonicalPath(e.cfg.Destination)
	if err != nil {
		return nil, err
	}
	if err := preflight.CheckDestination(dest); err != nil {
		return nil, err
	}
	if !e.cfg.DryRun {
		if err := preflight.CheckWritable(dest); err != nil {
			return nil, err
		}
		// Dry runs read but never mutate, so only real runs take the
		// destination lock.
		lock, err := destlock.Acquire(ctx, dest)
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	// The initial scan doubles as the resolver for the "newer than the
	// last backup" age bound.
	scan, err := catalog.ScanDir(dest)
	if err != nil {
		return nil, err
	}

	criteria, err := e.resolveCriteria(scan)
	if err != nil {
		return nil, err
	}

	rules, err := pathselect.NewRuleSet(e.cfg.Include, e.cfg.Exclude)
	if err != nil {
		return nil, err
	}

	manifest, err := pathselect.Build(ctx, rules, criteria)
	if err != nil {
		return nil, err
	}
	plog.Info("Files selected for backup", "count", len(manifest.Files), "bytes", manifest.TotalBytes)
	m.AddBytesSelected(manifest.TotalBytes)
	m.AddWarnings(int64(manifest.Warnings))

	summary := &report.Summary{
		DryRun:   e.cfg.DryRun,
		Warnings: manifest.Warnings,
	}

	if len(manifest.Files) == 0 {
		if !e.cfg.DryRun {
			return nil, fmt.Errorf("selection for destination %s: %w", dest, pathselect.ErrEmptySelection)
		}
		// A real run aborts on an empty selection before archiving or
		// pruning, so the simulation stops here too and reports every
		// existing archive as kept.
		plog.Warn("Dry run selected zero files; a real run would abort without archiving or pruning")
		summary.ArchivesKept = len(scan.Archives)
		summary.Duration = e.now().Sub(start)
		m.Log()
		return summary, nil
	}

	format, err := patharchive.ParseFormat(e.cfg.Archive.Format)
	if err != nil {
		return nil, err
	}
	level, err := patharchive.ParseLevel(e.cfg.Archive.Level)
	if err != nil {
		return nil, err
	}

	archiveName := catalog.FileName(e.now(), format.Ext())
	archivePath := filepath.Join(dest, archiveName)

	var synthetic *catalog.Archive
	if e.cfg.DryRun {
		// The synthetic entry must carry the exact timestamp its filename
		// would parse back to.
		ts, _, err := catalog.ParseName(archiveName)
		if err != nil {
			return nil, fmt.Errorf("internal error: generated archive name %q does not parse: %w", archiveName, err)
		}
		synthetic = &catalog.Archive{Timestamp: ts, Path: archivePath}
		summary.ArchivePath = archivePath
		summary.FilesArchived = len(manifest.Files)
		plog.Notice("[DRY RUN] CREATE", "path", archivePath, "files", len(manifest.Files))
	} else {
		if err := preflight.CheckFreeSpace(dest, manifest.TotalBytes); err != nil {
			return nil, err
		}

		writer := patharchive.NewWriter(format, level, e.cfg.Archive.BufferSizeKB)
		res, err := writer.Write(ctx, manifest.Files, archivePath)
		if err != nil {
			return nil, err
		}
		summary.ArchivePath = res.Path
		summary.ArchiveSize = res.SizeBytes
		summary.FilesArchived = len(manifest.Files)
		summary.Warnings += res.Warnings
		m.AddFilesArchived(int64(len(manifest.Files)))
		m.AddWarnings(int64(res.Warnings))
		plog.Info("Archive created", "path", res.Path, "sizeBytes", res.SizeBytes, "warnings", res.Warnings)

		// Rescan after writing: the directory contents, not in-memory
		// bookkeeping, decide what retention sees.
		scan, err = catalog.ScanDir(dest)
		if err != nil {
			return nil, err
		}
	}

	if err := e.applyRetention(ctx, scan, synthetic, summary, m); err != nil {
		return nil, err
	}

	summary.Duration = e.now().Sub(start)
	m.Log()
	return summary, nil
}

// applyRetention plans the keep-set and prunes the complement. With no
// tiers configured, retention is disabled and every archive is kept.
func (e *Engine) applyRetention(ctx context.Context, scan *catalog.Scan, synthetic *catalog.Archive, summary *report.Summary, m metrics.Metrics) error {
	if !e.cfg.Retention.Enabled() {
		plog.Debug("Retention policy is disabled; no archives will be pruned")
		summary.ArchivesKept = len(scan.Archives)
		if synthetic != nil {
			summary.ArchivesKept++
		}
		return nil
	}

	keep := retention.Plan(e.cfg.Retention, scan.Archives, synthetic)

	// Only real catalog entries reach the pruner. A synthetic dry-run
	// entry represents a backup that would be created, so it can never be
	// a deletion candidate.
	pruner := prune.New(e.cfg.DryRun, e.cfg.DeleteWorkers)
	res, err := pruner.Apply(ctx, scan.Archives, keep)
	if err != nil {
		return err
	}

	summary.ArchivesKept = len(res.Kept)
	if synthetic != nil {
		summary.ArchivesKept++
	}
	summary.ArchivesDeleted = len(res.Deleted)
	summary.DeleteFailures = len(res.Failed)
	m.AddArchivesDeleted(int64(len(res.Deleted)))
	m.AddDeleteFailures(int64(len(res.Failed)))
	m.AddWarnings(int64(len(res.Failed)))
	summary.Warnings += len(res.Failed)
	return nil
}

// resolveCriteria converts the configured selection bounds into absolute
// filter criteria. The "auto" newer-than bound resolves to the timestamp of
// the most recent existing archive; with no prior archive the bound is
// dropped for this run, which is surfaced as a warning rather than an
// error.
func (e *Engine) resolveCriteria(scan *catalog.Scan) (pathselect.Criteria, error) {
	var crit pathselect.Criteria
	sel := e.cfg.Selection

	if sel.SmallerThanMB > 0 {
		crit.SizeOp = pathselect.SmallerThan
		crit.SizeMB = sel.SmallerThanMB
	}
	if sel.LargerThanMB > 0 {
		crit.SizeOp = pathselect.LargerThan
		crit.SizeMB = sel.LargerThanMB
	}

	now := e.now()
	switch {
	case sel.NewerThan == config.AgeAuto:
		if latest, ok := scan.Latest(); ok {
			crit.AgeOp = pathselect.NewerThan
			crit.AgeCutoff = latest
			plog.Info("Selecting files newer than the most recent archive", "cutoff", latest)
		} else {
			plog.Warn("No prior archive in destination; newer-than bound dropped for this run")
		}
	case sel.NewerThan != "":
		cutoff, err := flagparse.ParseAgeSpec(sel.NewerThan, now)
		if err != nil {
			return crit, &config.ValidationError{Reason: fmt.Sprintf("newerThan: %v", err)}
		}
		crit.AgeOp = pathselect.NewerThan
		crit.AgeCutoff = cutoff
	case sel.OlderThan != "":
		cutoff, err := flagparse.ParseAgeSpec(sel.OlderThan, now)
		if err != nil {
			return crit, &config.ValidationError{Reason: fmt.Sprintf("olderThan: %v", err)}
		}
		crit.AgeOp = pathselect.OlderThan
		crit.AgeCutoff = cutoff
	}
	return crit, nil
}
