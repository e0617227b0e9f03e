// Package report renders the human-readable end-of-run summary. Structured
// machine-consumable events go through plog; this package only prints the
// operator-facing recap.
package report

import (
	"fmt"
	"time"

	"github.com/fatih/color"
)

var (
	header  = color.New(color.Bold).SprintFunc()
	okMsg   = color.New(color.FgGreen).SprintFunc()
	warnMsg = color.New(color.FgYellow).SprintFunc()
	errMsg  = color.New(color.FgRed).SprintFunc()
	subMsg  = color.New(color.FgCyan).SprintFunc()
)

// Summary holds the counts an operator cares about after a run.
type Summary struct {
	DryRun bool

	FilesArchived int
	ArchivePath   string
	ArchiveSize   int64

	ArchivesKept    int
	ArchivesDeleted int
	DeleteFailures  int
	Warnings        int

	Duration time.Duration
}

// Print writes the summary to stdout.
func (s Summary) Print() {
	if s.DryRun {
		fmt.Println(header("--- Backup Summary (DRY RUN) ---"))
	} else {
		fmt.Println(header("--- Backup Summary ---"))
	}

	if s.ArchivePath != "" {
		verb := "Created"
		if s.DryRun {
			verb = "Would create"
		}
		fmt.Println(okMsg(fmt.Sprintf("%s archive: %s (%d files, %s)", verb, s.ArchivePath, s.FilesArchived, humanBytes(s.ArchiveSize))))
	} else {
		fmt.Println(warnMsg(fmt.Sprintf("No archive produced (%d files selected)", s.FilesArchived)))
	}

	verb := "deleted"
	if s.DryRun {
		verb = "would delete"
	}
	fmt.Println(subMsg(fmt.Sprintf("Retention: kept %d, %s %d", s.ArchivesKept, verb, s.ArchivesDeleted)))

	if s.DeleteFailures > 0 {
		fmt.Println(errMsg(fmt.Sprintf("Failed deletions: %d", s.DeleteFailures)))
	}
	if s.Warnings > 0 {
		fmt.Println(warnMsg(fmt.Sprintf("Warnings: %d", s.Warnings)))
	}
	fmt.Println(subMsg(fmt.Sprintf("Duration: %s", s.Duration.Round(time.Millisecond))))
}

// humanBytes formats a byte count with a binary unit suffix.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
