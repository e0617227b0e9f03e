// Package schedule runs a backup job repeatedly on a cron expression for
// unattended operation. Runs are strictly sequential per process; the
// single-writer assumption for a destination directory is the operator's
// responsibility when multiple hosts or processes are involved.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/tarvault/tarvault/pkg/plog"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Run blocks and executes job on every tick of the cron expression until
// the context is cancelled. A failing run is logged and the schedule keeps
// going; only an invalid expression is an error.
func Run(ctx context.Context, spec string, job Job) error {
	c := cron.New()

	running := make(chan struct{}, 1)
	_, err := c.AddFunc(spec, func() {
		// Drop a tick when the previous run is still going instead of
		// letting two runs race for the same destination.
		select {
		case running <- struct{}{}:
			defer func() { <-running }()
		default:
			plog.Warn("Skipping scheduled run; previous run still in progress", "schedule", spec)
			return
		}

		plog.Info("Scheduled backup starting", "schedule", spec)
		if err := job(ctx); err != nil {
			plog.Error("Scheduled backup failed", "schedule", spec, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	plog.Info("Scheduler started", "schedule", spec)

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	plog.Info("Scheduler stopped")
	return nil
}
