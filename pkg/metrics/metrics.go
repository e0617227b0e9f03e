package metrics

import (
	"sync/atomic"

	"github.com/tarvault/tarvault/pkg/plog"
)

// Metrics defines the interface for collecting and reporting backup run statistics.
type Metrics interface {
	AddFilesArchived(n int64)
	AddBytesSelected(n int64)
	AddArchivesDeleted(n int64)
	AddDeleteFailures(n int64)
	AddWarnings(n int64)
	Log()
}

// RunMetrics holds the atomic counters for one backup run.
// It is the concrete implementation of the Metrics interface.
type RunMetrics struct {
	FilesArchived   atomic.Int64
	BytesSelected   atomic.Int64
	ArchivesDeleted atomic.Int64
	DeleteFailures  atomic.Int64
	Warnings        atomic.Int64
}

func (m *RunMetrics) AddFilesArchived(n int64)   { m.FilesArchived.Add(n) }
func (m *RunMetrics) AddBytesSelected(n int64)   { m.BytesSelected.Add(n) }
func (m *RunMetrics) AddArchivesDeleted(n int64) { m.ArchivesDeleted.Add(n) }
func (m *RunMetrics) AddDeleteFailures(n int64)  { m.DeleteFailures.Add(n) }
func (m *RunMetrics) AddWarnings(n int64)        { m.Warnings.Add(n) }

// Log prints a summary of the run counters.
func (m *RunMetrics) Log() {
	plog.Info("SUM",
		"filesArchived", m.FilesArchived.Load(),
		"bytesSelected", m.BytesSelected.Load(),
		"archivesDeleted", m.ArchivesDeleted.Load(),
		"deleteFailures", m.DeleteFailures.Load(),
		"warnings", m.Warnings.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
// It can be used to disable metrics collection without changing the calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesArchived(n int64)   {}
func (m *NoopMetrics) AddBytesSelected(n int64)   {}
func (m *NoopMetrics) AddArchivesDeleted(n int64) {}
func (m *NoopMetrics) AddDeleteFailures(n int64)  {}
func (m *NoopMetrics) AddWarnings(n int64)        {}
func (m *NoopMetrics) Log()                       {}

// Statically assert that our types implement the interface.
var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
