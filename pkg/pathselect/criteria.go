package pathselect

import (
	"time"
)

// bytesPerMB converts file sizes for the megabyte-denominated size bounds.
const bytesPerMB = 1024 * 1024

// SizeOp selects the direction of the size bound.
type SizeOp int

const (
	SizeUnbounded SizeOp = iota
	SmallerThan
	LargerThan
)

// AgeOp selects the direction of the age bound.
type AgeOp int

const (
	AgeUnbounded AgeOp = iota
	NewerThan
	OlderThan
)

// Criteria holds the optional size and age predicates of one run. The two
// bounds are independent; mutual exclusivity of SmallerThan/LargerThan and
// NewerThan/OlderThan is enforced by configuration validation, not here.
// Immutable for the duration of a run.
type Criteria struct {
	SizeOp SizeOp
	SizeMB float64

	AgeOp     AgeOp
	AgeCutoff time.Time
}

// Candidate is one regular file seen during traversal, consumed
// immediately by filtering and never persisted.
type Candidate struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Matches evaluates the criteria against a single candidate file. Both
// bounds use strict inequalities, so a file sitting exactly on a boundary
// value is excluded. When a size bound is configured, a candidate with a
// zero or unreadable size fails closed: it is excluded rather than
// erroring the whole run.
func (c Criteria) Matches(f Candidate) bool {
	if c.SizeOp != SizeUnbounded {
		if f.Size <= 0 {
			return false
		}
		sizeMB := float64(f.Size) / bytesPerMB
		switch c.SizeOp {
		case SmallerThan:
			if sizeMB >= c.SizeMB {
				return false
			}
		case LargerThan:
			if sizeMB <= c.SizeMB {
				return false
			}
		}
	}

	switch c.AgeOp {
	case NewerThan:
		if !f.ModTime.After(c.AgeCutoff) {
			return false
		}
	case OlderThan:
		if !f.ModTime.Before(c.AgeCutoff) {
			return false
		}
	}
	return true
}
