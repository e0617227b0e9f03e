// --- ARCHITECTURAL OVERVIEW: Retention Strategy ---
//
// The planner organizes archives into calendar-aligned slots so that
// retention rules like "keep one backup per day" always refer to standard
// calendar periods derived from the timestamp embedded in each archive's
// filename.
//
// Tiers are applied in a fixed priority order (last, hourly, daily, weekly,
// monthly, yearly) regardless of how the caller configured them. Each tier
// only competes for archives that no earlier tier has claimed, and whatever
// a tier selects stays kept. The keep-set therefore grows monotonically
// across tiers; it is a union over a shrinking remainder, never an
// intersection.

// Package retention computes which backup archives a tiered policy
// protects from deletion.
package retention

import (
	"fmt"
	"time"

	"github.com/tarvault/tarvault/pkg/catalog"
	"github.com/tarvault/tarvault/pkg/plog"
)

// Time formats used for retention bucketing. Go's time package has no
// layout code for ISO weeks, so the week key is built from time.ISOWeek.
const (
	hourFormat  = "2006-01-02 15" // YYYY-MM-DD HH
	dayFormat   = "2006-01-02"    // YYYY-MM-DD
	weekFormat  = "%04d-W%02d"    // ISO year-week
	monthFormat = "2006-01"       // YYYY-MM
	yearFormat  = "2006"          // YYYY
)

// Policy holds the per-tier keep counts. A zero count disables the tier;
// a policy with all counts zero disables retention entirely (nothing is
// protected, and the caller must not prune at all).
type Policy struct {
	Last    int `yaml:"last"`
	Hourly  int `yaml:"hourly"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
	Yearly  int `yaml:"yearly"`
}

// Enabled reports whether at least one tier is configured.
func (p Policy) Enabled() bool {
	return p.Last > 0 || p.Hourly > 0 || p.Daily > 0 || p.Weekly > 0 || p.Monthly > 0 || p.Yearly > 0
}

// Validate rejects negative tier counts.
func (p Policy) Validate() error {
	for _, t := range []struct {
		name  string
		count int
	}{
		{"last", p.Last},
		{"hourly", p.Hourly},
		{"daily", p.Daily},
		{"weekly", p.Weekly},
		{"monthly", p.Monthly},
		{"yearly", p.Yearly},
	} {
		if t.count < 0 {
			return fmt.Errorf("retention tier %q has negative count %d", t.name, t.count)
		}
	}
	return nil
}

// KeepSet is the set of archive paths protected from deletion.
type KeepSet map[string]bool

// Contains reports whether the archive at path is protected.
func (k KeepSet) Contains(path string) bool {
	return k[path]
}

// Plan applies the policy to a catalog of archives sorted newest first and
// returns the keep-set. If synthetic is non-nil it represents the backup
// about to be created by a dry run; it is inserted as the newest entry and
// competes for tier slots exactly like a real archive.
func Plan(policy Policy, archives []catalog.Archive, synthetic *catalog.Archive) KeepSet {
	entries := archives
	if synthetic != nil {
		entries = make([]catalog.Archive, 0, len(archives)+1)
		entries = append(entries, *synthetic)
		entries = append(entries, archives...)
	}

	keep := make(KeepSet)

	// Tier 1: keep the N most recent archives overall, no bucketing.
	lastKept := 0
	for _, a := range entries {
		if lastKept >= policy.Last {
			break
		}
		if !keep[a.Path] {
			keep[a.Path] = true
			lastKept++
		}
	}

	// Period tiers, shortest period first. Within each tier the remainder
	// is grouped by its calendar bucket and the most recent N entries of
	// every bucket are kept.
	periodTiers := []struct {
		name  string
		count int
		key   func(time.Time) string
	}{
		{"hourly", policy.Hourly, hourKey},
		{"daily", policy.Daily, dayKey},
		{"weekly", policy.Weekly, weekKey},
		{"monthly", policy.Monthly, monthKey},
		{"yearly", policy.Yearly, yearKey},
	}

	planParts := make([]any, 0, 14)
	if policy.Last > 0 {
		planParts = append(planParts, "last", lastKept)
	}
	for _, tier := range periodTiers {
		if tier.count <= 0 {
			continue
		}
		kept := applyPeriodTier(entries, keep, tier.count, tier.key)
		planParts = append(planParts, tier.name, kept)
	}

	plog.Debug("Retention plan computed", append([]any{"kept", len(keep)}, planParts...)...)
	return keep
}

// applyPeriodTier keeps the first count entries of every calendar bucket
// among the archives no earlier tier has claimed. Entries arrive sorted
// newest first, so "first" means most recent within the bucket. It returns
// the number of archives this tier added to the keep-set.
func applyPeriodTier(entries []catalog.Archive, keep KeepSet, count int, key func(time.Time) string) int {
	taken := make(map[string]int)
	kept := 0
	for _, a := range entries {
		if keep[a.Path] {
			continue
		}
		k := key(a.Timestamp)
		if taken[k] >= count {
			continue
		}
		keep[a.Path] = true
		taken[k]++
		kept++
	}
	return kept
}

func hourKey(t time.Time) string { return t.Format(hourFormat) }

func dayKey(t time.Time) string { return t.Format(dayFormat) }

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf(weekFormat, year, week)
}

func monthKey(t time.Time) string { return t.Format(monthFormat) }

func yearKey(t time.Time) string { return t.Format(yearFormat) }
