// Package flagparse converts raw command-line flag strings into typed
// configuration values: comma-separated path lists, retention tier pairs,
// and the age specifications of the -newer-than/-older-than bounds.
package flagparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tarvault/tarvault/pkg/retention"
)

// AgeLayout is the absolute timestamp form accepted by the age bounds.
const AgeLayout = "2006-01-02 15:04"

// ParsePathList splits a comma-separated list of paths, trimming whitespace
// and dropping empty entries.
func ParsePathList(raw string) []string {
	var paths []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// ParseTiers parses a retention specification of the form
// "last=3,daily=7,monthly=12" into a policy. Tier names are matched
// case-insensitively; counts must be positive integers; a tier may appear
// at most once.
func ParseTiers(raw string) (retention.Policy, error) {
	var policy retention.Policy
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return policy, nil
	}

	seen := make(map[string]bool)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, countStr, found := strings.Cut(pair, "=")
		if !found {
			return retention.Policy{}, fmt.Errorf("invalid retention tier %q (expected name=count)", pair)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count <= 0 {
			return retention.Policy{}, fmt.Errorf("invalid count for retention tier %q (expected a positive integer)", pair)
		}
		if seen[name] {
			return retention.Policy{}, fmt.Errorf("retention tier %q specified more than once", name)
		}
		seen[name] = true

		switch name {
		case "last":
			policy.Last = count
		case "hourly":
			policy.Hourly = count
		case "daily":
			policy.Daily = count
		case "weekly":
			policy.Weekly = count
		case "monthly":
			policy.Monthly = count
		case "yearly":
			policy.Yearly = count
		default:
			return retention.Policy{}, fmt.Errorf("unknown retention tier %q (expected last, hourly, daily, weekly, monthly or yearly)", name)
		}
	}
	return policy, nil
}

// ParseAgeSpec resolves an age bound into an absolute cutoff instant.
// The spec is either an absolute timestamp in the form "2006-01-02 15:04"
// or a non-negative, possibly fractional day count relative to now.
func ParseAgeSpec(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty age specification")
	}

	if t, err := time.ParseInLocation(AgeLayout, raw, now.Location()); err == nil {
		return t, nil
	}

	days, err := strconv.ParseFloat(raw, 64)
	if err != nil || days < 0 {
		return time.Time{}, fmt.Errorf("invalid age specification %q (expected %q or a non-negative day count)", raw, AgeLayout)
	}
	return now.Add(-time.Duration(days * float64(24*time.Hour))), nil
}
