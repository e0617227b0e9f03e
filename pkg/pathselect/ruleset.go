// Package pathselect resolves include/exclude path rules plus size and age
// predicates into the ordered list of files a backup run will archive.
package pathselect

import (
	"path/filepath"
	"strings"

	"github.com/tarvault/tarvault/pkg/util"
)

// RuleSet holds the canonicalized include and exclude path rules of one
// run. Matching is purely prefix-based on normalized absolute paths; there
// is no wildcard or glob support. Rules are immutable after creation.
type RuleSet struct {
	includes []string
	excludes []string
}

// NewRuleSet canonicalizes the raw include and exclude paths. Every path is
// made absolute, cleaned, and has symlinks resolved so that alternate
// spellings of the same location cannot bypass an exclude rule.
func NewRuleSet(includes, excludes []string) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, raw := range includes {
		p, err := util.CanonicalPath(raw)
		if err != nil {
			return nil, err
		}
		rs.includes = append(rs.includes, p)
	}
	for _, raw := range excludes {
		p, err := util.CanonicalPath(raw)
		if err != nil {
			return nil, err
		}
		rs.excludes = append(rs.excludes, p)
	}
	return rs, nil
}

// IncludeRoots returns the canonical include paths, the traversal roots for
// the file list builder.
func (rs *RuleSet) IncludeRoots() []string {
	roots := make([]string, len(rs.includes))
	copy(roots, rs.includes)
	return roots
}

// Includes reports whether a canonical absolute path is selected by the
// rule set. Exclude rules always win: a path equal to or nested under any
// exclude rule is rejected even when an include rule also matches it.
// With no include rules configured, every non-excluded path is selected.
func (rs *RuleSet) Includes(path string) bool {
	for _, ex := range rs.excludes {
		if underneath(path, ex) {
			return false
		}
	}
	if len(rs.includes) == 0 {
		return true
	}
	for _, in := range rs.includes {
		if underneath(path, in) {
			return true
		}
	}
	return false
}

// underneath reports whether path equals root or is nested below it.
// The separator check prevents "/data-old" from matching root "/data".
func underneath(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
