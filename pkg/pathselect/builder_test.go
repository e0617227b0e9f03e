package pathselect

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// makeTree creates a small directory tree with known file sizes.
func makeTree(t *testing.T, root string, files map[string]int) {
	t.Helper()
	for rel, size := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("failed to create parent dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, make([]byte, size), 0644); err != nil {
			t.Fatalf("failed to create file %s: %v", rel, err)
		}
	}
}

func TestBuildWalksIncludesAndPrunesExcludes(t *testing.T) {
	root := canonical(t, t.TempDir())
	makeTree(t, root, map[string]int{
		"docs/a.txt":         10,
		"docs/sub/b.txt":     20,
		"docs/cache/c.tmp":   30,
		"docs/cache/d/e.tmp": 40,
		"other/f.txt":        50,
	})

	rules, err := NewRuleSet(
		[]string{filepath.Join(root, "docs")},
		[]string{filepath.Join(root, "docs", "cache")},
	)
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	m, err := Build(context.Background(), rules, Criteria{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{
		filepath.Join(root, "docs", "a.txt"),
		filepath.Join(root, "docs", "sub", "b.txt"),
	}
	if len(m.Files) != len(want) {
		t.Fatalf("expected %d files, got %d: %v", len(want), len(m.Files), m.Files)
	}
	for i, p := range want {
		if m.Files[i] != p {
			t.Errorf("expected file %d to be %s, got %s", i, p, m.Files[i])
		}
	}
	if m.TotalBytes != 30 {
		t.Errorf("expected 30 total bytes, got %d", m.TotalBytes)
	}
}

func TestBuildSingleFileInclude(t *testing.T) {
	root := canonical(t, t.TempDir())
	makeTree(t, root, map[string]int{
		"single.txt":  7,
		"ignored.txt": 8,
	})

	rules, err := NewRuleSet([]string{filepath.Join(root, "single.txt")}, nil)
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	m, err := Build(context.Background(), rules, Criteria{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m.Files) != 1 || m.Files[0] != filepath.Join(root, "single.txt") {
		t.Fatalf("expected exactly the single include file, got %v", m.Files)
	}
	if m.TotalBytes != 7 {
		t.Errorf("expected 7 total bytes, got %d", m.TotalBytes)
	}
}

func TestBuildDeduplicatesOverlappingRoots(t *testing.T) {
	root := canonical(t, t.TempDir())
	makeTree(t, root, map[string]int{
		"docs/a.txt":     10,
		"docs/sub/b.txt": 20,
	})

	// The sub directory is nested inside the first include root.
	rules, err := NewRuleSet(
		[]string{filepath.Join(root, "docs"), filepath.Join(root, "docs", "sub")},
		nil,
	)
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	m, err := Build(context.Background(), rules, Criteria{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m.Files) != 2 {
		t.Fatalf("expected 2 unique files, got %d: %v", len(m.Files), m.Files)
	}
	if m.TotalBytes != 30 {
		t.Errorf("expected 30 total bytes (no double counting), got %d", m.TotalBytes)
	}
}

func TestBuildAppliesCriteria(t *testing.T) {
	root := canonical(t, t.TempDir())
	makeTree(t, root, map[string]int{
		"small.bin": 100,
		"big.bin":   3 * 1024 * 1024,
	})

	rules, err := NewRuleSet([]string{root}, nil)
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	m, err := Build(context.Background(), rules, Criteria{SizeOp: SmallerThan, SizeMB: 1})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m.Files) != 1 || filepath.Base(m.Files[0]) != "small.bin" {
		t.Fatalf("expected only small.bin to survive the size bound, got %v", m.Files)
	}
}

func TestBuildOutputIsSorted(t *testing.T) {
	root := canonical(t, t.TempDir())
	makeTree(t, root, map[string]int{
		"z.txt":     1,
		"a.txt":     1,
		"m/mid.txt": 1,
	})

	rules, err := NewRuleSet([]string{root}, nil)
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	m, err := Build(context.Background(), rules, Criteria{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !sort.StringsAreSorted(m.Files) {
		t.Errorf("manifest is not sorted: %v", m.Files)
	}
}

func TestBuildMissingIncludeRootIsWarning(t *testing.T) {
	root := canonical(t, t.TempDir())
	makeTree(t, root, map[string]int{"real/a.txt": 1})

	rules, err := NewRuleSet(
		[]string{filepath.Join(root, "real"), filepath.Join(root, "gone")},
		nil,
	)
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	m, err := Build(context.Background(), rules, Criteria{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(m.Files) != 1 {
		t.Fatalf("expected the existing root to still be walked, got %v", m.Files)
	}
	if m.Warnings == 0 {
		t.Error("expected a warning for the missing include root")
	}
}

func TestBuildCancelledContext(t *testing.T) {
	root := canonical(t, t.TempDir())
	makeTree(t, root, map[string]int{"a.txt": 1})

	rules, err := NewRuleSet([]string{root}, nil)
	if err != nil {
		t.Fatalf("NewRuleSet failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Build(ctx, rules, Criteria{}); err == nil {
		t.Error("expected error from cancelled context")
	}
}
