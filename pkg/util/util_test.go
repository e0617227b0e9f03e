package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	got, err := ExpandPath("~/backups")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "backups") {
		t.Errorf("ExpandPath(~/backups) = %q", got)
	}

	plain := filepath.Join("some", "relative", "path")
	got, err = ExpandPath(plain)
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != plain {
		t.Errorf("path without tilde must pass through unchanged, got %q", got)
	}
}

func TestCanonicalPathResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	fromLink, err := CanonicalPath(link)
	if err != nil {
		t.Fatalf("CanonicalPath failed: %v", err)
	}
	fromReal, err := CanonicalPath(real)
	if err != nil {
		t.Fatalf("CanonicalPath failed: %v", err)
	}
	if fromLink != fromReal {
		t.Errorf("symlink and target must canonicalize identically: %q vs %q", fromLink, fromReal)
	}
}

func TestCanonicalPathNonExistent(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "not", "created", "yet")

	got, err := CanonicalPath(missing + string(filepath.Separator))
	if err != nil {
		t.Fatalf("CanonicalPath must tolerate missing paths: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %q", got)
	}
	if strings.HasSuffix(got, string(filepath.Separator)) {
		t.Errorf("trailing separator must be stripped, got %q", got)
	}
}
