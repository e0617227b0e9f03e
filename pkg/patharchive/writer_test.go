package patharchive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// makeFiles creates files with the given contents and returns their paths
// in manifest order.
func makeFiles(t *testing.T, dir string, files map[string]string) []string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create source file %s: %v", name, err)
		}
		paths = append(paths, p)
	}
	return paths
}

// readTarGz extracts entry names and contents from a gzip-compressed tar.
func readTarGz(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("archive is not valid gzip: %v", err)
	}
	defer gz.Close()

	return readTar(t, gz)
}

// readTarZst extracts entry names and contents from a zstd-compressed tar.
func readTarZst(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("archive is not valid zstd: %v", err)
	}
	defer dec.Close()

	return readTar(t, dec.IOReadCloser())
}

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	entries := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("corrupt tar stream: %v", err)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			t.Fatalf("failed to read tar entry %s: %v", hdr.Name, err)
		}
		entries[hdr.Name] = buf.String()
	}
	return entries
}

func TestWriteTarGzRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	manifest := makeFiles(t, srcDir, map[string]string{
		"a.txt": "alpha",
		"b.txt": "bravo bravo",
	})

	dest := filepath.Join(destDir, "2025-06-21_13-19-45_backup.tar.gz")
	res, err := NewWriter(TarGz, Default, 0).Write(context.Background(), manifest, dest)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if res.Path != dest {
		t.Errorf("expected result path %s, got %s", dest, res.Path)
	}
	if res.SizeBytes <= 0 {
		t.Errorf("expected positive archive size, got %d", res.SizeBytes)
	}
	if res.Warnings != 0 {
		t.Errorf("expected no warnings, got %d", res.Warnings)
	}

	entries := readTarGz(t, dest)
	if len(entries) != len(manifest) {
		t.Fatalf("expected %d entries, got %d", len(manifest), len(entries))
	}
	for _, p := range manifest {
		want, _ := os.ReadFile(p)
		got, ok := entries[filepath.ToSlash(p)]
		if !ok {
			t.Errorf("archive is missing entry for %s (full path must be preserved)", p)
			continue
		}
		if got != string(want) {
			t.Errorf("entry %s content mismatch: got %q want %q", p, got, want)
		}
	}
}

func TestWriteTarZstRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	manifest := makeFiles(t, srcDir, map[string]string{
		"a.txt": "zstd payload",
	})

	dest := filepath.Join(destDir, "2025-06-21_13-19-45_backup.tar.zst")
	if _, err := NewWriter(TarZst, Fastest, 64).Write(context.Background(), manifest, dest); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries := readTarZst(t, dest)
	if got := entries[filepath.ToSlash(manifest[0])]; got != "zstd payload" {
		t.Errorf("unexpected entry content %q", got)
	}
}

func TestWriteSkipsUnreadableFileWithWarning(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	manifest := makeFiles(t, srcDir, map[string]string{"ok.txt": "fine"})
	manifest = append(manifest, filepath.Join(srcDir, "vanished.txt"))

	dest := filepath.Join(destDir, "2025-06-21_13-19-45_backup.tar.gz")
	res, err := NewWriter(TarGz, Default, 0).Write(context.Background(), manifest, dest)
	if err != nil {
		t.Fatalf("a single unreadable file must not abort the archive: %v", err)
	}

	if res.Warnings != 1 {
		t.Errorf("expected 1 warning, got %d", res.Warnings)
	}
	entries := readTarGz(t, dest)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestWriteLeavesNoTempFileOnCancel(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	manifest := makeFiles(t, srcDir, map[string]string{"a.txt": "alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(destDir, "2025-06-21_13-19-45_backup.tar.gz")
	if _, err := NewWriter(TarGz, Default, 0).Write(ctx, manifest, dest); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	leftovers, err := os.ReadDir(destDir)
	if err != nil {
		t.Fatalf("failed to read destination dir: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("expected clean destination after failed run, found %v", leftovers)
	}
}

func TestWriteEmptyManifestProducesValidArchive(t *testing.T) {
	destDir := t.TempDir()
	dest := filepath.Join(destDir, "2025-06-21_13-19-45_backup.tar.gz")

	// The engine refuses empty selections; the writer itself still produces
	// a structurally valid empty archive if asked.
	if _, err := NewWriter(TarGz, Default, 0).Write(context.Background(), nil, dest); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if entries := readTarGz(t, dest); len(entries) != 0 {
		t.Errorf("expected empty archive, got %v", entries)
	}
}
