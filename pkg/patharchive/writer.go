// Package patharchive builds a single compressed tar archive from a file
// manifest. Individual unreadable files are tolerated with a warning; only
// a failure of the archive pipeline itself aborts the run, in which case
// the partial output is removed so the destination never holds a
// half-written archive.
package patharchive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/tarvault/tarvault/pkg/plog"
)

// ErrWriteFailed marks a fatal failure of the compression pipeline, as
// opposed to tolerated per-file read errors.
var ErrWriteFailed = errors.New("archive write failed")

// DefaultBufferSizeKB is the default I/O buffer size for the write path.
const DefaultBufferSizeKB = 256

// Writer creates archives in the configured format.
type Writer struct {
	Format       Format
	Level        Level
	BufferSizeKB int
}

// NewWriter creates a Writer. A non-positive buffer size falls back to
// DefaultBufferSizeKB.
func NewWriter(format Format, level Level, bufferSizeKB int) *Writer {
	if bufferSizeKB <= 0 {
		bufferSizeKB = DefaultBufferSizeKB
	}
	return &Writer{Format: format, Level: level, BufferSizeKB: bufferSizeKB}
}

// Result describes a successfully written archive.
type Result struct {
	Path      string
	SizeBytes int64
	// Warnings counts files from the manifest that could not be read and
	// were skipped or padded.
	Warnings int
}

// Write produces one archive at destPath containing the manifest files with
// their full absolute paths preserved inside the archive. The archive is
// written to a temporary file in the destination directory and renamed into
// place only after the pipeline closed cleanly, so a crashed or failed run
// leaves no file matching the archive pattern behind.
func (w *Writer) Write(ctx context.Context, manifest []string, destPath string) (res *Result, retErr error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "tarvault-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	warnings, err := w.writeArchive(ctx, manifest, tmp)
	if err != nil {
		return nil, err
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing temp file: %v", ErrWriteFailed, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: renaming temp archive to final path: %v", ErrWriteFailed, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat finished archive %s: %w", destPath, err)
	}
	return &Result{Path: destPath, SizeBytes: info.Size(), Warnings: warnings}, nil
}

// writeArchive runs the tar+compression pipeline into trg.
func (w *Writer) writeArchive(ctx context.Context, manifest []string, trg io.Writer) (warnings int, retErr error) {
	bufWriter := bufio.NewWriterSize(trg, w.BufferSizeKB*1024)

	compressedWriter, err := w.newCompressedWriter(bufWriter)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	tarWriter := tar.NewWriter(compressedWriter)

	defer func() {
		if err := tarWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("%w: tar writer close: %v", ErrWriteFailed, err)
		}
		if err := compressedWriter.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("%w: compressed writer close: %v", ErrWriteFailed, err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("%w: buffer flush: %v", ErrWriteFailed, err)
		}
	}()

	buf := make([]byte, w.BufferSizeKB*1024)
	for _, path := range manifest {
		select {
		case <-ctx.Done():
			return warnings, ctx.Err()
		default:
		}

		ok, err := w.writeFile(tarWriter, path, buf)
		if err != nil {
			return warnings, err
		}
		if !ok {
			warnings++
		}
	}
	return warnings, nil
}

// newCompressedWriter wraps dst in the codec selected by the format.
func (w *Writer) newCompressedWriter(dst io.Writer) (io.WriteCloser, error) {
	if w.Format == TarZst {
		var encoderLevel zstd.EncoderLevel
		switch w.Level {
		case Fastest:
			encoderLevel = zstd.SpeedFastest
		case Better:
			encoderLevel = zstd.SpeedBetterCompression
		case Best:
			encoderLevel = zstd.SpeedBestCompression
		default:
			encoderLevel = zstd.SpeedDefault
		}
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(encoderLevel))
	}

	var lvl int
	switch w.Level {
	case Fastest:
		lvl = pgzip.BestSpeed
	case Better:
		lvl = 6 // Good balance
	case Best:
		lvl = pgzip.BestCompression
	default:
		lvl = pgzip.DefaultCompression
	}
	return pgzip.NewWriterLevel(dst, lvl)
}

// writeFile adds one manifest entry to the archive. It returns ok=false
// with a nil error for tolerated per-file failures (vanished or unreadable
// files); a non-nil error means the archive itself is broken.
func (w *Writer) writeFile(tw *tar.Writer, path string, buf []byte) (ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		plog.Warn("Skipping unreadable file during archiving", "path", path, "error", err)
		return false, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		plog.Warn("Skipping file with unreadable metadata during archiving", "path", path, "error", err)
		return false, nil
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		plog.Warn("Skipping file without valid tar header", "path", path, "error", err)
		return false, nil
	}
	// Full absolute paths are preserved inside the archive.
	header.Name = filepath.ToSlash(path)

	plog.Notice("ADD", "file", path, "size", info.Size())

	if err := tw.WriteHeader(header); err != nil {
		return false, fmt.Errorf("%w: writing tar header for %s: %v", ErrWriteFailed, path, err)
	}

	n, copyErr := io.CopyBuffer(tw, f, buf)
	if copyErr != nil {
		// The header already promised info.Size() bytes. Pad the entry with
		// zeros so the archive stays structurally valid, and record the
		// short read as a warning instead of aborting the whole run.
		if pad := header.Size - n; pad > 0 {
			if _, padErr := io.CopyN(tw, zeroReader{}, pad); padErr != nil {
				return false, fmt.Errorf("%w: padding truncated entry %s: %v", ErrWriteFailed, path, padErr)
			}
		}
		plog.Warn("File changed or became unreadable mid-archive; entry padded", "path", path, "error", copyErr)
		return false, nil
	}
	if n < header.Size {
		if pad := header.Size - n; pad > 0 {
			if _, padErr := io.CopyN(tw, zeroReader{}, pad); padErr != nil {
				return false, fmt.Errorf("%w: padding truncated entry %s: %v", ErrWriteFailed, path, padErr)
			}
		}
		plog.Warn("File shrank mid-archive; entry padded", "path", path)
		return false, nil
	}

	return true, nil
}

// zeroReader yields an endless stream of zero bytes for padding truncated
// tar entries.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
