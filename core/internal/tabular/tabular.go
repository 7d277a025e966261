// Package tabular reads and writes the CSV tables persisted between stages.
//
// Paths ending in ".zst" are transparently zstd-compressed. Writers stage
// output in a temporary file and only rename it into place on Commit, so a
// failed stage never leaves a partial table at the final path.
package tabular

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix marks a zstd-compressed table.
const CompressedSuffix = ".zst"

// Compressed reports whether path names a compressed table.
func Compressed(path string) bool {
	return strings.HasSuffix(path, CompressedSuffix)
}

// Writer stages a table file and renames it into place on Commit.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	enc     *zstd.Encoder
	w       io.Writer
}

// Create starts writing the table at path.
func Create(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+"."+suffix)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	w := &Writer{path: path, tmpPath: tmpPath, file: f, w: f}
	if Compressed(path) {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()          //nolint:errcheck // best-effort cleanup
			_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		w.enc = enc
		w.w = enc
	}
	return w, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

// Commit flushes the table and renames it to its final path.
func (w *Writer) Commit() error {
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			_ = w.Discard() //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("flush zstd stream: %w", err)
		}
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		_ = os.Remove(w.tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", w.path, err)
	}
	return nil
}

// Discard removes the staged file.
func (w *Writer) Discard() error {
	if w.enc != nil {
		_ = w.enc.Close() //nolint:errcheck // we're cleaning up
	}
	_ = w.file.Close() //nolint:errcheck // we're cleaning up
	if err := os.Remove(w.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Open returns a reader over the table at path, decompressing if needed.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !Compressed(path) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdReadCloser{dec: dec, file: f}, nil
}

type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (r *zstdReadCloser) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

func (r *zstdReadCloser) Close() error {
	r.dec.Close()
	return r.file.Close()
}

// WriteFile writes a table through fn and commits it on success.
func WriteFile(path string, fn func(io.Writer) error) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	return w.Commit()
}

// ReadFile opens the table at path and passes it to fn.
func ReadFile(path string, fn func(io.Reader) error) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(r)
}

// Columns maps header names to positions and checks required columns.
func Columns(header []string, required ...string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return cols, nil
}

// Uint parses an unsigned decimal field.
func Uint(field string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(field), 10, bits)
}

// FormatUint formats an unsigned value as decimal.
func FormatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
