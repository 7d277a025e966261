package export

import (
	"bufio"
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/meigma/bsonsplit/core/internal/tabular"
)

// LabelsFile is the manifest FileSink writes next to the images.
const LabelsFile = "labels.txt"

// FileSink writes each sample to its own image file.
//
// Files are named <product_id>-<img_idx>-<label>.jpg, or
// <product_id>-<img_idx>.jpg for unlabeled rows. Each file is written to a
// temporary file in the destination directory and renamed into place, so
// partially written images are never visible.
type FileSink struct {
	destDir   string
	overwrite bool
	manifest  bool

	mu     sync.Mutex
	labels []labelLine
}

type labelLine struct {
	seq   int
	name  string
	label int
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithManifest controls whether Close writes labels.txt. Enabled by default.
func WithManifest(enabled bool) FileSinkOption {
	return func(s *FileSink) {
		s.manifest = enabled
	}
}

// NewFileSink creates a FileSink that writes to destDir, creating it if needed.
func NewFileSink(destDir string, opts ...FileSinkOption) (*FileSink, error) {
	s := &FileSink{destDir: destDir, manifest: true}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", destDir, err)
	}
	return s, nil
}

// FileName returns the image file name of row.
func FileName(row Row) string {
	if !row.HasLabel {
		return fmt.Sprintf("%d-%d.jpg", row.EntityID, row.ItemIndex)
	}
	return fmt.Sprintf("%d-%d-%d.jpg", row.EntityID, row.ItemIndex, row.Label)
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(seq int, row Row) bool {
	if s.overwrite {
		return true
	}
	_, err := os.Stat(filepath.Join(s.destDir, FileName(row)))
	if err == nil {
		s.record(seq, row)
	}
	return os.IsNotExist(err)
}

// Put writes the sample image.
func (s *FileSink) Put(_ context.Context, sample Sample) error {
	name := FileName(sample.Row)
	tmp, err := createTempFile(s.destDir, ".img-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(sample.Image); err != nil {
		_ = tmp.Close()        //nolint:errcheck // best-effort cleanup
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.destDir, name)); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", name, err)
	}
	s.record(sample.Seq, sample.Row)
	return nil
}

func (s *FileSink) record(seq int, row Row) {
	if !s.manifest || !row.HasLabel {
		return
	}
	s.mu.Lock()
	s.labels = append(s.labels, labelLine{seq: seq, name: FileName(row), label: row.Label})
	s.mu.Unlock()
}

// Close writes the labels manifest in row order, listing
// "<file name> <label>" for every labeled image in the directory.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.manifest || len(s.labels) == 0 {
		return nil
	}
	slices.SortFunc(s.labels, func(a, b labelLine) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return tabular.WriteFile(filepath.Join(s.destDir, LabelsFile), func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, l := range s.labels {
			bw.WriteString(l.name)                //nolint:errcheck // error surfaces from Flush
			bw.WriteByte(' ')                     //nolint:errcheck // error surfaces from Flush
			bw.WriteString(strconv.Itoa(l.label)) //nolint:errcheck // error surfaces from Flush
			bw.WriteByte('\n')                    //nolint:errcheck // error surfaces from Flush
		}
		return bw.Flush()
	})
}

func createTempFile(dir, prefix string) (*os.File, error) {
	const attempts = 10
	for range attempts {
		var b [8]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, prefix+hex.EncodeToString(b[:])), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	return nil, errors.New("create temp file: exhausted retries")
}
