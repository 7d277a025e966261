package index

import (
	"fmt"
	"os"
)

// FileSource is a ByteSource backed by a local file.
type FileSource struct {
	*os.File
	size int64
}

// OpenFileSource opens the archive at path for random access.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &FileSource{File: f, size: info.Size()}, nil
}

// Size returns the archive size captured when the file was opened.
func (s *FileSource) Size() int64 {
	return s.size
}
