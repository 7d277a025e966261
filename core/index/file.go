package index

import (
	"bytes"
	"io"
	"strings"

	"github.com/meigma/bsonsplit/core/internal/tabular"
)

// BinarySuffix marks a FlatBuffers index file. Any other path is CSV.
const BinarySuffix = ".fb"

// IsBinaryPath reports whether path names a FlatBuffers index, optionally
// zstd-compressed.
func IsBinaryPath(path string) bool {
	return strings.HasSuffix(strings.TrimSuffix(path, tabular.CompressedSuffix), BinarySuffix)
}

// SaveFile writes the index to path, choosing the format from the extension.
// A ".zst" suffix compresses the output.
func (idx *Index) SaveFile(path string) error {
	return tabular.WriteFile(path, func(w io.Writer) error {
		if !IsBinaryPath(path) {
			return idx.WriteCSV(w)
		}
		data, err := idx.MarshalBinary()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}

// LoadFile reads an index saved by SaveFile.
func LoadFile(path string) (*Index, error) {
	var idx *Index
	err := tabular.ReadFile(path, func(r io.Reader) error {
		if !IsBinaryPath(path) {
			var err error
			idx, err = ReadCSV(r)
			return err
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return err
		}
		var err error
		idx, err = UnmarshalBinary(buf.Bytes())
		return err
	})
	return idx, err
}
