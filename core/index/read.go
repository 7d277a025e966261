package index

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/bsonsplit/core/internal/record"
	"github.com/meigma/bsonsplit/core/internal/sizing"
)

// ByteSource provides random access to an archive.
//
// *os.File does not implement Size; use OpenFileSource for local archives.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// ReadRecord reads the raw bytes of the record described by e.
func ReadRecord(src ByteSource, e Entry) ([]byte, error) {
	size := src.Size()
	if size < 0 || !sizing.Within(e.Offset, uint64(e.Length), uint64(size)) {
		return nil, &record.RecordError{
			Offset:   e.Offset,
			EntityID: e.EntityID,
			HasID:    true,
			Err:      fmt.Errorf("%w: range %d+%d exceeds archive size %d", record.ErrSizeOverflow, e.Offset, e.Length, size),
		}
	}
	off, err := sizing.ToInt64(e.Offset, record.ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, e.Length)
	n, err := src.ReadAt(buf, off)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = record.ErrTruncatedRecord
	}
	return nil, &record.RecordError{Offset: e.Offset, EntityID: e.EntityID, HasID: true, Err: err}
}
