package record

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the scanner, index and splitter.
var (
	// ErrTruncatedRecord is returned when a record ends before its declared length.
	ErrTruncatedRecord = errors.New("bsonsplit: truncated record")

	// ErrDecodeFailure is returned when a record body cannot be decoded.
	ErrDecodeFailure = errors.New("bsonsplit: decode failure")

	// ErrDuplicateKey is returned when two records share a product id.
	ErrDuplicateKey = errors.New("bsonsplit: duplicate product id")

	// ErrMissingCategory is returned when a required category label is absent
	// or unknown to the category index.
	ErrMissingCategory = errors.New("bsonsplit: missing category")

	// ErrItemOutOfRange is returned when an image index exceeds the product's image count.
	ErrItemOutOfRange = errors.New("bsonsplit: item index out of range")

	// ErrSizeOverflow is returned when offsets or lengths exceed supported limits.
	ErrSizeOverflow = errors.New("bsonsplit: size overflow")
)

// RecordError locates a fatal condition within an archive.
type RecordError struct {
	// Offset is the byte offset of the record's length prefix.
	Offset uint64

	// EntityID is the product id, when it was decoded before the failure.
	EntityID uint64
	HasID    bool

	// CategoryID is the category involved, when relevant.
	CategoryID  uint64
	HasCategory bool

	Err error
}

func (e *RecordError) Error() string {
	msg := fmt.Sprintf("record at offset %d", e.Offset)
	if e.HasID {
		msg += fmt.Sprintf(" (product %d)", e.EntityID)
	}
	if e.HasCategory {
		msg += fmt.Sprintf(" (category %d)", e.CategoryID)
	}
	return msg + ": " + e.Err.Error()
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
