package bsonsplit

import (
	"github.com/meigma/bsonsplit/core"
	"github.com/meigma/bsonsplit/core/category"
	"github.com/meigma/bsonsplit/core/export"
	"github.com/meigma/bsonsplit/core/split"
)

// Errors re-exported from core.
var (
	// ErrTruncatedRecord is returned when the archive ends inside a record.
	ErrTruncatedRecord = core.ErrTruncatedRecord

	// ErrDecodeFailure is returned when a record cannot be decoded.
	ErrDecodeFailure = core.ErrDecodeFailure

	// ErrDuplicateKey is returned when two records share a product id.
	ErrDuplicateKey = core.ErrDuplicateKey

	// ErrMissingCategory is returned when a product has no usable category.
	ErrMissingCategory = core.ErrMissingCategory

	// ErrItemOutOfRange is returned for an image index past a product's images.
	ErrItemOutOfRange = core.ErrItemOutOfRange

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = core.ErrSizeOverflow

	// ErrArchiveMismatch is returned when an offset index does not describe its archive.
	ErrArchiveMismatch = core.ErrArchiveMismatch
)

// Errors re-exported from the stage packages.
var (
	// ErrInvalidRatio is returned when a split or drop ratio is out of range.
	ErrInvalidRatio = split.ErrInvalidRatio

	// ErrDuplicateCategory is returned when a catalog lists a category twice.
	ErrDuplicateCategory = category.ErrDuplicateCategory

	// ErrNotIndexed is returned when an exported row names an unindexed product.
	ErrNotIndexed = export.ErrNotIndexed
)

// RecordError carries the archive position of a failure.
type RecordError = core.RecordError
