package core

import "github.com/meigma/bsonsplit/core/internal/record"

// Re-export types from internal/record for public API.
type (
	// Record locates one product record in an archive.
	Record = record.Record

	// Header holds the fields read from a record without its images.
	Header = record.Header

	// Document is a fully decoded product record.
	Document = record.Document

	// Decoder turns raw record bytes into structured fields.
	Decoder = record.Decoder

	// BSONDecoder decodes BSON product records.
	BSONDecoder = record.BSONDecoder

	// RecordError carries the archive position of a failure.
	RecordError = record.RecordError

	// ProgressEvent represents a progress update during operations.
	ProgressEvent = record.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = record.ProgressStage

	// ProgressFunc receives progress updates during operations.
	ProgressFunc = record.ProgressFunc
)

// NewBSONDecoder returns a decoder using the default field names.
var NewBSONDecoder = record.NewBSONDecoder

// Re-export progress stage constants.
const (
	StageScanning  = record.StageScanning
	StageSplitting = record.StageSplitting
	StageExporting = record.StageExporting
)

// Sentinel errors re-exported from internal/record.
var (
	// ErrTruncatedRecord is returned when the archive ends inside a record.
	ErrTruncatedRecord = record.ErrTruncatedRecord

	// ErrDecodeFailure is returned when a record cannot be decoded.
	ErrDecodeFailure = record.ErrDecodeFailure

	// ErrDuplicateKey is returned when a product id occurs twice.
	ErrDuplicateKey = record.ErrDuplicateKey

	// ErrMissingCategory is returned when a label is required but absent.
	ErrMissingCategory = record.ErrMissingCategory

	// ErrItemOutOfRange is returned for an image index past the product's images.
	ErrItemOutOfRange = record.ErrItemOutOfRange

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = record.ErrSizeOverflow
)
