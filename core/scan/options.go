package scan

import (
	"log/slog"

	"github.com/meigma/bsonsplit/core/internal/record"
)

// DefaultMaxRecordSize bounds a single record (64MB).
const DefaultMaxRecordSize = 64 << 20

// Option configures a Scanner.
type Option func(*Scanner)

// WithDecoder sets the document decoder. The default decodes BSON.
func WithDecoder(d record.Decoder) Option {
	return func(s *Scanner) {
		s.decoder = d
	}
}

// WithRequireCategory makes a record without a category label a fatal error.
func WithRequireCategory(required bool) Option {
	return func(s *Scanner) {
		s.requireCategory = required
	}
}

// WithExpectedRecords sets the record count reported in progress events.
// It does not affect scanning.
func WithExpectedRecords(n int) Option {
	return func(s *Scanner) {
		s.expected = n
	}
}

// WithMaxRecordSize rejects records whose declared length exceeds limit.
// Zero uses DefaultMaxRecordSize.
func WithMaxRecordSize(limit uint32) Option {
	return func(s *Scanner) {
		if limit == 0 {
			limit = DefaultMaxRecordSize
		}
		s.maxRecordSize = limit
	}
}

// WithProgress sets a callback invoked after every scanned record.
func WithProgress(fn record.ProgressFunc) Option {
	return func(s *Scanner) {
		s.progress = fn
	}
}

// WithLogger sets the logger for scan operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}
