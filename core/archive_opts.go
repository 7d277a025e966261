package core

import (
	"log/slog"

	"github.com/meigma/bsonsplit/core/cache"
	"github.com/meigma/bsonsplit/core/internal/record"
)

// Option configures an Archive.
type Option func(*Archive)

// WithDecoder sets the record decoder. The default decodes BSON products.
func WithDecoder(d record.Decoder) Option {
	return func(a *Archive) {
		a.decoder = d
	}
}

// WithVerifyDigest makes New hash the whole archive and compare the result
// with the digest stored in the index. Indices without a digest are accepted.
func WithVerifyDigest(enabled bool) Option {
	return func(a *Archive) {
		a.verifyDigest = enabled
	}
}

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithCache serves record reads through c. Entries are keyed by the archive
// digest recorded in the index, or by the entity tag of a remote archive.
// Archives with neither are read uncached.
func WithCache(c *cache.Disk) Option {
	return func(a *Archive) {
		a.cache = c
	}
}
