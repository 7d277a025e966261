package export

import (
	"log/slog"
	"time"

	"github.com/meigma/bsonsplit/core/internal/record"
)

// DefaultCacheTTL bounds how long a decoded record stays cached.
const DefaultCacheTTL = time.Minute

// Option configures a Processor.
type Option func(*Processor)

// WithDecoder sets the record decoder. The default decodes BSON products.
func WithDecoder(d record.Decoder) Option {
	return func(p *Processor) {
		p.decoder = d
	}
}

// WithWorkers sets the number of concurrent export workers.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithLimit exports only the first n rows. Zero exports every row.
func WithLimit(n int) Option {
	return func(p *Processor) {
		p.limit = n
	}
}

// WithCacheTTL sets how long a decoded record is kept for later rows of the
// same product.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Processor) {
		p.cacheTTL = ttl
	}
}

// WithProgress sets a callback invoked after each row.
func WithProgress(fn record.ProgressFunc) Option {
	return func(p *Processor) {
		p.progress = fn
	}
}

// WithLogger sets the logger for export operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}
