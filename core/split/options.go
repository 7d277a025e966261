package split

import (
	"log/slog"

	"github.com/meigma/bsonsplit/core/internal/record"
)

// Defaults used when no option is given.
const (
	DefaultSplitRatio = 0.2
	DefaultDropRatio  = 0.0
)

// Option configures a Splitter.
type Option func(*Splitter)

// WithSplitRatio sets the fraction of each category's kept products assigned
// to validation. It must lie in (0, 1).
func WithSplitRatio(r float64) Option {
	return func(s *Splitter) {
		s.splitRatio = r
	}
}

// WithDropRatio sets the fraction of each category's products discarded
// before splitting. It must lie in [0, 1).
func WithDropRatio(r float64) Option {
	return func(s *Splitter) {
		s.dropRatio = r
	}
}

// WithSeed makes the split reproducible. Without a seed, a random one is
// drawn per run and reported in Result.Seed.
func WithSeed(seed uint64) Option {
	return func(s *Splitter) {
		s.seed = seed
		s.seeded = true
	}
}

// WithWorkers sets the number of categories processed concurrently.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
// The result does not depend on the worker count.
func WithWorkers(n int) Option {
	return func(s *Splitter) {
		s.workers = n
	}
}

// WithProgress sets a callback invoked after each category is split.
func WithProgress(fn record.ProgressFunc) Option {
	return func(s *Splitter) {
		s.progress = fn
	}
}

// WithLogger sets the logger for split operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Splitter) {
		s.logger = logger
	}
}
