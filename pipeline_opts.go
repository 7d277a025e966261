package bsonsplit

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/meigma/bsonsplit/core"
	"github.com/meigma/bsonsplit/core/split"
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets the logger passed to every stage.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = logger
		return nil
	}
}

// WithProgress sets a callback receiving scan, split and export progress.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

// WithObserver reports stage statistics to o, typically a metrics collector.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) error {
		p.observer = o
		return nil
	}
}

// WithWorkers sets the concurrency of the split and export stages.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Pipeline) error {
		p.workers = n
		return nil
	}
}

// WithSplitRatio sets the fraction of each category's kept products
// assigned to validation. It must lie in (0, 1).
func WithSplitRatio(r float64) Option {
	return func(p *Pipeline) error {
		if !(r > 0 && r < 1) {
			return fmt.Errorf("%w: split ratio %v not in (0, 1)", split.ErrInvalidRatio, r)
		}
		p.splitRatio = r
		return nil
	}
}

// WithDropRatio sets the fraction of each category's products discarded
// before splitting. It must lie in [0, 1).
func WithDropRatio(r float64) Option {
	return func(p *Pipeline) error {
		if !(r >= 0 && r < 1) {
			return fmt.Errorf("%w: drop ratio %v not in [0, 1)", split.ErrInvalidRatio, r)
		}
		p.dropRatio = r
		return nil
	}
}

// WithSeed makes splits reproducible.
func WithSeed(seed uint64) Option {
	return func(p *Pipeline) error {
		p.seed = &seed
		return nil
	}
}

// WithMaxRecordSize rejects archive records longer than limit bytes.
func WithMaxRecordSize(limit uint32) Option {
	return func(p *Pipeline) error {
		p.maxRecordSize = limit
		return nil
	}
}

// WithDecoder replaces the BSON record decoder.
func WithDecoder(d core.Decoder) Option {
	return func(p *Pipeline) error {
		if d == nil {
			return errors.New("bsonsplit: nil decoder")
		}
		p.decoder = d
		return nil
	}
}
