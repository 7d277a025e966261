// Package split partitions a labeled offset index into stratified training
// and validation item tables.
//
// Products are split per category, never per image: all images of a product
// land in the same table. Within each category a fraction of products may
// first be dropped, then floor(kept * split ratio) products are drawn for
// validation. Both draws are uniform without replacement.
//
// Every category draws from its own PCG stream derived from the run seed and
// the category id, and the training rows are shuffled with a separate
// stream, so a seeded split is reproducible regardless of how many workers
// process categories.
package split

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/bsonsplit/core/category"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/internal/record"
	"github.com/meigma/bsonsplit/core/table"
)

// ErrInvalidRatio is returned when a split or drop ratio is out of range.
var ErrInvalidRatio = errors.New("split: invalid ratio")

// shuffleStream selects the PCG stream used for the final training shuffle.
const shuffleStream = 0x9e3779b97f4a7c15

// EntrySource iterates offset index entries.
//
// *index.Index and *index.View implement EntrySource.
type EntrySource interface {
	Entries() iter.Seq[index.Entry]
}

// CategoryStats describes how one category was partitioned.
type CategoryStats struct {
	CategoryID uint64

	// Population is the number of products in the category.
	Population int

	// Kept is floor(Population * (1 - drop ratio)).
	Kept int

	// Val is floor(Kept * split ratio); Kept - Val products went to training.
	Val int

	TrainRows int
	ValRows   int
}

// Result holds the item tables produced by a split.
type Result struct {
	// Train rows are shuffled.
	Train []table.ItemRow

	// Val rows are grouped by category (ascending id), then product, then image.
	Val []table.ItemRow

	// Categories lists per-category statistics in ascending category id order.
	Categories []CategoryStats

	// Seed is the seed that reproduces this result.
	Seed uint64
}

// Splitter performs stratified train/validation splits.
type Splitter struct {
	splitRatio float64
	dropRatio  float64
	seed       uint64
	seeded     bool
	workers    int
	progress   record.ProgressFunc
	logger     *slog.Logger
}

// New creates a Splitter, validating the configured ratios.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		splitRatio: DefaultSplitRatio,
		dropRatio:  DefaultDropRatio,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !(s.splitRatio > 0 && s.splitRatio < 1) {
		return nil, fmt.Errorf("%w: split ratio %v not in (0, 1)", ErrInvalidRatio, s.splitRatio)
	}
	if !(s.dropRatio >= 0 && s.dropRatio < 1) {
		return nil, fmt.Errorf("%w: drop ratio %v not in [0, 1)", ErrInvalidRatio, s.dropRatio)
	}
	return s, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Splitter) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// group is the population of one category.
type group struct {
	categoryID uint64
	indices    category.Indices
	entries    []index.Entry
}

// categoryResult holds the rows emitted for one category.
type categoryResult struct {
	train []table.ItemRow
	val   []table.ItemRow
	stats CategoryStats
}

// Split partitions src into training and validation tables.
//
// Every entry must carry a category known to cats; otherwise Split fails with
// record.ErrMissingCategory. Categories whose population is too small for
// the ratios are not an error: floor rounding sends them entirely to
// training.
func (s *Splitter) Split(ctx context.Context, src EntrySource, cats *category.Index) (*Result, error) {
	groups, err := groupByCategory(src, cats)
	if err != nil {
		return nil, err
	}

	seed := s.seed
	if !s.seeded {
		seed = rand.Uint64() //nolint:gosec // seeds are reported, not secret
	}
	s.log().Info("splitting products",
		"categories", len(groups),
		"split_ratio", s.splitRatio,
		"drop_ratio", s.dropRatio,
		"seed", seed)

	results := make([]categoryResult, len(groups))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount(len(groups)))
	for i := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.splitCategory(groups[i], seed)
			if s.progress != nil {
				s.progress(record.ProgressEvent{
					Stage:        record.StageSplitting,
					RecordsDone:  int(done.Add(1)),
					RecordsTotal: len(groups),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Seed: seed, Categories: make([]CategoryStats, len(results))}
	var trainLen, valLen int
	for _, r := range results {
		trainLen += len(r.train)
		valLen += len(r.val)
	}
	res.Train = make([]table.ItemRow, 0, trainLen)
	res.Val = make([]table.ItemRow, 0, valLen)
	for i, r := range results {
		res.Train = append(res.Train, r.train...)
		res.Val = append(res.Val, r.val...)
		res.Categories[i] = r.stats
	}

	shuffle := rand.New(rand.NewPCG(seed, shuffleStream)) //nolint:gosec // reproducible sampling
	shuffle.Shuffle(len(res.Train), func(i, j int) {
		res.Train[i], res.Train[j] = res.Train[j], res.Train[i]
	})

	s.log().Info("split complete", "train_rows", len(res.Train), "val_rows", len(res.Val))
	return res, nil
}

func (s *Splitter) workerCount(groups int) int {
	switch {
	case s.workers < 0:
		return 1
	case s.workers == 0:
		return max(1, min(runtime.GOMAXPROCS(0), groups))
	default:
		return s.workers
	}
}

// splitCategory runs the drop-then-split draw for one category.
func (s *Splitter) splitCategory(g group, seed uint64) categoryResult {
	r := rand.New(rand.NewPCG(seed, g.categoryID)) //nolint:gosec // reproducible sampling

	population := len(g.entries)
	kept := g.entries
	if keepSize := floorFraction(population, 1-s.dropRatio); keepSize < population {
		mask := choose(r, population, keepSize)
		kept = make([]index.Entry, 0, keepSize)
		for i, e := range g.entries {
			if mask[i] {
				kept = append(kept, e)
			}
		}
	}

	valSize := floorFraction(len(kept), s.splitRatio)
	var valMask []bool
	if valSize > 0 {
		valMask = choose(r, len(kept), valSize)
	}

	out := categoryResult{stats: CategoryStats{
		CategoryID: g.categoryID,
		Population: population,
		Kept:       len(kept),
		Val:        valSize,
	}}
	for i, e := range kept {
		isVal := valMask != nil && valMask[i]
		for item := range int(e.NumItems) {
			row := table.ItemRow{
				EntityID:    e.EntityID,
				FineIndex:   g.indices.Fine,
				Level1Index: g.indices.Level1,
				Level2Index: g.indices.Level2,
				ItemIndex:   item,
			}
			if isVal {
				out.val = append(out.val, row)
			} else {
				out.train = append(out.train, row)
			}
		}
	}
	out.stats.TrainRows = len(out.train)
	out.stats.ValRows = len(out.val)
	return out
}

// groupByCategory buckets entries by category id, preserving entry order
// within each bucket, and returns buckets in ascending category id order.
func groupByCategory(src EntrySource, cats *category.Index) ([]group, error) {
	byID := make(map[uint64]int)
	var groups []group
	for e := range src.Entries() {
		if !e.HasCategory {
			return nil, &record.RecordError{
				Offset:   e.Offset,
				EntityID: e.EntityID,
				HasID:    true,
				Err:      record.ErrMissingCategory,
			}
		}
		gi, ok := byID[e.CategoryID]
		if !ok {
			ind, known := cats.Lookup(e.CategoryID)
			if !known {
				return nil, &record.RecordError{
					Offset:      e.Offset,
					EntityID:    e.EntityID,
					HasID:       true,
					CategoryID:  e.CategoryID,
					HasCategory: true,
					Err:         fmt.Errorf("%w: category not in catalog", record.ErrMissingCategory),
				}
			}
			gi = len(groups)
			byID[e.CategoryID] = gi
			groups = append(groups, group{categoryID: e.CategoryID, indices: ind})
		}
		groups[gi].entries = append(groups[gi].entries, e)
	}
	slices.SortFunc(groups, func(a, b group) int {
		return cmp.Compare(a.categoryID, b.categoryID)
	})
	return groups, nil
}
