package export

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/internal/record"
)

// ErrNotIndexed is returned when a row names a product absent from the
// offset index.
var ErrNotIndexed = errors.New("export: product not in offset index")

// Lookup resolves product ids to index entries.
//
// *index.Index and *index.View implement Lookup.
type Lookup interface {
	Lookup(id uint64) (index.Entry, bool)
}

// Processor exports rows from an archive.
type Processor struct {
	source   index.ByteSource
	lookup   Lookup
	decoder  record.Decoder
	workers  int
	limit    int
	cacheTTL time.Duration
	progress record.ProgressFunc
	logger   *slog.Logger
}

// NewProcessor creates a Processor reading records from source.
func NewProcessor(source index.ByteSource, lookup Lookup, opts ...Option) *Processor {
	p := &Processor{
		source:   source,
		lookup:   lookup,
		decoder:  record.NewBSONDecoder(),
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// task is one row scheduled for export.
type task struct {
	seq   int
	row   Row
	entry index.Entry
}

// Export writes the image of every row to sink.
//
// Sample keys follow row order, but rows are processed in archive order.
// Processing stops on the first error.
func (p *Processor) Export(ctx context.Context, rows []Row, sink Sink) (Stats, error) {
	if p.limit > 0 && len(rows) > p.limit {
		rows = rows[:p.limit]
	}

	var stats Stats
	tasks := make([]task, 0, len(rows))
	for seq, row := range rows {
		if !sink.ShouldProcess(seq, row) {
			stats.Skipped++
			continue
		}
		e, ok := p.lookup.Lookup(row.EntityID)
		if !ok {
			return stats, &record.RecordError{EntityID: row.EntityID, HasID: true, Err: ErrNotIndexed}
		}
		tasks = append(tasks, task{seq: seq, row: row, entry: e})
	}
	slices.SortStableFunc(tasks, func(a, b task) int {
		return cmp.Compare(a.entry.Offset, b.entry.Offset)
	})

	// Rows still to come per product, so decoded records are evicted once
	// their last row is written.
	remaining := make(map[uint64]*atomic.Int32)
	for _, t := range tasks {
		n, ok := remaining[t.row.EntityID]
		if !ok {
			n = new(atomic.Int32)
			remaining[t.row.EntityID] = n
		}
		n.Add(1)
	}

	docs := cache.New(p.cacheTTL, 0)
	defer docs.Flush()
	r := &run{p: p, docs: docs}

	p.log().Info("exporting samples", "rows", len(rows), "scheduled", len(tasks), "skipped", stats.Skipped)

	var (
		written atomic.Int64
		bytes   atomic.Uint64
		next    atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerCount(len(tasks)))
	for _, t := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := r.image(t)
			if err != nil {
				return err
			}
			if err := sink.Put(gctx, Sample{Key: Key(t.seq), Seq: t.seq, Row: t.row, Image: img}); err != nil {
				return fmt.Errorf("export: put %s: %w", Key(t.seq), err)
			}
			if remaining[t.row.EntityID].Add(-1) == 0 {
				docs.Delete(docKey(t.row.EntityID))
			}
			written.Add(1)
			bytes.Add(uint64(len(img)))
			if p.progress != nil {
				p.progress(record.ProgressEvent{
					Stage:        record.StageExporting,
					RecordsDone:  int(next.Add(1)),
					RecordsTotal: len(tasks),
				})
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	stats.Written = int(written.Load())
	stats.Bytes = bytes.Load()
	if err != nil {
		return stats, err
	}
	p.log().Info("export complete", "written", stats.Written, "skipped", stats.Skipped, "bytes", stats.Bytes)
	return stats, nil
}

func (p *Processor) workerCount(tasks int) int {
	switch {
	case p.workers < 0:
		return 1
	case p.workers == 0:
		return max(1, min(runtime.GOMAXPROCS(0), tasks))
	default:
		return p.workers
	}
}

// run holds per-export decode state.
type run struct {
	p    *Processor
	docs *cache.Cache
	sf   singleflight.Group
}

func docKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// image returns the payload of t's item, decoding its record at most once
// while rows of the same product are in flight.
func (r *run) image(t task) ([]byte, error) {
	doc, err := r.document(t.entry)
	if err != nil {
		return nil, err
	}
	img, err := doc.Item(t.row.ItemIndex)
	if err != nil {
		return nil, &record.RecordError{
			Offset:      t.entry.Offset,
			EntityID:    t.entry.EntityID,
			HasID:       true,
			CategoryID:  t.entry.CategoryID,
			HasCategory: t.entry.HasCategory,
			Err:         fmt.Errorf("%w: item %d of %d", err, t.row.ItemIndex, len(doc.Items)),
		}
	}
	return img, nil
}

func (r *run) document(e index.Entry) (*record.Document, error) {
	key := docKey(e.EntityID)
	if v, ok := r.docs.Get(key); ok {
		return v.(*record.Document), nil //nolint:forcetypeassert // cache holds documents only
	}
	v, err, _ := r.sf.Do(key, func() (any, error) {
		if v, ok := r.docs.Get(key); ok {
			return v, nil
		}
		raw, err := index.ReadRecord(r.p.source, e)
		if err != nil {
			return nil, err
		}
		doc, err := r.p.decoder.Decode(raw)
		if err != nil {
			if !errors.Is(err, record.ErrDecodeFailure) {
				err = fmt.Errorf("%w: %w", record.ErrDecodeFailure, err)
			}
			return nil, &record.RecordError{Offset: e.Offset, EntityID: e.EntityID, HasID: true, Err: err}
		}
		r.docs.SetDefault(key, doc)
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*record.Document), nil //nolint:forcetypeassert // singleflight returns documents only
}
