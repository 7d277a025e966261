package bsonsplit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/bsonsplit/core"
	"github.com/meigma/bsonsplit/core/category"
	"github.com/meigma/bsonsplit/core/export"
	corehttp "github.com/meigma/bsonsplit/core/http"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/scan"
	"github.com/meigma/bsonsplit/core/split"
	"github.com/meigma/bsonsplit/core/table"
)

// Observer receives the statistics of completed stages.
type Observer interface {
	ObserveScan(archive string, stats scan.Stats)
	ObserveSplit(res *split.Result)
	ObserveExport(sink string, stats export.Stats)
}

// Pipeline runs the preparation stages with shared settings.
type Pipeline struct {
	logger        *slog.Logger
	progress      ProgressFunc
	observer      Observer
	workers       int
	splitRatio    float64
	dropRatio     float64
	seed          *uint64
	maxRecordSize uint32
	decoder       core.Decoder
}

// New creates a Pipeline with the given options.
func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		splitRatio: split.DefaultSplitRatio,
		dropRatio:  split.DefaultDropRatio,
		decoder:    core.NewBSONDecoder(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Scan builds the offset index of the archive read from r.
//
// name identifies the archive in logs and metrics. If labeled is set, every
// record must carry a category. On cancellation the partial index of fully
// scanned records is returned together with the context error.
func (p *Pipeline) Scan(ctx context.Context, name string, r io.Reader, labeled bool) (*index.Index, scan.Stats, error) {
	s := scan.New(r,
		scan.WithDecoder(p.decoder),
		scan.WithRequireCategory(labeled),
		scan.WithMaxRecordSize(p.maxRecordSize),
		scan.WithProgress(p.progress),
		scan.WithLogger(p.logger),
	)
	idx, err := index.Build(ctx, s, index.WithLogger(p.logger))
	stats := s.Stats()
	if err != nil {
		return idx, stats, fmt.Errorf("index %s: %w", name, err)
	}
	if p.observer != nil {
		p.observer.ObserveScan(name, stats)
	}
	return idx, stats, nil
}

// ScanFile builds the offset index of the archive at path, which may be a
// local file or an http or https URL.
func (p *Pipeline) ScanFile(ctx context.Context, path string, labeled bool) (*index.Index, scan.Stats, error) {
	var r io.ReadCloser
	if corehttp.IsURL(path) {
		src, err := corehttp.NewSource(ctx, path)
		if err != nil {
			return nil, scan.Stats{}, err
		}
		if r, err = src.Open(ctx); err != nil {
			return nil, scan.Stats{}, err
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, scan.Stats{}, err
		}
		r = f
	}
	defer r.Close()
	return p.Scan(ctx, archiveName(path), r, labeled)
}

// Categories loads the category index from a catalog file.
func (p *Pipeline) Categories(path string) (*category.Index, error) {
	cats, err := category.LoadFile(path)
	if err != nil {
		return nil, err
	}
	p.log().Info("loaded categories",
		"categories", cats.Len(),
		"level1", cats.Level1Len(),
		"level2", cats.Level2Len())
	return cats, nil
}

// Split partitions a labeled offset index into training and validation rows.
func (p *Pipeline) Split(ctx context.Context, src split.EntrySource, cats *category.Index) (*split.Result, error) {
	opts := []split.Option{
		split.WithSplitRatio(p.splitRatio),
		split.WithDropRatio(p.dropRatio),
		split.WithWorkers(p.workers),
		split.WithProgress(p.progress),
		split.WithLogger(p.logger),
	}
	if p.seed != nil {
		opts = append(opts, split.WithSeed(*p.seed))
	}
	s, err := split.New(opts...)
	if err != nil {
		return nil, err
	}
	res, err := s.Split(ctx, src, cats)
	if err != nil {
		return nil, err
	}
	if p.observer != nil {
		p.observer.ObserveSplit(res)
	}
	return res, nil
}

// TestRows expands an unlabeled offset index into one row per image.
func (p *Pipeline) TestRows(src table.EntrySource) []table.TestRow {
	return table.Expand(src)
}

// Export writes the images of rows from archive a to sink.
//
// sinkName labels the export in metrics.
func (p *Pipeline) Export(ctx context.Context, a *core.Archive, rows []export.Row, sink export.Sink, sinkName string, opts ...export.Option) (export.Stats, error) {
	base := []export.Option{
		export.WithWorkers(p.workers),
		export.WithProgress(p.progress),
		export.WithLogger(p.logger),
	}
	stats, err := a.Exporter(append(base, opts...)...).Export(ctx, rows, sink)
	if err != nil {
		return stats, err
	}
	if p.observer != nil {
		p.observer.ObserveExport(sinkName, stats)
	}
	return stats, nil
}

func archiveName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
