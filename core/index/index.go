package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/bsonsplit/core/internal/record"
	"github.com/meigma/bsonsplit/core/scan"
)

// Entry locates one product record in the archive.
type Entry struct {
	EntityID    uint64
	NumItems    uint32
	Offset      uint64
	Length      uint32
	CategoryID  uint64
	HasCategory bool
}

// Source produces archive records in offset order.
//
// *scan.Scanner implements Source.
type Source interface {
	Next(ctx context.Context) (record.Record, error)
}

// Index is an immutable, id-sorted offset index.
type Index struct {
	entries     []Entry
	labeled     bool
	archiveSize uint64
	digest      digest.Digest
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger for index construction.
func WithLogger(logger *slog.Logger) Option {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// Build drains src and indexes every record by product id.
//
// A repeated product id fails with record.ErrDuplicateKey. When ctx is
// cancelled, Build returns the index of the records scanned so far together
// with the context error. Any other failure returns a nil index.
func Build(ctx context.Context, src Source, opts ...Option) (*Index, error) {
	cfg := buildConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	seen := make(map[uint64]uint64)
	var entries []Entry
	var size uint64
	for {
		rec, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				logger.Warn("index build cancelled", "records", len(entries))
				return fromSorted(sortEntries(entries), size), err
			}
			return nil, err
		}
		if prev, dup := seen[rec.EntityID]; dup {
			return nil, &record.RecordError{
				Offset:   rec.Offset,
				EntityID: rec.EntityID,
				HasID:    true,
				Err:      fmt.Errorf("%w: first seen at offset %d", record.ErrDuplicateKey, prev),
			}
		}
		seen[rec.EntityID] = rec.Offset
		entries = append(entries, Entry{
			EntityID:    rec.EntityID,
			NumItems:    rec.NumItems,
			Offset:      rec.Offset,
			Length:      rec.Length,
			CategoryID:  rec.CategoryID,
			HasCategory: rec.HasCategory,
		})
		size = rec.End()
	}

	idx := fromSorted(sortEntries(entries), size)
	if s, ok := src.(interface{ Stats() scan.Stats }); ok {
		idx.digest = s.Stats().Digest
	}
	logger.Info("offset index built",
		"products", idx.Len(),
		"images", idx.TotalItems(),
		"labeled", idx.labeled,
		"archive_bytes", idx.archiveSize)
	return idx, nil
}

// New builds an index from entries in any order.
//
// archiveSize is the size of the indexed archive; zero derives it from the
// furthest record end.
func New(entries []Entry, archiveSize uint64) (*Index, error) {
	sorted := sortEntries(slices.Clone(entries))
	for i := 1; i < len(sorted); i++ {
		if sorted[i].EntityID == sorted[i-1].EntityID {
			return nil, &record.RecordError{
				Offset:   sorted[i].Offset,
				EntityID: sorted[i].EntityID,
				HasID:    true,
				Err:      fmt.Errorf("%w: also at offset %d", record.ErrDuplicateKey, sorted[i-1].Offset),
			}
		}
	}
	if archiveSize == 0 {
		for _, e := range sorted {
			archiveSize = max(archiveSize, e.Offset+uint64(e.Length))
		}
	}
	return fromSorted(sorted, archiveSize), nil
}

func sortEntries(entries []Entry) []Entry {
	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	return entries
}

func fromSorted(entries []Entry, archiveSize uint64) *Index {
	idx := &Index{entries: entries, archiveSize: archiveSize}
	for _, e := range entries {
		if e.HasCategory {
			idx.labeled = true
			break
		}
	}
	return idx
}

// withDigest returns idx after recording the archive digest.
func (idx *Index) withDigest(d digest.Digest) *Index {
	idx.digest = d
	return idx
}

// Len returns the number of products in the index.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Lookup returns the entry for a product id.
func (idx *Index) Lookup(id uint64) (Entry, bool) {
	i, found := slices.BinarySearchFunc(idx.entries, id, func(e Entry, id uint64) int {
		return cmp.Compare(e.EntityID, id)
	})
	if !found {
		return Entry{}, false
	}
	return idx.entries[i], true
}

// At returns the i-th entry in product id order.
func (idx *Index) At(i int) Entry {
	return idx.entries[i]
}

// Entries returns an iterator over all entries in product id order.
func (idx *Index) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range idx.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Labeled reports whether any entry carries a category.
func (idx *Index) Labeled() bool {
	return idx.labeled
}

// ArchiveSize returns the size of the indexed archive in bytes.
func (idx *Index) ArchiveSize() uint64 {
	return idx.archiveSize
}

// Digest returns the digest of the archive, if it was recorded.
func (idx *Index) Digest() (digest.Digest, bool) {
	return idx.digest, idx.digest != ""
}

// TotalItems returns the sum of image counts over all entries.
func (idx *Index) TotalItems() uint64 {
	var total uint64
	for _, e := range idx.entries {
		total += uint64(e.NumItems)
	}
	return total
}
