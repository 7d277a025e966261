package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/bsonsplit/core/cache"
	"github.com/meigma/bsonsplit/core/export"
	corehttp "github.com/meigma/bsonsplit/core/http"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/internal/record"
)

// ErrArchiveMismatch is returned when an offset index does not describe the
// archive it is paired with.
var ErrArchiveMismatch = errors.New("core: index does not match archive")

// ErrNotFound is returned when a product id is not in the index.
var ErrNotFound = errors.New("core: product not found")

// Index is the read side of an offset index.
//
// *index.Index and *index.View implement Index.
type Index interface {
	Len() int
	Lookup(id uint64) (index.Entry, bool)
	ArchiveSize() uint64
	Digest() (digest.Digest, bool)
}

// Archive provides random access to the products of an indexed archive.
//
// Archive is safe for concurrent use.
type Archive struct {
	source       index.ByteSource
	idx          Index
	decoder      record.Decoder
	verifyDigest bool
	closer       io.Closer
	logger       *slog.Logger
	cache        *cache.Disk
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// New pairs an archive source with its offset index.
//
// The source size must equal the archive size recorded in the index.
func New(source index.ByteSource, idx Index, opts ...Option) (*Archive, error) {
	a := &Archive{
		source:  source,
		idx:     idx,
		decoder: record.NewBSONDecoder(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if size := source.Size(); size < 0 || uint64(size) != idx.ArchiveSize() {
		return nil, fmt.Errorf("%w: archive is %d bytes, index expects %d", ErrArchiveMismatch, size, idx.ArchiveSize())
	}
	if a.verifyDigest {
		if err := a.verify(); err != nil {
			return nil, err
		}
	}
	if a.cache != nil {
		if err := a.wrapCache(); err != nil {
			return nil, err
		}
	}
	a.log().Debug("archive opened", "products", idx.Len(), "size", idx.ArchiveSize())
	return a, nil
}

// Open opens the archive at archivePath with the index stored at indexPath.
// The index may be a CSV table or a binary index. An http or https
// archivePath is read with range requests bounded by ctx.
func Open(ctx context.Context, archivePath, indexPath string, opts ...Option) (*Archive, error) {
	idx, err := index.LoadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", indexPath, err)
	}
	if corehttp.IsURL(archivePath) {
		remote, err := corehttp.NewSource(ctx, archivePath)
		if err != nil {
			return nil, err
		}
		return New(remote, idx, opts...)
	}
	src, err := index.OpenFileSource(archivePath)
	if err != nil {
		return nil, err
	}
	a, err := New(src, idx, opts...)
	if err != nil {
		_ = src.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	a.closer = src
	return a, nil
}

func (a *Archive) verify() error {
	want, ok := a.idx.Digest()
	if !ok {
		a.log().Warn("index carries no archive digest, skipping verification")
		return nil
	}
	verifier := want.Verifier()
	if _, err := io.Copy(verifier, io.NewSectionReader(a.source, 0, a.source.Size())); err != nil {
		return fmt.Errorf("hash archive: %w", err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: digest differs from %s", ErrArchiveMismatch, want)
	}
	return nil
}

func (a *Archive) wrapCache() error {
	id := ""
	if d, ok := a.idx.Digest(); ok {
		id = d.String()
	} else if tagged, ok := a.source.(interface{ ETag() string }); ok {
		id = tagged.ETag()
	}
	if id == "" {
		a.log().Warn("archive has no digest or entity tag, reading uncached")
		return nil
	}
	cached, err := a.cache.Wrap(a.source, id)
	if err != nil {
		return err
	}
	a.source = cached
	return nil
}

// Len returns the number of products.
func (a *Archive) Len() int {
	return a.idx.Len()
}

// Lookup returns the index entry of a product.
func (a *Archive) Lookup(id uint64) (index.Entry, bool) {
	return a.idx.Lookup(id)
}

// Raw returns the encoded record of a product.
func (a *Archive) Raw(id uint64) ([]byte, error) {
	e, ok := a.idx.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return index.ReadRecord(a.source, e)
}

// Product reads and decodes a product.
func (a *Archive) Product(id uint64) (*record.Document, error) {
	e, ok := a.idx.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	raw, err := index.ReadRecord(a.source, e)
	if err != nil {
		return nil, err
	}
	doc, err := a.decoder.Decode(raw)
	if err != nil {
		return nil, &record.RecordError{Offset: e.Offset, EntityID: id, HasID: true, Err: err}
	}
	return doc, nil
}

// Image returns image i of a product.
func (a *Archive) Image(id uint64, i int) ([]byte, error) {
	doc, err := a.Product(id)
	if err != nil {
		return nil, err
	}
	img, err := doc.Item(i)
	if err != nil {
		return nil, fmt.Errorf("product %d image %d: %w", id, i, err)
	}
	return img, nil
}

// Exporter returns an export processor reading from this archive.
func (a *Archive) Exporter(opts ...export.Option) *export.Processor {
	base := []export.Option{export.WithDecoder(a.decoder), export.WithLogger(a.logger)}
	return export.NewProcessor(a.source, a.idx, append(base, opts...)...)
}

// Close releases the archive file when the Archive was created by Open.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
