package scan

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/bsonsplit/core/internal/record"
)

const (
	prefixSize = 4

	// minRecordSize is the smallest valid BSON document: prefix plus terminator.
	minRecordSize = prefixSize + 1

	readBufferSize = 1 << 20
)

// Record is an alias for record.Record.
type Record = record.Record

// Stats summarizes a scan.
type Stats struct {
	// Records is the number of complete records returned.
	Records int

	// Bytes is the number of archive bytes consumed by complete records.
	Bytes uint64

	// EmptyItemLists counts records that carried zero images.
	// These are kept in the index but contribute no rows downstream.
	EmptyItemLists int

	// Digest is the digest of all scanned bytes. It is only set once the
	// scanner reached a clean end of archive.
	Digest digest.Digest
}

// Scanner reads records sequentially from an archive stream.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	r               *bufio.Reader
	decoder         record.Decoder
	requireCategory bool
	expected        int
	maxRecordSize   uint32
	progress        record.ProgressFunc
	logger          *slog.Logger

	digester digest.Digester
	offset   uint64
	buf      []byte
	stats    Stats
	done     bool
	err      error
}

// New creates a Scanner reading from r, which must be positioned at the
// start of the archive.
func New(r io.Reader, opts ...Option) *Scanner {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, readBufferSize)
	}
	s := &Scanner{
		r:             br,
		decoder:       record.NewBSONDecoder(),
		maxRecordSize: DefaultMaxRecordSize,
		digester:      digest.Canonical.Digester(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Scanner) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Stats returns the statistics accumulated so far.
func (s *Scanner) Stats() Stats {
	return s.stats
}

// Offset returns the archive offset of the next record.
func (s *Scanner) Offset() uint64 {
	return s.offset
}

// Next returns the next record.
//
// It returns io.EOF at a clean end of archive. Any other error is sticky:
// subsequent calls return the same error. Cancelling ctx stops the scan
// before the next record is read; records already returned stay valid.
func (s *Scanner) Next(ctx context.Context) (Record, error) {
	if s.err != nil {
		return Record{}, s.err
	}
	if s.done {
		return Record{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return Record{}, err
	}

	rec, err := s.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.finish()
			return Record{}, io.EOF
		}
		s.err = err
		return Record{}, err
	}

	s.stats.Records++
	s.stats.Bytes = rec.End()
	if rec.NumItems == 0 {
		s.stats.EmptyItemLists++
	}
	if s.progress != nil {
		s.progress(record.ProgressEvent{
			Stage:        record.StageScanning,
			RecordsDone:  s.stats.Records,
			RecordsTotal: s.expected,
			BytesDone:    s.stats.Bytes,
		})
	}
	return rec, nil
}

// All returns an iterator over the remaining records.
//
// The iterator yields a non-nil error at most once, as its final element.
// A clean end of archive is not reported as an error.
func (s *Scanner) All(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s *Scanner) next() (Record, error) {
	var prefix [prefixSize]byte
	n, err := io.ReadFull(s.r, prefix[:])
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return Record{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return Record{}, s.recordErr(fmt.Errorf("%w: length prefix has %d of %d bytes", record.ErrTruncatedRecord, n, prefixSize))
	case err != nil:
		return Record{}, s.recordErr(fmt.Errorf("read length prefix: %w", err))
	}

	declared := int32(binary.LittleEndian.Uint32(prefix[:])) //nolint:gosec // BSON lengths are signed int32
	if declared < minRecordSize {
		return Record{}, s.recordErr(fmt.Errorf("%w: declared length %d", record.ErrDecodeFailure, declared))
	}
	length := uint32(declared)
	if length > s.maxRecordSize {
		return Record{}, s.recordErr(fmt.Errorf("%w: declared length %d exceeds %d", record.ErrSizeOverflow, length, s.maxRecordSize))
	}

	if cap(s.buf) < int(length) {
		s.buf = make([]byte, length)
	}
	buf := s.buf[:length]
	copy(buf, prefix[:])
	if n, err := io.ReadFull(s.r, buf[prefixSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Record{}, s.recordErr(fmt.Errorf("%w: body has %d of %d bytes", record.ErrTruncatedRecord, n+prefixSize, length))
		}
		return Record{}, s.recordErr(fmt.Errorf("read record body: %w", err))
	}
	_, _ = s.digester.Hash().Write(buf) //nolint:errcheck // hash writes never fail

	h, err := s.decoder.DecodeHeader(buf)
	if err != nil {
		if !errors.Is(err, record.ErrDecodeFailure) {
			err = fmt.Errorf("%w: %w", record.ErrDecodeFailure, err)
		}
		return Record{}, s.recordErr(err)
	}
	if s.requireCategory && !h.HasCategory {
		return Record{}, &record.RecordError{
			Offset:   s.offset,
			EntityID: h.ID,
			HasID:    true,
			Err:      record.ErrMissingCategory,
		}
	}

	rec := Record{
		Offset:      s.offset,
		Length:      length,
		EntityID:    h.ID,
		NumItems:    h.NumItems,
		CategoryID:  h.CategoryID,
		HasCategory: h.HasCategory,
	}
	s.offset += uint64(length)
	return rec, nil
}

func (s *Scanner) recordErr(err error) error {
	return &record.RecordError{Offset: s.offset, Err: err}
}

func (s *Scanner) finish() {
	s.done = true
	s.stats.Digest = s.digester.Digest()
	s.log().Debug("archive scan complete",
		"records", s.stats.Records,
		"bytes", s.stats.Bytes,
		"digest", s.stats.Digest.String())
	if s.stats.EmptyItemLists > 0 {
		s.log().Warn("records without images", "count", s.stats.EmptyItemLists)
	}
}
