package export

import "context"

// Sink receives exported samples.
//
// Put may be called concurrently from several workers.
type Sink interface {
	// ShouldProcess returns false if the row at seq should be skipped,
	// for example because its output already exists.
	ShouldProcess(seq int, row Row) bool

	// Put stores one sample.
	Put(ctx context.Context, s Sample) error
}

// Stats contains statistics from an export.
type Stats struct {
	// Written is the number of samples handed to the sink.
	Written int

	// Skipped is the number of rows for which ShouldProcess returned false.
	Skipped int

	// Bytes is the total image size written.
	Bytes uint64
}
