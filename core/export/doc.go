// Package export reads the images named by item table rows out of an
// archive and writes them to a Sink.
//
// Rows are resolved through the offset index, so only the records an export
// touches are read. Records are read in archive order and each decoded
// record is shared by every row that references it.
//
// Two sinks are provided: FileSink writes one image file per row plus a
// labels manifest, and KVSink stores samples in a batched SQLite table keyed
// by row number.
package export
