//go:generate flatc --go --go-namespace fb -o internal schema/index.fbs

// Package core provides random access to a product archive through its
// offset index.
//
// An archive is a sequence of length-prefixed BSON product records. The
// offset index, built once by scanning the archive, maps each product id to
// the byte range of its record, so any product or image can be read with a
// single positioned read.
//
// Lower-level building blocks live in subpackages: scan walks an archive,
// index builds and persists offset indices, category derives category
// indices from a catalog, split produces stratified item tables, table
// persists them, and export writes their images to sinks. http reads
// archives served over HTTP and cache keeps their records on disk.
package core
