// Package scan walks a product archive once, record by record.
//
// An archive is a concatenation of BSON documents. Each document starts with
// a 4-byte little-endian length that counts itself, so record boundaries can
// only be discovered by reading every preceding prefix. The Scanner is a
// pull-based, non-restartable producer: callers call Next until it returns
// io.EOF. Only the current record body is held in memory.
package scan
