// Package index builds and persists the offset index of a product archive.
//
// The index maps each product id to the byte range of its record, its image
// count and, for labeled archives, its category. It is built by draining a
// scan.Scanner exactly once and is immutable afterwards. Entries are kept
// sorted by product id, which gives reproducible serialization and O(log n)
// lookups.
//
// Two persisted forms are supported: a CSV table with the columns
// product_id, num_imgs, offset, length and (for labeled archives)
// category_id, and a FlatBuffers blob that can be searched in place without
// materializing entries.
package index
