// Package table defines the per-image item tables produced from an offset
// index and their CSV persistence.
//
// Labeled tables (train and validation) carry the product's category indices
// on every row. Test tables carry only the product id and image index.
package table

import (
	"iter"

	"github.com/meigma/bsonsplit/core/index"
)

// ItemRow is one image of a labeled product.
type ItemRow struct {
	EntityID    uint64
	FineIndex   int
	Level1Index int
	Level2Index int
	ItemIndex   int
}

// TestRow is one image of an unlabeled product.
type TestRow struct {
	EntityID  uint64
	ItemIndex int
}

// EntrySource iterates offset index entries.
//
// *index.Index and *index.View implement EntrySource.
type EntrySource interface {
	Entries() iter.Seq[index.Entry]
}

// Expand emits one TestRow per image of every entry, in the source's entry
// order. No splitting or sampling takes place.
func Expand(src EntrySource) []TestRow {
	var rows []TestRow
	for e := range src.Entries() {
		for i := range int(e.NumItems) {
			rows = append(rows, TestRow{EntityID: e.EntityID, ItemIndex: i})
		}
	}
	return rows
}
