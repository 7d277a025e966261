// Package category assigns dense integer indices to catalog categories.
//
// The fine index follows catalog row order. The two coarser levels are
// numbered by first occurrence of each distinct label while walking the
// catalog top to bottom. Trained models depend on this numbering, so an
// Index is a pure function of the catalog rows and carries no randomness.
package category

import (
	"errors"
	"fmt"
)

// ErrDuplicateCategory is returned when a catalog lists a category twice.
var ErrDuplicateCategory = errors.New("category: duplicate category id")

// Row is one catalog line.
type Row struct {
	CategoryID uint64
	Level1     string
	Level2     string

	// Fine is the fine-grained category name. It may be empty.
	Fine string
}

// Indices holds the dense indices of a category at each level.
type Indices struct {
	Fine   int
	Level1 int
	Level2 int
}

// Index maps category ids to dense indices. It is immutable.
type Index struct {
	rows   []Row
	byID   map[uint64]Indices
	level1 []string
	level2 []string
}

// New derives an Index from catalog rows in catalog order.
func New(rows []Row) (*Index, error) {
	idx := &Index{
		rows: append([]Row(nil), rows...),
		byID: make(map[uint64]Indices, len(rows)),
	}
	level1 := make(map[string]int)
	level2 := make(map[string]int)
	for i, row := range rows {
		if _, dup := idx.byID[row.CategoryID]; dup {
			return nil, fmt.Errorf("%w: %d (row %d)", ErrDuplicateCategory, row.CategoryID, i+1)
		}
		l1, ok := level1[row.Level1]
		if !ok {
			l1 = len(idx.level1)
			level1[row.Level1] = l1
			idx.level1 = append(idx.level1, row.Level1)
		}
		l2, ok := level2[row.Level2]
		if !ok {
			l2 = len(idx.level2)
			level2[row.Level2] = l2
			idx.level2 = append(idx.level2, row.Level2)
		}
		idx.byID[row.CategoryID] = Indices{Fine: i, Level1: l1, Level2: l2}
	}
	return idx, nil
}

// Lookup returns the indices of a category.
func (idx *Index) Lookup(categoryID uint64) (Indices, bool) {
	ind, ok := idx.byID[categoryID]
	return ind, ok
}

// CategoryID returns the category id with the given fine index.
func (idx *Index) CategoryID(fine int) (uint64, bool) {
	if fine < 0 || fine >= len(idx.rows) {
		return 0, false
	}
	return idx.rows[fine].CategoryID, true
}

// Len returns the number of fine-grained categories.
func (idx *Index) Len() int {
	return len(idx.rows)
}

// Level1Len returns the number of distinct level-1 labels.
func (idx *Index) Level1Len() int {
	return len(idx.level1)
}

// Level2Len returns the number of distinct level-2 labels.
func (idx *Index) Level2Len() int {
	return len(idx.level2)
}

// Level1Name returns the label with the given level-1 index.
func (idx *Index) Level1Name(i int) string {
	return idx.level1[i]
}

// Level2Name returns the label with the given level-2 index.
func (idx *Index) Level2Name(i int) string {
	return idx.level2[i]
}

// Rows returns a copy of the catalog rows in fine index order.
func (idx *Index) Rows() []Row {
	return append([]Row(nil), idx.rows...)
}
