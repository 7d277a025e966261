package export

import (
	"fmt"

	"github.com/meigma/bsonsplit/core/table"
)

// Row names one image to export.
type Row struct {
	EntityID  uint64
	ItemIndex int

	// Label is the fine category index. It is meaningful only if HasLabel.
	Label    int
	HasLabel bool
}

// FromItems converts training or validation rows, labeling each with its
// fine category index.
func FromItems(rows []table.ItemRow) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{EntityID: r.EntityID, ItemIndex: r.ItemIndex, Label: r.FineIndex, HasLabel: true}
	}
	return out
}

// FromTest converts unlabeled test rows.
func FromTest(rows []table.TestRow) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{EntityID: r.EntityID, ItemIndex: r.ItemIndex}
	}
	return out
}

// Sample is one exported image.
type Sample struct {
	// Key is the zero-padded position of the row in the exported table.
	Key string

	// Seq is the position of the row in the exported table.
	Seq int

	Row

	// Image holds the raw image bytes. Sinks must not retain or modify it
	// after Put returns.
	Image []byte
}

// Key formats a row position as a sample key.
func Key(seq int) string {
	return fmt.Sprintf("%08d", seq)
}
