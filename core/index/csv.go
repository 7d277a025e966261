package index

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/meigma/bsonsplit/core/internal/tabular"
)

// CSV column names.
const (
	ColumnProductID  = "product_id"
	ColumnNumItems   = "num_imgs"
	ColumnOffset     = "offset"
	ColumnLength     = "length"
	ColumnCategoryID = "category_id"
)

// WriteCSV writes the index as a CSV table sorted by product id.
//
// The category_id column is present only for labeled indexes; entries
// without a category leave it empty.
func (idx *Index) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{ColumnProductID, ColumnNumItems, ColumnOffset, ColumnLength}
	if idx.labeled {
		header = append(header, ColumnCategoryID)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, e := range idx.entries {
		row[0] = tabular.FormatUint(e.EntityID)
		row[1] = tabular.FormatUint(uint64(e.NumItems))
		row[2] = tabular.FormatUint(e.Offset)
		row[3] = tabular.FormatUint(uint64(e.Length))
		if idx.labeled {
			row[4] = ""
			if e.HasCategory {
				row[4] = tabular.FormatUint(e.CategoryID)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads an index written by WriteCSV.
//
// Extra columns are ignored, so tables with a leading row-number column load
// as well. The archive size is derived from the furthest record end.
func ReadCSV(r io.Reader) (*Index, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("index: empty table")
		}
		return nil, fmt.Errorf("index: read header: %w", err)
	}
	cols, err := tabular.Columns(header, ColumnProductID, ColumnNumItems, ColumnOffset, ColumnLength)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	catCol, labeled := cols[ColumnCategoryID]

	var entries []Entry
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		e, err := parseRow(row, cols, catCol, labeled)
		if err != nil {
			return nil, fmt.Errorf("index: line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return New(entries, 0)
}

func parseRow(row []string, cols map[string]int, catCol int, labeled bool) (Entry, error) {
	var e Entry
	var err error
	if e.EntityID, err = tabular.Uint(row[cols[ColumnProductID]], 64); err != nil {
		return Entry{}, fmt.Errorf("%s: %w", ColumnProductID, err)
	}
	n, err := tabular.Uint(row[cols[ColumnNumItems]], 32)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", ColumnNumItems, err)
	}
	e.NumItems = uint32(n) //nolint:gosec // parsed with 32-bit limit
	if e.Offset, err = tabular.Uint(row[cols[ColumnOffset]], 64); err != nil {
		return Entry{}, fmt.Errorf("%s: %w", ColumnOffset, err)
	}
	length, err := tabular.Uint(row[cols[ColumnLength]], 32)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", ColumnLength, err)
	}
	if length > math.MaxInt32 {
		return Entry{}, fmt.Errorf("%s: %d exceeds record limit", ColumnLength, length)
	}
	e.Length = uint32(length)
	if labeled && row[catCol] != "" {
		if e.CategoryID, err = tabular.Uint(row[catCol], 64); err != nil {
			return Entry{}, fmt.Errorf("%s: %w", ColumnCategoryID, err)
		}
		e.HasCategory = true
	}
	return e, nil
}
