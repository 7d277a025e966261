package category

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/meigma/bsonsplit/core/internal/tabular"
)

// Catalog and persisted column names.
const (
	ColumnCategoryID  = "category_id"
	ColumnLevel1      = "category_level1"
	ColumnLevel2      = "category_level2"
	ColumnLevel3      = "category_level3"
	ColumnFineIndex   = "category_idx"
	ColumnLevel1Index = "category_idx_level1"
	ColumnLevel2Index = "category_idx_level2"
)

// ReadCatalog parses a catalog CSV.
//
// The header must contain category_id, category_level1 and category_level2.
// An optional category_level3 column supplies the fine-grained name. Other
// columns, including indices written by WriteCSV, are ignored: indices are
// always recomputed from row order.
func ReadCatalog(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("category: empty catalog")
		}
		return nil, fmt.Errorf("category: read header: %w", err)
	}
	// Catalogs exported from spreadsheets often start with a byte order mark.
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}
	cols, err := tabular.Columns(header, ColumnCategoryID, ColumnLevel1, ColumnLevel2)
	if err != nil {
		return nil, fmt.Errorf("category: %w", err)
	}
	fineCol, hasFine := cols[ColumnLevel3]

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("category: %w", err)
		}
		id, err := tabular.Uint(rec[cols[ColumnCategoryID]], 64)
		if err != nil {
			return nil, fmt.Errorf("category: line %d: %s: %w", line, ColumnCategoryID, err)
		}
		row := Row{
			CategoryID: id,
			Level1:     rec[cols[ColumnLevel1]],
			Level2:     rec[cols[ColumnLevel2]],
		}
		if hasFine {
			row.Fine = rec[fineCol]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Load reads a catalog and derives its Index.
func Load(r io.Reader) (*Index, error) {
	rows, err := ReadCatalog(r)
	if err != nil {
		return nil, err
	}
	return New(rows)
}

// LoadFile reads a catalog file; a ".zst" suffix is decompressed.
func LoadFile(path string) (*Index, error) {
	var idx *Index
	err := tabular.ReadFile(path, func(r io.Reader) error {
		var err error
		idx, err = Load(r)
		return err
	})
	return idx, err
}

// WriteCSV writes the catalog with its derived indices.
func (idx *Index) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		ColumnCategoryID, ColumnLevel1, ColumnLevel2, ColumnLevel3,
		ColumnFineIndex, ColumnLevel1Index, ColumnLevel2Index,
	}); err != nil {
		return err
	}
	for _, row := range idx.rows {
		ind := idx.byID[row.CategoryID]
		if err := cw.Write([]string{
			tabular.FormatUint(row.CategoryID), row.Level1, row.Level2, row.Fine,
			strconv.Itoa(ind.Fine), strconv.Itoa(ind.Level1), strconv.Itoa(ind.Level2),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveFile writes the catalog with its indices to path.
func (idx *Index) SaveFile(path string) error {
	return tabular.WriteFile(path, idx.WriteCSV)
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
