package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/meigma/bsonsplit/core/internal/tabular"
)

// Column names.
const (
	ColumnProductID   = "product_id"
	ColumnFineIndex   = "category_idx"
	ColumnLevel1Index = "category_idx_level1"
	ColumnLevel2Index = "category_idx_level2"
	ColumnItemIndex   = "img_idx"
)

var (
	itemHeader = []string{ColumnProductID, ColumnFineIndex, ColumnLevel1Index, ColumnLevel2Index, ColumnItemIndex}
	testHeader = []string{ColumnProductID, ColumnItemIndex}
)

// WriteItems writes labeled rows in the given order.
func WriteItems(w io.Writer, rows []ItemRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(itemHeader); err != nil {
		return err
	}
	rec := make([]string, len(itemHeader))
	for _, r := range rows {
		rec[0] = tabular.FormatUint(r.EntityID)
		rec[1] = strconv.Itoa(r.FineIndex)
		rec[2] = strconv.Itoa(r.Level1Index)
		rec[3] = strconv.Itoa(r.Level2Index)
		rec[4] = strconv.Itoa(r.ItemIndex)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadItems reads rows written by WriteItems, preserving order.
func ReadItems(r io.Reader) ([]ItemRow, error) {
	var rows []ItemRow
	err := readTable(r, itemHeader, func(rec []string, cols map[string]int) error {
		var row ItemRow
		var err error
		if row.EntityID, err = tabular.Uint(rec[cols[ColumnProductID]], 64); err != nil {
			return fmt.Errorf("%s: %w", ColumnProductID, err)
		}
		for _, f := range []struct {
			name string
			dst  *int
		}{
			{ColumnFineIndex, &row.FineIndex},
			{ColumnLevel1Index, &row.Level1Index},
			{ColumnLevel2Index, &row.Level2Index},
			{ColumnItemIndex, &row.ItemIndex},
		} {
			if *f.dst, err = nonNegative(rec[cols[f.name]]); err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// WriteTest writes unlabeled rows in the given order.
func WriteTest(w io.Writer, rows []TestRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(testHeader); err != nil {
		return err
	}
	rec := make([]string, len(testHeader))
	for _, r := range rows {
		rec[0] = tabular.FormatUint(r.EntityID)
		rec[1] = strconv.Itoa(r.ItemIndex)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTest reads rows written by WriteTest, preserving order.
func ReadTest(r io.Reader) ([]TestRow, error) {
	var rows []TestRow
	err := readTable(r, testHeader, func(rec []string, cols map[string]int) error {
		var row TestRow
		var err error
		if row.EntityID, err = tabular.Uint(rec[cols[ColumnProductID]], 64); err != nil {
			return fmt.Errorf("%s: %w", ColumnProductID, err)
		}
		if row.ItemIndex, err = nonNegative(rec[cols[ColumnItemIndex]]); err != nil {
			return fmt.Errorf("%s: %w", ColumnItemIndex, err)
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

func readTable(r io.Reader, required []string, fn func([]string, map[string]int) error) error {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("table: empty table")
		}
		return fmt.Errorf("table: read header: %w", err)
	}
	cols, err := tabular.Columns(header, required...)
	if err != nil {
		return fmt.Errorf("table: %w", err)
	}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("table: %w", err)
		}
		if err := fn(rec, cols); err != nil {
			return fmt.Errorf("table: line %d: %w", line, err)
		}
	}
}

func nonNegative(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %d", v)
	}
	return v, nil
}

// SaveItems writes labeled rows to path; a ".zst" suffix compresses the file.
func SaveItems(path string, rows []ItemRow) error {
	return tabular.WriteFile(path, func(w io.Writer) error {
		return WriteItems(w, rows)
	})
}

// LoadItems reads labeled rows from path.
func LoadItems(path string) ([]ItemRow, error) {
	var rows []ItemRow
	err := tabular.ReadFile(path, func(r io.Reader) error {
		var err error
		rows, err = ReadItems(r)
		return err
	})
	return rows, err
}

// SaveTest writes unlabeled rows to path; a ".zst" suffix compresses the file.
func SaveTest(path string, rows []TestRow) error {
	return tabular.WriteFile(path, func(w io.Writer) error {
		return WriteTest(w, rows)
	})
}

// LoadTest reads unlabeled rows from path.
func LoadTest(path string) ([]TestRow, error) {
	var rows []TestRow
	err := tabular.ReadFile(path, func(r io.Reader) error {
		var err error
		rows, err = ReadTest(r)
		return err
	})
	return rows, err
}
