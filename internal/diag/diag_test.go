package diag

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bsonsplit/core/export"
	"github.com/meigma/bsonsplit/core/scan"
	"github.com/meigma/bsonsplit/core/split"
	"github.com/meigma/bsonsplit/core/table"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "records", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.EqualValues(t, 3, rec["records"])

	buf.Reset()
	logger, err = NewLogger(&buf, "debug", "text")
	require.NoError(t, err)
	logger.Debug("scan", "offset", 12)
	assert.Contains(t, buf.String(), "msg=scan offset=12")
}

func TestNewLogger_Invalid(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(&bytes.Buffer{}, "loud", "text")
	require.Error(t, err)
	_, err = NewLogger(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.ObserveScan("train", scan.Stats{Records: 3, Bytes: 512, EmptyItemLists: 1})
	m.ObserveSplit(&split.Result{
		Train:      make([]table.ItemRow, 8),
		Val:        make([]table.ItemRow, 2),
		Categories: make([]split.CategoryStats, 2),
	})
	m.ObserveExport("kv", export.Stats{Written: 4, Skipped: 1, Bytes: 4096})

	path := filepath.Join(t.TempDir(), "bsonsplit.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	for _, line := range []string{
		`bsonsplit_records_scanned_total{archive="train"} 3`,
		`bsonsplit_scanned_bytes_total{archive="train"} 512`,
		`bsonsplit_empty_item_lists_total{archive="train"} 1`,
		`bsonsplit_split_rows_total{table="train"} 8`,
		`bsonsplit_split_rows_total{table="val"} 2`,
		`bsonsplit_split_categories_total 2`,
		`bsonsplit_exported_samples_total{sink="kv"} 4`,
		`bsonsplit_skipped_samples_total{sink="kv"} 1`,
		`bsonsplit_exported_bytes_total{sink="kv"} 4096`,
	} {
		assert.Contains(t, text, line)
	}
}
