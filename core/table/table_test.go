package table

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bsonsplit/core/index"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	idx, err := index.New([]index.Entry{
		{EntityID: 9, NumItems: 1, Offset: 40, Length: 10},
		{EntityID: 2, NumItems: 3, Offset: 0, Length: 20},
		{EntityID: 5, NumItems: 0, Offset: 20, Length: 20},
	}, 0)
	require.NoError(t, err)

	rows := Expand(idx)
	assert.Equal(t, []TestRow{
		{EntityID: 2, ItemIndex: 0},
		{EntityID: 2, ItemIndex: 1},
		{EntityID: 2, ItemIndex: 2},
		{EntityID: 9, ItemIndex: 0},
	}, rows)
	assert.Len(t, rows, int(idx.TotalItems()))
}

func TestItemsRoundTrip(t *testing.T) {
	t.Parallel()

	rows := []ItemRow{
		{EntityID: 7, FineIndex: 3, Level1Index: 1, Level2Index: 2, ItemIndex: 1},
		{EntityID: 1, FineIndex: 0, Level1Index: 0, Level2Index: 0, ItemIndex: 0},
		{EntityID: 7, FineIndex: 3, Level1Index: 1, Level2Index: 2, ItemIndex: 0},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteItems(&buf, rows))
	assert.True(t, strings.HasPrefix(buf.String(), "product_id,category_idx,category_idx_level1,category_idx_level2,img_idx\n7,3,1,2,1\n"))

	got, err := ReadItems(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestTestRoundTrip(t *testing.T) {
	t.Parallel()

	rows := []TestRow{{EntityID: 10, ItemIndex: 0}, {EntityID: 10, ItemIndex: 1}, {EntityID: 3, ItemIndex: 0}}
	path := filepath.Join(t.TempDir(), "test_images.csv.zst")
	require.NoError(t, SaveTest(path, rows))

	got, err := LoadTest(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestSaveLoadItems(t *testing.T) {
	t.Parallel()

	rows := []ItemRow{{EntityID: 4, FineIndex: 1, Level1Index: 2, Level2Index: 3, ItemIndex: 2}}
	path := filepath.Join(t.TempDir(), "val_images.csv")
	require.NoError(t, SaveItems(path, rows))

	got, err := LoadItems(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadItems_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "", wantErr: "empty table"},
		{name: "missing column", input: "product_id,img_idx\n1,0\n", wantErr: `"category_idx"`},
		{name: "negative", input: "product_id,category_idx,category_idx_level1,category_idx_level2,img_idx\n1,0,0,0,-1\n", wantErr: "line 2: img_idx"},
		{name: "bad id", input: "product_id,category_idx,category_idx_level1,category_idx_level2,img_idx\nx,0,0,0,0\n", wantErr: "line 2: product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ReadItems(strings.NewReader(tt.input))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
