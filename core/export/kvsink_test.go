package export

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVSink_BatchCommits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		puts        int
		batchSize   int
		wantCommits int
	}{
		{"exact batches", 6, 3, 2},
		{"partial final batch", 7, 3, 3},
		{"single batch", 2, 10, 1},
		{"empty", 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sink, err := OpenKVSink(filepath.Join(t.TempDir(), "samples.db"), WithBatchSize(tt.batchSize))
			require.NoError(t, err)

			ctx := context.Background()
			for i := range tt.puts {
				require.NoError(t, sink.Put(ctx, Sample{
					Key:   Key(i),
					Seq:   i,
					Row:   Row{EntityID: uint64(100 + i), Label: i % 2, HasLabel: true},
					Image: []byte{byte(i)},
				}))
			}
			require.NoError(t, sink.Close())
			assert.Equal(t, tt.wantCommits, sink.Commits())
		})
	}
}

func TestKVSink_ExportRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "samples.db")
	sink, err := OpenKVSink(path, WithBatchSize(2))
	require.NoError(t, err)

	rows := []Row{
		{EntityID: 20, ItemIndex: 2, Label: 7, HasLabel: true},
		{EntityID: 10, ItemIndex: 1, Label: 4, HasLabel: true},
		{EntityID: 40, ItemIndex: 0},
	}
	stats, err := NewProcessor(f.source, f.idx, WithWorkers(3)).Export(context.Background(), rows, sink)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Written)

	value, label, hasLabel, err := sink.Get(context.Background(), Key(1))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:10:1"), value)
	assert.Equal(t, 4, label)
	assert.True(t, hasLabel)

	require.NoError(t, sink.Close())
	assert.Equal(t, 2, sink.Commits())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var (
		n        int
		value40  []byte
		label40  sql.NullInt64
		product  int64
		imgIndex int
	)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&n))
	assert.Equal(t, 3, n)
	require.NoError(t, db.QueryRow(`SELECT product_id, img_idx, label, value FROM samples WHERE key = ?`, Key(2)).
		Scan(&product, &imgIndex, &label40, &value40))
	assert.Equal(t, int64(40), product)
	assert.Equal(t, 0, imgIndex)
	assert.False(t, label40.Valid)
	assert.Equal(t, []byte("jpeg:40:0"), value40)
}

func TestKVSink_PutAfterClose(t *testing.T) {
	t.Parallel()

	sink, err := OpenKVSink(filepath.Join(t.TempDir(), "samples.db"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err = sink.Put(context.Background(), Sample{Key: Key(0), Image: []byte{1}})
	require.ErrorIs(t, err, ErrSinkClosed)
}
