package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1234-2-17.jpg", FileName(Row{EntityID: 1234, ItemIndex: 2, Label: 17, HasLabel: true}))
	assert.Equal(t, "1234-0.jpg", FileName(Row{EntityID: 1234}))
}

func TestFileSink_ExportsImagesAndManifest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := filepath.Join(t.TempDir(), "val")
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	rows := []Row{
		{EntityID: 20, ItemIndex: 1, Label: 5, HasLabel: true},
		{EntityID: 10, ItemIndex: 0, Label: 3, HasLabel: true},
	}
	stats, err := NewProcessor(f.source, f.idx).Export(context.Background(), rows, sink)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	assert.Equal(t, 2, stats.Written)

	got, err := os.ReadFile(filepath.Join(dir, "20-1-5.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:20:1"), got)

	got, err = os.ReadFile(filepath.Join(dir, "10-0-3.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:10:0"), got)

	manifest, err := os.ReadFile(filepath.Join(dir, LabelsFile))
	require.NoError(t, err)
	assert.Equal(t, "20-1-5.jpg 5\n10-0-3.jpg 3\n", string(manifest))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestFileSink_SkipsExisting(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := t.TempDir()
	existing := filepath.Join(dir, "10-0-3.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("keep"), 0o600))

	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	rows := []Row{
		{EntityID: 10, ItemIndex: 0, Label: 3, HasLabel: true},
		{EntityID: 10, ItemIndex: 1, Label: 3, HasLabel: true},
	}
	stats, err := NewProcessor(f.source, f.idx).Export(context.Background(), rows, sink)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	assert.Equal(t, Stats{Written: 1, Skipped: 1, Bytes: uint64(len("jpeg:10:1"))}, stats)

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got)

	manifest, err := os.ReadFile(filepath.Join(dir, LabelsFile))
	require.NoError(t, err)
	assert.Equal(t, "10-0-3.jpg 3\n10-1-3.jpg 3\n", string(manifest))
}

func TestFileSink_Overwrite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dir := t.TempDir()
	existing := filepath.Join(dir, "40-1.jpg")
	require.NoError(t, os.WriteFile(existing, []byte("stale"), 0o600))

	sink, err := NewFileSink(dir, WithOverwrite(true))
	require.NoError(t, err)
	_, err = NewProcessor(f.source, f.idx).Export(context.Background(), []Row{{EntityID: 40, ItemIndex: 1}}, sink)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:40:1"), got)

	_, err = os.Stat(filepath.Join(dir, LabelsFile))
	assert.True(t, os.IsNotExist(err), "unlabeled exports have no manifest")
}
