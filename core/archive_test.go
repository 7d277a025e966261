package core

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bsonsplit/core/cache"
	"github.com/meigma/bsonsplit/core/export"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/scan"
	"github.com/meigma/bsonsplit/core/testutil"
)

func testArchive(t *testing.T) ([]byte, *index.Index) {
	t.Helper()
	data := testutil.BuildArchive(t, []testutil.Product{
		testutil.Labeled(5, 1000010653, 2),
		testutil.Labeled(3, 1000010667, 1),
		testutil.Labeled(9, 1000010653, 4),
	})
	idx, err := index.Build(context.Background(), scan.New(bytes.NewReader(data)))
	require.NoError(t, err)
	return data, idx
}

func TestArchive_RandomAccess(t *testing.T) {
	t.Parallel()

	data, idx := testArchive(t)
	a, err := New(testutil.NewMockByteSource(data), idx, WithVerifyDigest(true))
	require.NoError(t, err)
	assert.Equal(t, 3, a.Len())

	doc, err := a.Product(9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), doc.ID)
	assert.Equal(t, uint64(1000010653), doc.CategoryID)
	assert.Equal(t, testutil.Images(9, 4), doc.Items)

	img, err := a.Image(5, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:5:1"), img)

	raw, err := a.Raw(3)
	require.NoError(t, err)
	assert.Equal(t, testutil.EncodeProduct(t, testutil.Labeled(3, 1000010667, 1)), raw)
}

func TestArchive_Errors(t *testing.T) {
	t.Parallel()

	data, idx := testArchive(t)
	a, err := New(testutil.NewMockByteSource(data), idx)
	require.NoError(t, err)

	_, err = a.Product(4)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = a.Image(3, 1)
	require.ErrorIs(t, err, ErrItemOutOfRange)
}

func TestNew_Mismatch(t *testing.T) {
	t.Parallel()

	data, idx := testArchive(t)

	_, err := New(testutil.NewMockByteSource(data[:len(data)-1]), idx)
	require.ErrorIs(t, err, ErrArchiveMismatch)

	tampered := bytes.Clone(data)
	e, ok := idx.Lookup(5)
	require.True(t, ok)
	tampered[e.Offset+uint64(e.Length)-2] ^= 0xFF
	_, err = New(testutil.NewMockByteSource(tampered), idx, WithVerifyDigest(true))
	require.ErrorIs(t, err, ErrArchiveMismatch)

	// Without verification only the size is checked.
	_, err = New(testutil.NewMockByteSource(tampered), idx)
	require.NoError(t, err)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	data, idx := testArchive(t)
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "train.bson")
	require.NoError(t, os.WriteFile(archivePath, data, 0o600))

	for _, name := range []string{"train_offsets.csv", "train_offsets.fb"} {
		indexPath := filepath.Join(dir, name)
		require.NoError(t, idx.SaveFile(indexPath))

		a, err := Open(context.Background(), archivePath, indexPath)
		require.NoError(t, err, name)
		img, err := a.Image(9, 3)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg:9:3"), img)
		require.NoError(t, a.Close())
	}
}

func TestArchive_Exporter(t *testing.T) {
	t.Parallel()

	data, idx := testArchive(t)
	a, err := New(testutil.NewMockByteSource(data), idx)
	require.NoError(t, err)

	dir := t.TempDir()
	sink, err := export.NewFileSink(dir, export.WithManifest(false))
	require.NoError(t, err)
	stats, err := a.Exporter(export.WithWorkers(-1)).Export(context.Background(),
		[]export.Row{{EntityID: 9, ItemIndex: 2, Label: 0, HasLabel: true}}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Written)

	got, err := os.ReadFile(filepath.Join(dir, "9-2-0.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg:9:2"), got)
}

func TestOpen_RemoteCached(t *testing.T) {
	t.Parallel()

	data, idx := testArchive(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "train.bson", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "train_offsets.fb")
	require.NoError(t, idx.SaveFile(indexPath))
	c, err := cache.New(filepath.Join(dir, "cache"))
	require.NoError(t, err)

	a, err := Open(context.Background(), server.URL+"/train.bson", indexPath,
		WithVerifyDigest(true), WithCache(c))
	require.NoError(t, err)
	defer a.Close()

	for range 2 {
		img, err := a.Image(9, 3)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg:9:3"), img)
	}
	assert.Equal(t, int64(1), c.Misses())
	assert.Equal(t, int64(1), c.Hits())
}

func TestNew_CacheNeedsIdentity(t *testing.T) {
	t.Parallel()

	data, built := testArchive(t)
	idx, err := index.New(slices.Collect(built.Entries()), 0)
	require.NoError(t, err)
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	a, err := New(testutil.NewMockByteSource(data), idx, WithCache(c))
	require.NoError(t, err)
	_, err = a.Image(5, 0)
	require.NoError(t, err)
	assert.Zero(t, c.Misses())
	assert.Zero(t, c.SizeBytes())
}
