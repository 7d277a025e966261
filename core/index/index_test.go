package index

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bsonsplit/core/internal/record"
	"github.com/meigma/bsonsplit/core/scan"
	"github.com/meigma/bsonsplit/core/testutil"
)

func buildIndex(t *testing.T, products []testutil.Product) (*Index, []byte) {
	t.Helper()
	archive := testutil.BuildArchive(t, products)
	idx, err := Build(context.Background(), scan.New(bytes.NewReader(archive)))
	require.NoError(t, err)
	return idx, archive
}

func TestBuild_SortedByProductID(t *testing.T) {
	t.Parallel()

	idx, archive := buildIndex(t, []testutil.Product{
		testutil.Labeled(30, 2, 1),
		testutil.Labeled(10, 1, 3),
		testutil.Labeled(20, 1, 2),
	})

	require.Equal(t, 3, idx.Len())
	var ids []uint64
	for e := range idx.Entries() {
		ids = append(ids, e.EntityID)
	}
	assert.Equal(t, []uint64{10, 20, 30}, ids)
	assert.True(t, idx.Labeled())
	assert.Equal(t, uint64(len(archive)), idx.ArchiveSize())
	assert.Equal(t, uint64(6), idx.TotalItems())

	d, ok := idx.Digest()
	require.True(t, ok)
	assert.Equal(t, digest.FromBytes(archive), d)

	e, ok := idx.Lookup(20)
	require.True(t, ok)
	assert.Equal(t, uint32(2), e.NumItems)
	assert.Equal(t, uint64(1), e.CategoryID)

	_, ok = idx.Lookup(25)
	assert.False(t, ok)
}

func TestBuild_RandomAccessRoundTrip(t *testing.T) {
	t.Parallel()

	products := []testutil.Product{
		testutil.Labeled(4, 100, 1),
		testutil.Labeled(2, 200, 4),
		testutil.Labeled(9, 100, 2),
		testutil.Labeled(1, 300, 0),
	}
	idx, archive := buildIndex(t, products)
	src := testutil.NewMockByteSource(archive)
	dec := record.NewBSONDecoder()

	for _, p := range products {
		e, ok := idx.Lookup(uint64(p.ID))
		require.True(t, ok)

		data, err := ReadRecord(src, e)
		require.NoError(t, err)
		assert.Equal(t, testutil.EncodeProduct(t, p), data)

		h, err := dec.DecodeHeader(data)
		require.NoError(t, err)
		assert.Equal(t, e.EntityID, h.ID)
		assert.Equal(t, e.CategoryID, h.CategoryID)
		assert.Equal(t, e.NumItems, h.NumItems)
	}
}

func TestBuild_DuplicateKey(t *testing.T) {
	t.Parallel()

	first := testutil.Labeled(5, 1, 1)
	archive := testutil.BuildArchive(t, []testutil.Product{first, testutil.Labeled(6, 1, 1), testutil.Labeled(5, 2, 2)})

	idx, err := Build(context.Background(), scan.New(bytes.NewReader(archive)))
	require.ErrorIs(t, err, record.ErrDuplicateKey)
	assert.Nil(t, idx)

	var recErr *record.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, uint64(5), recErr.EntityID)
	assert.Contains(t, err.Error(), "first seen at offset 0")
}

func TestBuild_TruncatedArchiveFails(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildArchive(t, []testutil.Product{testutil.Unlabeled(1, 2), testutil.Unlabeled(2, 2)})
	idx, err := Build(context.Background(), scan.New(bytes.NewReader(archive[:len(archive)-1])))
	require.ErrorIs(t, err, record.ErrTruncatedRecord)
	assert.Nil(t, idx)
}

func TestBuild_CancelledReturnsPartialIndex(t *testing.T) {
	t.Parallel()

	archive := testutil.BuildArchive(t, []testutil.Product{
		testutil.Unlabeled(3, 1),
		testutil.Unlabeled(1, 1),
		testutil.Unlabeled(2, 1),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := scan.New(bytes.NewReader(archive), scan.WithProgress(func(ev record.ProgressEvent) {
		if ev.RecordsDone == 2 {
			cancel()
		}
	}))

	idx, err := Build(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, idx)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, uint64(1), idx.At(0).EntityID)
	assert.Equal(t, uint64(3), idx.At(1).EntityID)
}

func TestNew_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := New([]Entry{{EntityID: 1, Length: 5}, {EntityID: 1, Offset: 5, Length: 5}}, 0)
	require.ErrorIs(t, err, record.ErrDuplicateKey)
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		products []testutil.Product
		header   string
	}{
		{
			name:     "labeled",
			products: []testutil.Product{testutil.Labeled(2, 1000010653, 3), testutil.Labeled(1, 1000010654, 1)},
			header:   "product_id,num_imgs,offset,length,category_id",
		},
		{
			name:     "unlabeled",
			products: []testutil.Product{testutil.Unlabeled(7, 2), testutil.Unlabeled(8, 0)},
			header:   "product_id,num_imgs,offset,length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			idx, _ := buildIndex(t, tt.products)
			var buf bytes.Buffer
			require.NoError(t, idx.WriteCSV(&buf))
			assert.Equal(t, tt.header, strings.SplitN(buf.String(), "\n", 2)[0])

			loaded, err := ReadCSV(&buf)
			require.NoError(t, err)
			assert.Equal(t, idx.entries, loaded.entries)
			assert.Equal(t, idx.Labeled(), loaded.Labeled())
			assert.Equal(t, idx.ArchiveSize(), loaded.ArchiveSize())
		})
	}
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
		want    []Entry
	}{
		{
			name:  "columns in any order with extras",
			input: "offset,product_id,length,extra,num_imgs,category_id\n10,2,6,x,1,\n0,1,10,y,2,77\n",
			want: []Entry{
				{EntityID: 1, NumItems: 2, Offset: 0, Length: 10, CategoryID: 77, HasCategory: true},
				{EntityID: 2, NumItems: 1, Offset: 10, Length: 6},
			},
		},
		{name: "empty", input: "", wantErr: "empty table"},
		{name: "missing column", input: "product_id,num_imgs,offset\n", wantErr: `"length"`},
		{name: "bad number", input: "product_id,num_imgs,offset,length\n1,x,0,5\n", wantErr: "line 2: num_imgs"},
		{name: "duplicate", input: "product_id,num_imgs,offset,length\n1,1,0,5\n1,1,5,5\n", wantErr: "duplicate product id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			idx, err := ReadCSV(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, idx.entries)
			assert.Equal(t, uint64(16), idx.ArchiveSize())
		})
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()

	idx, _ := buildIndex(t, []testutil.Product{
		testutil.Labeled(5, 1, 1),
		testutil.Labeled(3, 2, 2),
		testutil.Unlabeled(4, 3),
	})
	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	view, err := LoadView(data)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Len())
	assert.True(t, view.Labeled())
	assert.Equal(t, idx.ArchiveSize(), view.ArchiveSize())
	wantDigest, _ := idx.Digest()
	gotDigest, ok := view.Digest()
	require.True(t, ok)
	assert.Equal(t, wantDigest, gotDigest)

	for e := range idx.Entries() {
		got, ok := view.Lookup(e.EntityID)
		require.True(t, ok)
		assert.Equal(t, e, got)
	}
	_, ok = view.Lookup(1)
	assert.False(t, ok)
	_, ok = view.Lookup(99)
	assert.False(t, ok)

	loaded, err := UnmarshalBinary(data)
	require.NoError(t, err)
	assert.Equal(t, idx.entries, loaded.entries)
}

func TestLoadView_Invalid(t *testing.T) {
	t.Parallel()

	_, err := LoadView(nil)
	require.Error(t, err)

	_, err = LoadView([]byte{0xff, 0xff, 0xff, 0x7f, 1, 2})
	require.Error(t, err)
}

func TestSaveLoadFile(t *testing.T) {
	t.Parallel()

	idx, _ := buildIndex(t, []testutil.Product{testutil.Labeled(2, 9, 2), testutil.Labeled(1, 8, 1)})

	for _, name := range []string{"offsets.csv", "offsets.csv.zst", "offsets.fb", "offsets.fb.zst"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, idx.SaveFile(path))

			loaded, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, idx.entries, loaded.entries)
			assert.True(t, loaded.Labeled())
		})
	}
}

func TestReadRecord_OutOfBounds(t *testing.T) {
	t.Parallel()

	src := testutil.NewMockByteSource(make([]byte, 10))
	_, err := ReadRecord(src, Entry{EntityID: 1, Offset: 8, Length: 5})
	require.ErrorIs(t, err, record.ErrSizeOverflow)
}
