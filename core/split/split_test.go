package split

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/bsonsplit/core/category"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/internal/record"
	"github.com/meigma/bsonsplit/core/table"
)

const (
	catA uint64 = 1000010653
	catB uint64 = 1000010667
	catC uint64 = 1000004079
)

func testCatalog(t *testing.T) *category.Index {
	t.Helper()
	cats, err := category.New([]category.Row{
		{CategoryID: catA, Level1: "ABONNEMENT / SERVICES", Level2: "CARTE PREPAYEE", Fine: "CARTE PREPAYEE MULTIMEDIA"},
		{CategoryID: catB, Level1: "ABONNEMENT / SERVICES", Level2: "CARTE PREPAYEE", Fine: "CARTE TELEPHONIQUE"},
		{CategoryID: catC, Level1: "AMENAGEMENT URBAIN", Level2: "SIGNALETIQUE", Fine: "PANNEAU"},
	})
	require.NoError(t, err)
	return cats
}

// population builds an index holding n products per category. Product ids
// are allocated sequentially; every product gets imgs images.
func population(t *testing.T, counts map[uint64]int, imgs uint32) *index.Index {
	t.Helper()
	var entries []index.Entry
	var id, off uint64
	for _, cat := range []uint64{catA, catB, catC} {
		for range counts[cat] {
			id++
			entries = append(entries, index.Entry{
				EntityID:    id,
				NumItems:    imgs,
				Offset:      off,
				Length:      100,
				CategoryID:  cat,
				HasCategory: true,
			})
			off += 100
		}
	}
	idx, err := index.New(entries, 0)
	require.NoError(t, err)
	return idx
}

func mustSplit(t *testing.T, src EntrySource, cats *category.Index, opts ...Option) *Result {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	res, err := s.Split(context.Background(), src, cats)
	require.NoError(t, err)
	return res
}

func productsOf(rows []table.ItemRow) map[uint64][]int {
	out := make(map[uint64][]int)
	for _, r := range rows {
		out[r.EntityID] = append(out[r.EntityID], r.ItemIndex)
	}
	return out
}

func TestSplit_PerCategoryFloor(t *testing.T) {
	t.Parallel()

	idx := population(t, map[uint64]int{catA: 10, catB: 1, catC: 4}, 1)
	res := mustSplit(t, idx, testCatalog(t), WithSeed(7))

	byCat := make(map[uint64]CategoryStats)
	for _, st := range res.Categories {
		byCat[st.CategoryID] = st
	}
	assert.Equal(t, 2, byCat[catA].Val)
	assert.Equal(t, 0, byCat[catB].Val)
	assert.Equal(t, 0, byCat[catC].Val)
	assert.Len(t, res.Val, 2)
	assert.Len(t, res.Train, 13)

	ids := make([]uint64, 0, len(res.Categories))
	for _, st := range res.Categories {
		ids = append(ids, st.CategoryID)
	}
	assert.True(t, slices.IsSorted(ids), "categories ascend")
}

func TestSplit_PartitionsProducts(t *testing.T) {
	t.Parallel()

	idx := population(t, map[uint64]int{catA: 37, catB: 12, catC: 25}, 3)
	res := mustSplit(t, idx, testCatalog(t), WithSeed(42))

	train := productsOf(res.Train)
	val := productsOf(res.Val)
	for id := range val {
		_, inTrain := train[id]
		assert.False(t, inTrain, "product %d in both tables", id)
	}
	assert.Len(t, train, idx.Len()-len(val))
	assert.Len(t, res.Train, 3*len(train))
	assert.Len(t, res.Val, 3*len(val))

	for _, items := range val {
		assert.Equal(t, []int{0, 1, 2}, items)
	}
	for _, items := range train {
		slices.Sort(items)
		assert.Equal(t, []int{0, 1, 2}, items)
	}
}

func TestSplit_RowsCarryCategoryIndices(t *testing.T) {
	t.Parallel()

	cats := testCatalog(t)
	idx := population(t, map[uint64]int{catA: 20, catC: 20}, 1)
	res := mustSplit(t, idx, cats, WithSeed(1))

	catOf := make(map[uint64]uint64)
	for e := range idx.Entries() {
		catOf[e.EntityID] = e.CategoryID
	}
	for _, row := range slices.Concat(res.Train, res.Val) {
		want, ok := cats.Lookup(catOf[row.EntityID])
		require.True(t, ok)
		assert.Equal(t, want.Fine, row.FineIndex)
		assert.Equal(t, want.Level1, row.Level1Index)
		assert.Equal(t, want.Level2, row.Level2Index)
	}
}

func TestSplit_ValOrderedByCategoryThenProduct(t *testing.T) {
	t.Parallel()

	cats := testCatalog(t)
	idx := population(t, map[uint64]int{catA: 30, catB: 30, catC: 30}, 2)
	res := mustSplit(t, idx, cats, WithSeed(3))
	require.NotEmpty(t, res.Val)

	catOf := make(map[uint64]uint64)
	for e := range idx.Entries() {
		catOf[e.EntityID] = e.CategoryID
	}
	sorted := slices.IsSortedFunc(res.Val, func(a, b table.ItemRow) int {
		if c := compareUint(catOf[a.EntityID], catOf[b.EntityID]); c != 0 {
			return c
		}
		if c := compareUint(a.EntityID, b.EntityID); c != 0 {
			return c
		}
		return a.ItemIndex - b.ItemIndex
	})
	assert.True(t, sorted)
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func TestSplit_SeedDeterminism(t *testing.T) {
	t.Parallel()

	cats := testCatalog(t)
	idx := population(t, map[uint64]int{catA: 50, catB: 20, catC: 40}, 2)

	a := mustSplit(t, idx, cats, WithSeed(99))
	b := mustSplit(t, idx, cats, WithSeed(99))
	assert.Equal(t, a.Train, b.Train)
	assert.Equal(t, a.Val, b.Val)
	assert.Equal(t, uint64(99), a.Seed)

	c := mustSplit(t, idx, cats, WithSeed(100))
	assert.NotEqual(t, a.Val, c.Val)
}

func TestSplit_WorkersDoNotChangeResult(t *testing.T) {
	t.Parallel()

	cats := testCatalog(t)
	idx := population(t, map[uint64]int{catA: 40, catB: 15, catC: 33}, 2)

	serial := mustSplit(t, idx, cats, WithSeed(5), WithWorkers(-1))
	parallel := mustSplit(t, idx, cats, WithSeed(5), WithWorkers(8))
	assert.Equal(t, serial.Train, parallel.Train)
	assert.Equal(t, serial.Val, parallel.Val)
	assert.Equal(t, serial.Categories, parallel.Categories)
}

func TestSplit_UnseededReportsSeed(t *testing.T) {
	t.Parallel()

	cats := testCatalog(t)
	idx := population(t, map[uint64]int{catA: 25}, 1)

	first := mustSplit(t, idx, cats)
	replay := mustSplit(t, idx, cats, WithSeed(first.Seed))
	assert.Equal(t, first.Train, replay.Train)
	assert.Equal(t, first.Val, replay.Val)
}

func TestSplit_DropRatio(t *testing.T) {
	t.Parallel()

	idx := population(t, map[uint64]int{catA: 100, catB: 7, catC: 10}, 1)
	res := mustSplit(t, idx, testCatalog(t), WithSeed(11), WithDropRatio(0.5), WithSplitRatio(0.25))

	byCat := make(map[uint64]CategoryStats)
	for _, st := range res.Categories {
		byCat[st.CategoryID] = st
	}
	assert.Equal(t, CategoryStats{CategoryID: catA, Population: 100, Kept: 50, Val: 12, TrainRows: 38, ValRows: 12}, byCat[catA])
	assert.Equal(t, CategoryStats{CategoryID: catB, Population: 7, Kept: 3, Val: 0, TrainRows: 3, ValRows: 0}, byCat[catB])
	assert.Equal(t, CategoryStats{CategoryID: catC, Population: 10, Kept: 5, Val: 1, TrainRows: 4, ValRows: 1}, byCat[catC])
	assert.Len(t, res.Train, 45)
	assert.Len(t, res.Val, 13)
}

func TestSplit_Progress(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []record.ProgressEvent
	)
	idx := population(t, map[uint64]int{catA: 5, catB: 5, catC: 5}, 1)
	mustSplit(t, idx, testCatalog(t), WithSeed(1), WithProgress(func(ev record.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}))

	require.Len(t, events, 3)
	done := make([]int, 0, len(events))
	for _, ev := range events {
		assert.Equal(t, record.StageSplitting, ev.Stage)
		assert.Equal(t, 3, ev.RecordsTotal)
		done = append(done, ev.RecordsDone)
	}
	slices.Sort(done)
	assert.Equal(t, []int{1, 2, 3}, done)
}

func TestSplit_MissingCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry index.Entry
	}{
		{
			name:  "unlabeled product",
			entry: index.Entry{EntityID: 77, NumItems: 1, Offset: 500, Length: 10},
		},
		{
			name:  "category not in catalog",
			entry: index.Entry{EntityID: 77, NumItems: 1, Offset: 500, Length: 10, CategoryID: 42, HasCategory: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			idx, err := index.New([]index.Entry{
				{EntityID: 1, NumItems: 1, Offset: 0, Length: 10, CategoryID: catA, HasCategory: true},
				tt.entry,
			}, 0)
			require.NoError(t, err)

			s, err := New(WithSeed(1))
			require.NoError(t, err)
			_, err = s.Split(context.Background(), idx, testCatalog(t))
			require.ErrorIs(t, err, record.ErrMissingCategory)

			var recErr *record.RecordError
			require.True(t, errors.As(err, &recErr))
			assert.Equal(t, uint64(77), recErr.EntityID)
			assert.Equal(t, uint64(500), recErr.Offset)
		})
	}
}

func TestSplit_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(WithSeed(1))
	require.NoError(t, err)
	_, err = s.Split(ctx, population(t, map[uint64]int{catA: 3}, 1), testCatalog(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{"split zero", WithSplitRatio(0)},
		{"split one", WithSplitRatio(1)},
		{"split negative", WithSplitRatio(-0.1)},
		{"drop one", WithDropRatio(1)},
		{"drop negative", WithDropRatio(-0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.opt)
			require.ErrorIs(t, err, ErrInvalidRatio)
		})
	}
}

func TestChoose(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ n, k int }{{10, 0}, {10, 3}, {10, 10}, {5, 7}} {
		r := newTestRand(uint64(tc.n*100 + tc.k))
		picked := choose(r, tc.n, tc.k)
		count := 0
		for _, p := range picked {
			if p {
				count++
			}
		}
		assert.Equal(t, min(tc.n, tc.k), count, "n=%d k=%d", tc.n, tc.k)
	}
}
