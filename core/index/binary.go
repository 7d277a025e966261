package index

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/bsonsplit/core/internal/fb"
)

// BinaryVersion is the FlatBuffers index format version.
const BinaryVersion = 1

// MarshalBinary encodes the index as a FlatBuffers blob.
func (idx *Index) MarshalBinary() ([]byte, error) {
	builder := flatbuffers.NewBuilder(64 + len(idx.entries)*48)

	// Build entries in reverse order (FlatBuffers requirement)
	offsets := make([]flatbuffers.UOffsetT, len(idx.entries))
	for i := len(idx.entries) - 1; i >= 0; i-- {
		e := idx.entries[i]
		fb.EntryStart(builder)
		fb.EntryAddEntityId(builder, e.EntityID)
		fb.EntryAddOffset(builder, e.Offset)
		fb.EntryAddCategoryId(builder, e.CategoryID)
		fb.EntryAddNumItems(builder, e.NumItems)
		fb.EntryAddLength(builder, e.Length)
		fb.EntryAddHasCategory(builder, e.HasCategory)
		offsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesOffset := builder.EndVector(len(offsets))

	var digestOffset flatbuffers.UOffsetT
	if idx.digest != "" {
		digestOffset = builder.CreateString(idx.digest.String())
	}

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, BinaryVersion)
	fb.IndexAddLabeled(builder, idx.labeled)
	fb.IndexAddArchiveSize(builder, idx.archiveSize)
	if digestOffset != 0 {
		fb.IndexAddArchiveDigest(builder, digestOffset)
	}
	fb.IndexAddEntries(builder, entriesOffset)
	builder.Finish(fb.IndexEnd(builder))
	return builder.FinishedBytes(), nil
}

// View provides lookups over a FlatBuffers index without decoding it.
//
// View aliases the buffer passed to LoadView.
type View struct {
	data []byte
	root *fb.Index
}

// LoadView parses a FlatBuffers-encoded index.
//
// The provided data is retained by the view; callers must not modify it
// after calling LoadView.
func LoadView(data []byte) (v *View, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("index: failed to parse binary index: %v", r)
		}
	}()
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, errors.New("index: empty binary index")
	}

	root := fb.GetRootAsIndex(data, 0)
	if version := root.Version(); version != BinaryVersion {
		return nil, fmt.Errorf("index: unsupported binary index version %d", version)
	}
	view := &View{data: data, root: root}
	// Touch the last entry so truncated buffers fail here rather than on lookup.
	if n := root.EntriesLength(); n > 0 {
		view.at(n - 1)
	}
	return view, nil
}

// Len returns the number of products in the index.
func (v *View) Len() int {
	return v.root.EntriesLength()
}

// Labeled reports whether any entry carries a category.
func (v *View) Labeled() bool {
	return v.root.Labeled()
}

// ArchiveSize returns the size of the indexed archive in bytes.
func (v *View) ArchiveSize() uint64 {
	return v.root.ArchiveSize()
}

// Digest returns the digest of the archive, if it was recorded.
func (v *View) Digest() (digest.Digest, bool) {
	d := v.root.ArchiveDigest()
	if len(d) == 0 {
		return "", false
	}
	return digest.Digest(d), true
}

// Lookup returns the entry for a product id using binary search.
func (v *View) Lookup(id uint64) (Entry, bool) {
	n := v.root.EntriesLength()
	i := sort.Search(n, func(i int) bool {
		var e fb.Entry
		v.root.Entries(&e, i)
		return e.EntityId() >= id
	})
	if i == n {
		return Entry{}, false
	}
	e := v.at(i)
	if e.EntityID != id {
		return Entry{}, false
	}
	return e, true
}

// Entries returns an iterator over all entries in product id order.
func (v *View) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for i := range v.root.EntriesLength() {
			if !yield(v.at(i)) {
				return
			}
		}
	}
}

// Index materializes the view into an Index.
func (v *View) Index() *Index {
	entries := make([]Entry, 0, v.Len())
	for e := range v.Entries() {
		entries = append(entries, e)
	}
	d, _ := v.Digest()
	return fromSorted(entries, v.ArchiveSize()).withDigest(d)
}

func (v *View) at(i int) Entry {
	var e fb.Entry
	v.root.Entries(&e, i)
	return Entry{
		EntityID:    e.EntityId(),
		NumItems:    e.NumItems(),
		Offset:      e.Offset(),
		Length:      e.Length(),
		CategoryID:  e.CategoryId(),
		HasCategory: e.HasCategory(),
	}
}

// UnmarshalBinary decodes a FlatBuffers index into an Index.
func UnmarshalBinary(data []byte) (idx *Index, err error) {
	v, err := LoadView(data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			idx = nil
			err = fmt.Errorf("index: failed to decode binary index: %v", r)
		}
	}()
	idx = v.Index()
	for i := 1; i < len(idx.entries); i++ {
		if idx.entries[i].EntityID <= idx.entries[i-1].EntityID {
			return nil, errors.New("index: binary index entries are not sorted by product id")
		}
	}
	return idx, nil
}
