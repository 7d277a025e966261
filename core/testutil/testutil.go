// Package testutil builds in-memory product archives for tests.
package testutil

import (
	"fmt"
	"io"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

// Product describes one archive record.
type Product struct {
	ID          int64
	CategoryID  int64
	HasCategory bool
	Images      [][]byte
}

// Labeled returns a product carrying a category and n synthetic images.
func Labeled(id, category int64, n int) Product {
	return Product{ID: id, CategoryID: category, HasCategory: true, Images: Images(id, n)}
}

// Unlabeled returns a product without a category and n synthetic images.
func Unlabeled(id int64, n int) Product {
	return Product{ID: id, Images: Images(id, n)}
}

// Images returns n distinct payloads derived from the product id.
func Images(id int64, n int) [][]byte {
	imgs := make([][]byte, n)
	for i := range imgs {
		imgs[i] = fmt.Appendf(nil, "jpeg:%d:%d", id, i)
	}
	return imgs
}

// EncodeProduct returns the BSON encoding of p.
func EncodeProduct(tb testing.TB, p Product) []byte {
	tb.Helper()

	imgs := make(bson.A, 0, len(p.Images))
	for _, img := range p.Images {
		imgs = append(imgs, bson.D{{Key: "picture", Value: img}})
	}
	doc := bson.D{{Key: "_id", Value: p.ID}}
	if p.HasCategory {
		doc = append(doc, bson.E{Key: "category_id", Value: p.CategoryID})
	}
	doc = append(doc, bson.E{Key: "imgs", Value: imgs})

	data, err := bson.Marshal(doc)
	if err != nil {
		tb.Fatalf("marshal product %d: %v", p.ID, err)
	}
	return data
}

// BuildArchive concatenates the encoded products.
func BuildArchive(tb testing.TB, products []Product) []byte {
	tb.Helper()

	var out []byte
	for _, p := range products {
		out = append(out, EncodeProduct(tb, p)...)
	}
	return out
}

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data []byte
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}
