// Package record defines the types shared by the archive scanner, the offset
// index and the exporters.
package record

// Record describes one length-prefixed document in an archive.
//
// Records are produced by the scanner in increasing offset order. The offset
// of record i+1 always equals Offset+Length of record i.
type Record struct {
	// Offset is the byte offset of the length prefix in the archive.
	Offset uint64

	// Length is the total record length, including the 4-byte prefix.
	Length uint32

	// EntityID is the product id stored in the document.
	EntityID uint64

	// NumItems is the number of images attached to the product.
	NumItems uint32

	// CategoryID is the product category. Only meaningful when HasCategory is set.
	CategoryID uint64

	// HasCategory reports whether the document carried a category label.
	HasCategory bool
}

// End returns the offset of the first byte after the record.
func (r Record) End() uint64 {
	return r.Offset + uint64(r.Length)
}

// Header holds the fields the scanner needs from a document.
type Header struct {
	ID          uint64
	CategoryID  uint64
	HasCategory bool
	NumItems    uint32
}

// Document is a fully decoded record.
//
// Items alias the buffer passed to Decode and must not be modified.
type Document struct {
	Header
	Items [][]byte
}

// Item returns the payload of the i-th image.
func (d *Document) Item(i int) ([]byte, error) {
	if i < 0 || i >= len(d.Items) {
		return nil, ErrItemOutOfRange
	}
	return d.Items[i], nil
}

// Decoder turns raw record bytes into structured fields.
//
// Implementations must be safe for concurrent use.
type Decoder interface {
	// DecodeHeader extracts the id, category and item count without
	// materializing item payloads.
	DecodeHeader(data []byte) (Header, error)

	// Decode extracts the header and every item payload.
	Decode(data []byte) (*Document, error)
}
