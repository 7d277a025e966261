package record

import (
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

// Default field names used by the product archives.
const (
	DefaultIDField       = "_id"
	DefaultCategoryField = "category_id"
	DefaultItemsField    = "imgs"
	DefaultPayloadField  = "picture"
)

// BSONDecoder decodes BSON product documents.
//
// The zero value uses the default field names.
type BSONDecoder struct {
	IDField       string
	CategoryField string
	ItemsField    string
	PayloadField  string
}

// NewBSONDecoder returns a decoder using the default field names.
func NewBSONDecoder() *BSONDecoder {
	return &BSONDecoder{}
}

// DecodeHeader implements Decoder.
func (d *BSONDecoder) DecodeHeader(data []byte) (Header, error) {
	_, h, err := d.header(data)
	return h, err
}

// Decode implements Decoder.
func (d *BSONDecoder) Decode(data []byte) (*Document, error) {
	items, h, err := d.header(data)
	if err != nil {
		return nil, err
	}
	doc := &Document{Header: h, Items: make([][]byte, 0, len(items))}
	payloadField := or(d.PayloadField, DefaultPayloadField)
	for i, item := range items {
		sub, ok := item.DocumentOK()
		if !ok {
			return nil, fmt.Errorf("%w: item %d is not a document", ErrDecodeFailure, i)
		}
		rv, err := sub.LookupErr(payloadField)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d has no %q field", ErrDecodeFailure, i, payloadField)
		}
		_, payload, ok := rv.BinaryOK()
		if !ok {
			return nil, fmt.Errorf("%w: item %d %q is not binary", ErrDecodeFailure, i, payloadField)
		}
		doc.Items = append(doc.Items, payload)
	}
	return doc, nil
}

func (d *BSONDecoder) header(data []byte) ([]bson.RawValue, Header, error) {
	raw := bson.Raw(data)
	if err := raw.Validate(); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}

	var h Header
	idField := or(d.IDField, DefaultIDField)
	rv, err := raw.LookupErr(idField)
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: no %q field", ErrDecodeFailure, idField)
	}
	if h.ID, err = integer(rv); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %q: %v", ErrDecodeFailure, idField, err)
	}

	catField := or(d.CategoryField, DefaultCategoryField)
	if rv, err := raw.LookupErr(catField); err == nil {
		if h.CategoryID, err = integer(rv); err != nil {
			return nil, Header{}, fmt.Errorf("%w: %q: %v", ErrDecodeFailure, catField, err)
		}
		h.HasCategory = true
	}

	itemsField := or(d.ItemsField, DefaultItemsField)
	rv, err = raw.LookupErr(itemsField)
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: no %q field", ErrDecodeFailure, itemsField)
	}
	arr, ok := rv.ArrayOK()
	if !ok {
		return nil, Header{}, fmt.Errorf("%w: %q is not an array", ErrDecodeFailure, itemsField)
	}
	items, err := arr.Values()
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %q: %v", ErrDecodeFailure, itemsField, err)
	}
	if uint64(len(items)) > math.MaxUint32 {
		return nil, Header{}, ErrSizeOverflow
	}
	h.NumItems = uint32(len(items)) //nolint:gosec // checked above
	return items, h, nil
}

// integer converts a numeric BSON value to a non-negative id.
func integer(rv bson.RawValue) (uint64, error) {
	if v, ok := rv.Int32OK(); ok {
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint64(v), nil
	}
	if v, ok := rv.Int64OK(); ok {
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint64(v), nil
	}
	if v, ok := rv.DoubleOK(); ok {
		if v < 0 || v != math.Trunc(v) || v > math.MaxInt64 {
			return 0, fmt.Errorf("value %v is not a whole number", v)
		}
		return uint64(v), nil
	}
	return 0, fmt.Errorf("unsupported type %s", rv.Type)
}

func or(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
