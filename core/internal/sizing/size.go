// Package sizing checks record ranges against archive sizes without
// overflowing.
package sizing

import "math"

// ToInt64 converts an archive offset to int64, returning overflowErr if it
// does not fit.
func ToInt64(off uint64, overflowErr error) (int64, error) {
	if off > math.MaxInt64 {
		return 0, overflowErr
	}
	return int64(off), nil
}

// Within reports whether the range [off, off+length) lies inside size bytes.
func Within(off, length, size uint64) bool {
	end := off + length
	return end >= off && end <= size
}
