// Package buf provides overflow-safe range arithmetic for image addresses.
package buf

import (
	"fmt"
	"math"
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow uint64.
func AddOverflowSafe(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// Span returns the offset of [addr, addr+n) relative to base, validating that
// the range lies entirely inside a region of size bytes starting at base.
func Span(base uint64, size int, addr uint64, n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative length: %d", n)
	}
	if size < 0 {
		return 0, fmt.Errorf("negative size: %d", size)
	}
	if addr < base {
		return 0, fmt.Errorf("bounds: addr=%#x below base=%#x", addr, base)
	}
	end, ok := AddOverflowSafe(addr, uint64(n))
	if !ok {
		return 0, fmt.Errorf("overflow: addr=%#x + len=%d", addr, n)
	}
	limit, ok := AddOverflowSafe(base, uint64(size))
	if !ok {
		return 0, fmt.Errorf("overflow: base=%#x + size=%d", base, size)
	}
	if end > limit {
		return 0, fmt.Errorf("bounds: end=%#x > limit=%#x", end, limit)
	}
	return int(addr - base), nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	if n > math.MaxInt-off {
		return nil, false
	}
	end := off + n
	if end > len(b) {
		return nil, false
	}
	return b[off:end], true
}

// Overlaps reports whether [a, a+alen) and [b, b+blen) share at least one byte.
func Overlaps(a uint64, alen int, b uint64, blen int) bool {
	if alen <= 0 || blen <= 0 {
		return false
	}
	return a < b+uint64(blen) && b < a+uint64(alen)
}
