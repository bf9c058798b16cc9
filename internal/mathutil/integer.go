// Package mathutil holds a small set of integer helpers: overflow-checked
// addition and multiplication, absolute difference, and ceiling division.
// Only CeilDiv has a caller (search's page-count computation).
package mathutil

import "math/bits"

// SafeAdd returns x+y and reports whether the addition overflowed.
func SafeAdd(x, y uint64) (uint64, bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// SafeMul returns x*y and reports whether the multiplication overflowed.
func SafeMul(x, y uint64) (uint64, bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}

// AbsoluteDifference returns |x-y| for two uint64 operands.
func AbsoluteDifference(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// CeilDiv returns ceil(x/y), or 0 if y is 0. Used to turn a total hit
// count and a page size into a page count.
func CeilDiv(x, y int) int {
	if y <= 0 {
		return 0
	}
	return (x + y - 1) / y
}
