/*
 * classvm - a class-file virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package interp

import "math"

// Float and double fields/array elements are stored as their raw IEEE-754
// bit patterns (spec.md §3 "Runtime value" stores floats/doubles as their
// bit pattern in the same-width integer slot a heap allocation already
// has), while value.Value itself keeps the decoded float64 for arithmetic.
// These helpers convert between the two representations at the heap
// boundary.

func float32FromBits(bits int32) float32 {
	return math.Float32frombits(uint32(bits))
}

func int32FromFloatBits(v float32) int32 {
	return int32(math.Float32bits(v))
}

func float64FromBits(bits int64) float64 {
	return math.Float64frombits(uint64(bits))
}

func int64FromFloatBits(v float64) int64 {
	return int64(math.Float64bits(v))
}
