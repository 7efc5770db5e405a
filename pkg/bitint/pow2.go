// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size transforms.

Usage:

	// Round an arbitrary analysis window up to a valid transform size
	size := bitint.NextPowerOfTwo(6000) // Returns 8192

	// Reject a configured window that the transform cannot use
	ok := bitint.IsPowerOfTwo(windowSize)

NextPowerOfTwo subtracts one before taking the bit length so that exact
powers of two map to themselves: Len(8-1) = 3 and 1<<3 = 8, where Len(8)
would give 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of two
// has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
