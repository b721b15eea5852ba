// Package bits holds the bit helpers used by the bus protocols and the
// save classification heuristics.
package bits

import mbits "math/bits"

// Val returns the value of the bit at the given index.
func Val(b uint8, i uint8) uint8 {
	return (b >> i) & 1
}

// Set sets the bit at the given index.
func Set(b, i uint8) uint8 {
	return b | (1 << i)
}

// Test tests the bit at the given index.
func Test(b, i uint8) bool {
	return (b>>i)&1 != 0
}

// Count returns the number of set bits in buf.
func Count(buf []byte) int {
	n := 0
	for _, b := range buf {
		n += mbits.OnesCount8(b)
	}
	return n
}

// Diff returns the number of bit positions that differ between a and b.
// Only the common prefix of the two slices is compared.
func Diff(a, b []byte) int {
	if len(b) < len(a) {
		a = a[:len(b)]
	}
	n := 0
	for i := range a {
		n += mbits.OnesCount8(a[i] ^ b[i])
	}
	return n
}

// Margin returns the number of bits out of total that a leniency
// percentage tolerates, using integer arithmetic.
func Margin(total, leniency int) int {
	return total * (100 - leniency) / 100
}
