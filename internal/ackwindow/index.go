// Package ackwindow implements the wrapping 8-bit parcel index and the
// 64-bit sliding ack mask (spec component E).
package ackwindow

// Index is a wrapping 8-bit sequence number assigned to synchronized
// outbound datagrams. Ordering is modular: a < b iff (b - a) mod 256 is in
// [1, 127].
type Index uint8

// Dist returns (to - from) mod 256.
func Dist(to, from Index) uint8 {
	return uint8(to - from)
}

// Less reports whether a orders before b under modular (wraparound)
// comparison, i.e. b is strictly "ahead" of a by at most 127 positions.
func Less(a, b Index) bool {
	d := Dist(b, a)
	return d >= 1 && d <= 127
}

// Ahead reports whether b is strictly ahead of a; an alias of Less kept
// for readability at call sites that reason about "newer" indices.
func Ahead(a, b Index) bool {
	return Less(a, b)
}

// Add returns idx advanced by n positions, wrapping mod 256.
func (idx Index) Add(n uint8) Index {
	return Index(uint8(idx) + n)
}
