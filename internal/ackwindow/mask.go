package ackwindow

import "errors"

// ErrWouldSkipParcel is returned by AckMask.Ack when acknowledging the
// given index would slide the window past an as-yet-unacknowledged entry,
// which would cause a reliable parcel to be silently skipped.
var ErrWouldSkipParcel = errors.New("ackwindow: acknowledging this index would skip a reliable parcel")

// Mask is a 64-bit sliding acknowledgement window paired with the newest
// acknowledged index. It acknowledges LastIndex, and for each i in [1,64]
// acknowledges LastIndex-i iff bit i-1 of Bits is set.
type Mask struct {
	LastIndex Index
	Bits      uint64
}

// New returns a Mask that acknowledges only idx.
func New(idx Index) Mask {
	return Mask{LastIndex: idx}
}

// Acknowledges reports whether the mask already acknowledges idx.
func (m Mask) Acknowledges(idx Index) bool {
	d := Dist(m.LastIndex, idx)
	switch {
	case d == 0:
		return true
	case d <= 64:
		bit := uint64(1) << (d - 1)
		return m.Bits&bit == bit
	default:
		return false
	}
}

// Ack records idx as acknowledged, sliding the window forward if idx is
// newer than LastIndex. It fails with ErrWouldSkipParcel if sliding the
// window would drop an unacknowledged entry that a reliable parcel may
// still be depending on; the caller should drop the datagram that
// triggered the slide so the peer retransmits.
func (m *Mask) Ack(idx Index) error {
	d := Dist(m.LastIndex, idx)
	switch {
	case d == 0:
		// Duplicate of the already-acknowledged newest index: no-op.
		return nil
	case d <= 64:
		m.Bits |= uint64(1) << (d - 1)
		return nil
	case d <= 127:
		// Older than the window: already superseded, ignore.
		return nil
	default:
		// d in [128, 255]: idx is ahead of LastIndex by s = 256-d positions.
		s := uint8(256 - int(d))
		required := s
		if leadingOnes(m.Bits) < uint32(required) {
			return ErrWouldSkipParcel
		}
		m.LastIndex = idx
		m.Bits <<= uint(s)
		m.Bits |= uint64(1) << uint(s-1)
		return nil
	}
}

// leadingOnes counts the number of consecutive set most-significant bits.
func leadingOnes(v uint64) uint32 {
	var n uint32
	for i := 63; i >= 0; i-- {
		if v&(uint64(1)<<uint(i)) == 0 {
			break
		}
		n++
	}
	return n
}

// ToLEBytes serializes the mask to its stable 9-byte representation: the
// 64-bit mask followed by the 1-byte LastIndex, both little-endian.
func (m Mask) ToLEBytes() [9]byte {
	var out [9]byte
	for i := 0; i < 8; i++ {
		out[i] = byte(m.Bits >> (8 * i))
	}
	out[8] = byte(m.LastIndex)
	return out
}

// FromLEBytes deserializes a Mask from its 9-byte representation.
func FromLEBytes(b [9]byte) Mask {
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return Mask{LastIndex: Index(b[8]), Bits: bits}
}
