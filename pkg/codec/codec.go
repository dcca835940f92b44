// Package codec provides fixed-layout little-endian serialization of
// primitives and user-defined parcel types, round-trip exact.
//
// It fulfils the byte-serialization collaborator contract: a user type is
// convertible to/from bytes with a known serialized length. Little-endian
// for primitives, arrays and tuples concatenated without padding,
// variable-length sequences prefixed by an unsigned length.
package codec

import (
	"encoding/binary"
	"math"
)

// Marshaler is implemented by user parcel types that can serialize
// themselves to a byte-oriented Writer.
type Marshaler interface {
	MarshalCodec(w *Writer) error
}

// Unmarshaler is implemented by user parcel types that can populate
// themselves from a byte-oriented Reader.
type Unmarshaler interface {
	UnmarshalCodec(r *Reader) error
}

// Writer accumulates a little-endian byte stream.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity hint.
func NewWriter(capHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capHint)}
}

// Bytes returns the accumulated byte stream.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteFloat32(f float32) {
	w.WriteUint32(math.Float32bits(f))
}

func (w *Writer) WriteFloat64(f float64) {
	w.WriteUint64(math.Float64bits(f))
}

// WriteBytes appends a raw byte slice with no length prefix.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteString appends a length-prefixed (uint16 count) UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader consumes a little-endian byte stream produced by Writer.
type Reader struct {
	buf    []byte
	offset int
}

// NewReader wraps buf for sequential reads. buf is not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.offset }

func (r *Reader) take(n int) ([]byte, error) {
	if r.offset+n > len(r.buf) {
		return nil, ErrBufferOverflow
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadBytes reads exactly n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	return r.take(n)
}

// ReadString reads a length-prefixed (uint16 count) UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Marshal serializes v to a byte slice.
func Marshal(v Marshaler) ([]byte, error) {
	w := NewWriter(32)
	if err := v.MarshalCodec(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal deserializes buf into v, reporting the number of bytes
// consumed from buf. Trailing bytes are left unread; callers that expect
// an exact-length parcel should check the returned count.
func Unmarshal(buf []byte, v Unmarshaler) (int, error) {
	r := NewReader(buf)
	if err := v.UnmarshalCodec(r); err != nil {
		return 0, err
	}
	return r.offset, nil
}
