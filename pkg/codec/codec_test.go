package codec

import "testing"

type point struct {
	X, Y float32
	Name string
}

func (p *point) MarshalCodec(w *Writer) error {
	w.WriteFloat32(p.X)
	w.WriteFloat32(p.Y)
	w.WriteString(p.Name)
	return nil
}

func (p *point) UnmarshalCodec(r *Reader) error {
	var err error
	if p.X, err = r.ReadFloat32(); err != nil {
		return err
	}
	if p.Y, err = r.ReadFloat32(); err != nil {
		return err
	}
	if p.Name, err = r.ReadString(); err != nil {
		return err
	}
	return nil
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := &point{X: 1.5, Y: -2.25, Name: "hello there friend!"}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out point
	n, err := Unmarshal(data, &out)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n != len(data) {
		t.Fatalf("expected to consume %d bytes, consumed %d", len(data), n)
	}
	if out != *in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, *in)
	}
}

func TestReaderOverflow(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadUint32(); err != ErrBufferOverflow {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
}

func TestWriterPrimitives(t *testing.T) {
	w := NewWriter(0)
	w.WriteUint8(0xAB)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0102030405060708)

	r := NewReader(w.Bytes())
	if v, _ := r.ReadUint8(); v != 0xAB {
		t.Fatalf("uint8 mismatch: %x", v)
	}
	if v, _ := r.ReadUint16(); v != 0x1234 {
		t.Fatalf("uint16 mismatch: %x", v)
	}
	if v, _ := r.ReadUint32(); v != 0xDEADBEEF {
		t.Fatalf("uint32 mismatch: %x", v)
	}
	if v, _ := r.ReadUint64(); v != 0x0102030405060708 {
		t.Fatalf("uint64 mismatch: %x", v)
	}
}
