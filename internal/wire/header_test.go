package wire

import (
	"testing"

	"relnet/internal/ackwindow"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Synchronized(10, 20)
	h.ConnectionID = 42
	h.PacketID = ackwindow.Index(7)
	h.AckPacketID = ackwindow.Index(6)
	h.AckPacketMask = 0xFF
	h.Prelude = 0xDEADBEEF

	buf := make([]byte, HeaderByteCount)
	if err := WriteHeader(buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	got, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeaderWriteShortBuffer(t *testing.T) {
	buf := make([]byte, HeaderByteCount-1)
	if err := WriteHeader(buf, KeepAlive()); err != ErrBufferTooShort {
		t.Fatalf("expected ErrBufferTooShort, got %v", err)
	}
	if _, err := ReadHeader(buf); err != ErrBufferTooShort {
		t.Fatalf("expected ErrBufferTooShort, got %v", err)
	}
}

func TestHeaderReservedBitsNonZero(t *testing.T) {
	buf := make([]byte, HeaderByteCount)
	if err := WriteHeader(buf, KeepAlive()); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	buf[20] = 1
	if _, err := ReadHeader(buf); err != ErrReservedBitsNonZero {
		t.Fatalf("expected ErrReservedBitsNonZero, got %v", err)
	}
}

func TestHeaderRequestConnectionValid(t *testing.T) {
	h := RequestConnection(0x1234, 16)
	buf := make([]byte, HeaderByteCount)
	if err := WriteHeader(buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	got, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !got.Signal.IsConnectionRequest() {
		t.Error("expected connection-request bit set")
	}
	if got.Signal.IsConnectionClosed() {
		t.Error("expected connection-closed bit clear")
	}
	if got.Signal.StreamByteCount() != 16 {
		t.Errorf("StreamByteCount() = %d, want 16", got.Signal.StreamByteCount())
	}
}

func TestHeaderRejectValid(t *testing.T) {
	h := Reject(0x1234, 0)
	buf := make([]byte, HeaderByteCount)
	_ = WriteHeader(buf, h)
	got, err := ReadHeader(buf)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !got.Signal.IsConnectionClosed() {
		t.Error("expected connection-closed bit set")
	}
}

func TestHeaderConnectionlessBothRequestAndClosedInvalid(t *testing.T) {
	h := RequestConnection(1, 0)
	h.Signal |= connectionClosedBit
	buf := make([]byte, HeaderByteCount)
	_ = WriteHeader(buf, h)
	if _, err := ReadHeader(buf); err != ErrInvalidSignalCombination {
		t.Fatalf("expected ErrInvalidSignalCombination, got %v", err)
	}
}

func TestHeaderConnectionlessNeitherRequestNorClosedInvalid(t *testing.T) {
	h := Header{ConnectionID: 0, Signal: newSignal(0, 0)}
	buf := make([]byte, HeaderByteCount)
	_ = WriteHeader(buf, h)
	if _, err := ReadHeader(buf); err != ErrInvalidSignalCombination {
		t.Fatalf("expected ErrInvalidSignalCombination, got %v", err)
	}
}

func TestHeaderAcceptConnectionIsNotConnectionless(t *testing.T) {
	h := AcceptConnection(0xCAFE, 7)
	if h.ConnectionID != 7 {
		t.Fatalf("ConnectionID = %d, want 7", h.ConnectionID)
	}
	if h.Prelude != 0xCAFE {
		t.Fatalf("Prelude = %x, want cafe", h.Prelude)
	}
	buf := make([]byte, HeaderByteCount)
	if err := WriteHeader(buf, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := ReadHeader(buf); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
}

func TestHeaderAcknowledges(t *testing.T) {
	h := Header{AckPacketID: ackwindow.Index(10), AckPacketMask: 1 << 2}
	if !h.Acknowledges(ackwindow.Index(10)) {
		t.Error("expected ack of last index")
	}
	if !h.Acknowledges(ackwindow.Index(7)) {
		t.Error("expected ack of index 10-3=7 via bit 2")
	}
	if h.Acknowledges(ackwindow.Index(8)) {
		t.Error("did not expect ack of index 8")
	}
}

func TestHeaderVolatileParcelByteCountOnConnectionlessInvalid(t *testing.T) {
	h := Header{ConnectionID: 0, Signal: newSignal(0, 5) | connectionRequestBit}
	buf := make([]byte, HeaderByteCount)
	_ = WriteHeader(buf, h)
	if _, err := ReadHeader(buf); err != ErrInvalidSignalCombination {
		t.Fatalf("expected ErrInvalidSignalCombination, got %v", err)
	}
}
