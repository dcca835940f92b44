// Package wire implements the 24-byte datagram header and its 32-bit
// signal bitfield (spec component D).
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"relnet/internal/ackwindow"
)

// HeaderByteCount is the fixed wire size of a Header.
const HeaderByteCount = 24

// MaxRegionByteCount is the largest value either the stream or parcel byte
// count can take: an 11-bit field.
const MaxRegionByteCount = (1 << 11) - 1

var (
	// ErrReservedBitsNonZero is returned when bits 25-31 of the signal, or
	// the 4-byte reserved tail of the header, are not all zero.
	ErrReservedBitsNonZero = errors.New("wire: reserved bits are non-zero")
	// ErrInvalidSignalCombination is returned when the signal bits are
	// inconsistent with the header's connection_id (e.g. a connectionless
	// datagram with neither or both of request/closed set).
	ErrInvalidSignalCombination = errors.New("wire: invalid signal bit combination")
	// ErrPayloadLengthMismatch is returned when the declared stream+parcel
	// byte counts of a connected datagram exceed MaxFramePayloadByteCount.
	// The length of the supplied buffer is not checked against them.
	ErrPayloadLengthMismatch = errors.New("wire: declared payload length mismatch")
	// ErrBufferTooShort is returned when a buffer shorter than
	// HeaderByteCount is passed to ReadHeader or WriteHeader.
	ErrBufferTooShort = errors.New("wire: buffer shorter than header size")
)

// Signal is the 32-bit per-datagram bitfield described in spec.md §3.
type Signal uint32

const (
	streamLenMask      Signal = 0x7FF
	parcelLenShift            = 11
	parcelLenMask      Signal = 0x7FF << parcelLenShift
	connectionRequestBit Signal = 1 << 22
	connectionClosedBit  Signal = 1 << 23
	synchronizedBit      Signal = 1 << 24
	reservedMask         Signal = 0x7F << 25
)

// StreamByteCount returns the low 11 bits: the stream byte count.
func (s Signal) StreamByteCount() int { return int(s & streamLenMask) }

// ParcelByteCount returns the next 11 bits: the parcel byte count.
func (s Signal) ParcelByteCount() int { return int((s & parcelLenMask) >> parcelLenShift) }

// IsConnectionRequest reports whether the connection-request bit is set.
func (s Signal) IsConnectionRequest() bool { return s&connectionRequestBit != 0 }

// IsConnectionClosed reports whether the connection-closed bit is set.
func (s Signal) IsConnectionClosed() bool { return s&connectionClosedBit != 0 }

// IsSynchronized reports whether packet_id is valid and must be acknowledged.
func (s Signal) IsSynchronized() bool { return s&synchronizedBit != 0 }

func newSignal(streamLen, parcelLen int) Signal {
	return Signal(streamLen&int(streamLenMask)) | (Signal(parcelLen) << parcelLenShift)
}

// Header is the 24-byte wire header preceding every datagram's payload.
type Header struct {
	ConnectionID  uint16
	PacketID      ackwindow.Index
	AckPacketID   ackwindow.Index
	AckPacketMask uint64
	Signal        Signal
	Prelude       uint32
}

// RequestConnection builds the header for a connectionless connection
// request carrying a handshake payload of payloadLen bytes.
func RequestConnection(handshakeID uint32, payloadLen int) Header {
	return Header{
		Signal:  newSignal(payloadLen, 0) | connectionRequestBit,
		Prelude: handshakeID,
	}
}

// AcceptConnection builds the header accepting a connection request,
// assigning connectionID to the new connection. It is not a connectionless
// datagram: ConnectionID is the newly minted id, and the receiving
// PendingConnection recognizes it by matching Prelude against its own
// handshake id.
func AcceptConnection(handshakeID uint32, connectionID uint16) Header {
	return Header{
		ConnectionID: connectionID,
		Signal:       newSignal(0, 0),
		Prelude:      handshakeID,
	}
}

// Reject builds the header rejecting a connection request, optionally
// carrying a payloadLen-byte human-readable reason in the stream region.
func Reject(handshakeID uint32, payloadLen int) Header {
	return Header{
		Signal:  newSignal(payloadLen, 0) | connectionClosedBit,
		Prelude: handshakeID,
	}
}

// Synchronized builds the signal portion of a header whose packet_id must
// be tracked and acknowledged, carrying parcelLen bytes of parcel data
// immediately followed by streamLen bytes of stream data.
func Synchronized(parcelLen, streamLen int) Header {
	return Header{Signal: newSignal(streamLen, parcelLen) | synchronizedBit}
}

// Volatile builds the signal portion of a header carrying parcelLen bytes
// of parcel data whose loss is tolerated; its packet_id is not tracked.
func Volatile(parcelLen int) Header {
	return Header{Signal: newSignal(0, parcelLen)}
}

// KeepAlive builds a header-only datagram carrying no payload, sent to
// keep a connection's last_sent_at fresh when nothing else is pending.
func KeepAlive() Header {
	return Header{Signal: newSignal(0, 0)}
}

// ConnectionClosed builds the header announcing that a connection is being
// closed by its peer.
func ConnectionClosed(connectionID uint16) Header {
	return Header{
		ConnectionID: connectionID,
		Signal:       newSignal(0, 0) | connectionClosedBit,
	}
}

// Acknowledges reports whether h's ack fields acknowledge idx.
func (h Header) Acknowledges(idx ackwindow.Index) bool {
	m := ackwindowMaskFor(h)
	return m.Acknowledges(idx)
}

func ackwindowMaskFor(h Header) ackwindowMask {
	return ackwindowMask{LastIndex: h.AckPacketID, Bits: h.AckPacketMask}
}

// ackwindowMask is a tiny local mirror of ackwindow.Mask so this package
// need not import ackwindow's mutation API for a pure read.
type ackwindowMask struct {
	LastIndex ackwindow.Index
	Bits      uint64
}

func (m ackwindowMask) Acknowledges(idx ackwindow.Index) bool {
	d := ackwindow.Dist(m.LastIndex, idx)
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

// WriteHeader writes h's 24-byte wire representation to the start of buf.
// buf must be at least HeaderByteCount bytes long.
func WriteHeader(buf []byte, h Header) error {
	if len(buf) < HeaderByteCount {
		return ErrBufferTooShort
	}
	binary.LittleEndian.PutUint16(buf[0:2], h.ConnectionID)
	buf[2] = byte(h.PacketID)
	buf[3] = byte(h.AckPacketID)
	binary.LittleEndian.PutUint64(buf[4:12], h.AckPacketMask)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Signal))
	binary.LittleEndian.PutUint32(buf[16:20], h.Prelude)
	buf[20], buf[21], buf[22], buf[23] = 0, 0, 0, 0
	return nil
}

// ReadHeader parses and validates a 24-byte wire header from the start of
// buf, returning an error if the reserved bits are non-zero or the signal
// combination is internally inconsistent.
func ReadHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderByteCount {
		return Header{}, ErrBufferTooShort
	}
	if buf[20] != 0 || buf[21] != 0 || buf[22] != 0 || buf[23] != 0 {
		return Header{}, ErrReservedBitsNonZero
	}

	signal := Signal(binary.LittleEndian.Uint32(buf[12:16]))
	if signal&reservedMask != 0 {
		return Header{}, ErrReservedBitsNonZero
	}

	h := Header{
		ConnectionID:  binary.LittleEndian.Uint16(buf[0:2]),
		PacketID:      ackwindow.Index(buf[2]),
		AckPacketID:   ackwindow.Index(buf[3]),
		AckPacketMask: binary.LittleEndian.Uint64(buf[4:12]),
		Signal:        signal,
		Prelude:       binary.LittleEndian.Uint32(buf[16:20]),
	}

	if err := validate(h); err != nil {
		return Header{}, err
	}
	return h, nil
}

func validate(h Header) error {
	if h.ConnectionID == 0 {
		req, closed := h.Signal.IsConnectionRequest(), h.Signal.IsConnectionClosed()
		if req == closed {
			// exactly one of {request, closed} must be set
			return ErrInvalidSignalCombination
		}
		if h.Signal.IsSynchronized() {
			return ErrInvalidSignalCombination
		}
		if h.Signal.ParcelByteCount() != 0 {
			return ErrInvalidSignalCombination
		}
		return nil
	}

	if h.Signal.ParcelByteCount()+h.Signal.StreamByteCount() > MaxFramePayloadByteCount {
		return ErrPayloadLengthMismatch
	}
	return nil
}

// IsValid is a convenience predicate wrapping ReadHeader.
func IsValid(buf []byte) bool {
	_, err := ReadHeader(buf)
	return err == nil
}

// MaxFrameLength is a conservative MTU estimate bounding total datagram
// size, header included.
const MaxFrameLength = 1200

// MaxFramePayloadByteCount is the largest payload (parcel+stream bytes)
// that fits in a single datagram.
const MaxFramePayloadByteCount = MaxFrameLength - HeaderByteCount
