package relnet

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"

	"relnet/internal/telemetry"
	"relnet/internal/transport"
	"relnet/internal/wire"
)

// PendingConnection holds client-side handshake state while awaiting the
// server's accept or reject (spec component H).
type PendingConnection[P any, PP ParcelPtr[P]] struct {
	transmitter transport.Transmitter
	remoteAddr  net.Addr
	handshakeID uint32
	payload     []byte
	lastSentAt  time.Time
	now         func() time.Time
	metrics     *telemetry.Metrics
}

// Connect sends a connection request carrying payload to remoteAddr and
// returns a PendingConnection awaiting the server's answer.
func Connect[P any, PP ParcelPtr[P]](
	transmitter transport.Transmitter,
	remoteAddr net.Addr,
	payload []byte,
	nowFn func() time.Time,
	metrics *telemetry.Metrics,
) (*PendingConnection[P, PP], error) {
	if len(payload) > wire.MaxFramePayloadByteCount {
		return nil, ErrPayloadTooLarge
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}

	p := &PendingConnection[P, PP]{
		transmitter: transmitter,
		remoteAddr:  remoteAddr,
		handshakeID: randomHandshakeID(),
		payload:     payload,
		now:         nowFn,
		metrics:     metrics,
	}
	if err := p.sendRequest(); err != nil {
		return nil, errors.Wrap(err, "relnet: connect")
	}
	return p, nil
}

func randomHandshakeID() uint32 {
	var b [4]byte
	_, _ = cryptorand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func (p *PendingConnection[P, PP]) sendRequest() error {
	h := wire.RequestConnection(p.handshakeID, len(p.payload))
	buf := make([]byte, wire.HeaderByteCount+len(p.payload))
	if err := wire.WriteHeader(buf, h); err != nil {
		return err
	}
	copy(buf[wire.HeaderByteCount:], p.payload)
	if _, err := p.transmitter.SendTo(buf, p.remoteAddr); err != nil {
		return err
	}
	p.lastSentAt = p.now()
	return nil
}

// Sync re-sends the connection request once ResyncPeriod has elapsed
// since the last send, matching spec.md §4.H.
func (p *PendingConnection[P, PP]) Sync() {
	if p.now().Sub(p.lastSentAt) > ResyncPeriod {
		_ = p.sendRequest()
	}
}

// TryPromote reads one datagram from the transmitter and interprets it
// as an answer to this handshake. ErrNoAnswer means try again later;
// ErrInvalidAnswer means the datagram did not match this handshake and
// was ignored; ErrRejected means the server explicitly declined.
func (p *PendingConnection[P, PP]) TryPromote() (*Connection[P, PP], error) {
	buf := make([]byte, wire.MaxFrameLength)
	n, _, err := p.transmitter.TryRecvFrom(buf)
	if err != nil {
		return nil, ErrNoAnswer
	}

	h, err := wire.ReadHeader(buf[:n])
	if err != nil {
		return nil, ErrInvalidAnswer
	}
	if h.Prelude != p.handshakeID {
		return nil, ErrInvalidAnswer
	}

	if h.ConnectionID == 0 {
		if h.Signal.IsConnectionClosed() {
			reasonLen := h.Signal.StreamByteCount()
			var reason string
			if wire.HeaderByteCount+reasonLen <= n {
				reason = string(buf[wire.HeaderByteCount : wire.HeaderByteCount+reasonLen])
			}
			return nil, &PendingConnectionError{Err: ErrRejected, Reason: reason}
		}
		return nil, ErrInvalidAnswer
	}

	demux := transport.NewMapDemux()
	demux.Allow(h.ConnectionID)
	conn := newConnection[P, PP](p.transmitter, demux, p.remoteAddr, h.ConnectionID, p.now, p.metrics)
	return conn, nil
}
