package relnet

import (
	"net"
	"time"

	"relnet/internal/idpool"
	"relnet/internal/telemetry"
	"relnet/internal/transport"
	"relnet/internal/wire"
)

// Decision is an admission predicate's verdict on one connection request.
type Decision int

const (
	Allow Decision = iota
	Reject
	Ignore
)

// Predicate decides whether to admit a connection request from addr
// carrying requestPayload. The returned reason is only meaningful when the
// Decision is Reject: it is echoed back to the peer in the reject
// datagram's stream region and surfaces there as
// PendingConnectionError.Reason.
type Predicate func(addr net.Addr, requestPayload []byte) (Decision, string)

// ConnectionListener is the server-side accept loop (spec component I):
// it owns the shared transmitter/demux pair and a connection-id
// allocator, and mints new Connections out of incoming requests.
type ConnectionListener[P any, PP ParcelPtr[P]] struct {
	transmitter transport.Transmitter
	demux       *transport.MapDemux
	allocator   *idpool.Allocator
	now         func() time.Time
	metrics     *telemetry.Metrics
}

// NewListener binds a listener to transmitter. nowFn supplies the clock
// used for timeouts and retransmission across every Connection it mints.
func NewListener[P any, PP ParcelPtr[P]](
	transmitter transport.Transmitter,
	nowFn func() time.Time,
	metrics *telemetry.Metrics,
) *ConnectionListener[P, PP] {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &ConnectionListener[P, PP]{
		transmitter: transmitter,
		demux:       transport.NewMapDemux(),
		allocator:   idpool.New(),
		now:         nowFn,
		metrics:     metrics,
	}
}

// TryAccept pumps the transmitter, pops at most one pending connectionless
// request, and applies predicate to it (spec.md §4.I).
func (l *ConnectionListener[P, PP]) TryAccept(predicate Predicate) (*Connection[P, PP], error) {
	pump(l.transmitter, l.demux)

	var pending []transport.Datagram
	l.demux.Process(0, func(dgram transport.Datagram) {
		pending = append(pending, dgram)
	})
	if len(pending) == 0 {
		return nil, ErrNoPendingConnections
	}

	first := pending[0]
	for _, dgram := range pending[1:] {
		l.demux.Push(0, dgram)
	}

	h, err := wire.ReadHeader(first.Bytes)
	if err != nil || !h.Signal.IsConnectionRequest() {
		return nil, ErrInvalidRequest
	}
	payloadLen := h.Signal.StreamByteCount()
	if wire.HeaderByteCount+payloadLen > len(first.Bytes) {
		return nil, ErrInvalidRequest
	}
	payload := first.Bytes[wire.HeaderByteCount : wire.HeaderByteCount+payloadLen]

	decision, reason := predicate(first.Src, payload)
	switch decision {
	case Allow:
		id, err := l.allocator.Allocate()
		if err != nil {
			return nil, ErrOutOfIDs
		}
		l.demux.Allow(id)
		l.sendHeaderOnly(wire.AcceptConnection(h.Prelude, id), first.Src)
		return newConnection[P, PP](l.transmitter, l.demux, first.Src, id, l.now, l.metrics), nil
	case Reject:
		l.sendReject(h.Prelude, reason, first.Src)
		return nil, ErrPredicateFail
	default: // Ignore
		return nil, ErrPredicateFail
	}
}

func (l *ConnectionListener[P, PP]) sendHeaderOnly(h wire.Header, addr net.Addr) {
	buf := make([]byte, wire.HeaderByteCount)
	if err := wire.WriteHeader(buf, h); err != nil {
		return
	}
	_, _ = l.transmitter.SendTo(buf, addr)
}

// sendReject sends a connectionless reject datagram for handshakeID,
// echoing reason (if any) in the stream region so the pending connection
// on the other end can surface it via PendingConnectionError.
func (l *ConnectionListener[P, PP]) sendReject(handshakeID uint32, reason string, addr net.Addr) {
	payload := []byte(reason)
	h := wire.Reject(handshakeID, len(payload))
	buf := make([]byte, wire.HeaderByteCount+len(payload))
	if err := wire.WriteHeader(buf, h); err != nil {
		return
	}
	copy(buf[wire.HeaderByteCount:], payload)
	_, _ = l.transmitter.SendTo(buf, addr)
}

// ConnectionClosed releases id back to the allocator and stops routing
// further datagrams addressed to it.
func (l *ConnectionListener[P, PP]) ConnectionClosed(id transport.ConnectionID) {
	l.allocator.Free(id)
	l.demux.Block(id)
}
