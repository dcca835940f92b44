// Package transport implements the non-blocking datagram transmitter and
// the connection-id-keyed demultiplexer (spec components B, C).
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// MaxFrameLength bounds total datagram size, header included, matching
// internal/wire's conservative MTU estimate.
const MaxFrameLength = 1200

var (
	// ErrNoPending is returned by TryRecvFrom when no datagram is
	// currently buffered by the OS.
	ErrNoPending = errors.New("transport: no pending datagram")
	// ErrMalformed is returned by TryRecvFrom when a received datagram
	// exceeds MaxFrameLength and cannot be a valid frame.
	ErrMalformed = errors.New("transport: malformed datagram")
)

// Transmitter sends and receives single datagrams to/from a peer address,
// never blocking the caller.
type Transmitter interface {
	SendTo(b []byte, addr net.Addr) (int, error)
	// TryRecvFrom writes at most MaxFrameLength bytes into buf and
	// returns the number written and the sender's address. It returns
	// ErrNoPending immediately if nothing is buffered.
	TryRecvFrom(buf []byte) (int, net.Addr, error)
	LocalAddr() net.Addr
	Close() error
}

// UDPTransmitter implements Transmitter over a bound, non-blocking UDP
// socket.
type UDPTransmitter struct {
	conn *net.UDPConn
}

// ListenUDP binds a UDP socket at addr and returns a Transmitter over it.
func ListenUDP(addr string) (*UDPTransmitter, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: resolve addr")
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: bind")
	}
	return &UDPTransmitter{conn: conn}, nil
}

func (t *UDPTransmitter) SendTo(b []byte, addr net.Addr) (int, error) {
	n, err := t.conn.WriteTo(b, addr)
	if err != nil {
		return n, errors.Wrap(err, "transport: send")
	}
	return n, nil
}

// TryRecvFrom polls the socket for one datagram without blocking, using a
// zero-duration read deadline the way the teacher's listen loop blocks
// indefinitely except this stays non-blocking per the concurrency model.
func (t *UDPTransmitter) TryRecvFrom(buf []byte) (int, net.Addr, error) {
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, errors.Wrap(err, "transport: set deadline")
	}
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, ErrNoPending
		}
		return 0, nil, errors.Wrap(err, "transport: recv")
	}
	if n > MaxFrameLength {
		return n, addr, ErrMalformed
	}
	return n, addr, nil
}

func (t *UDPTransmitter) LocalAddr() net.Addr { return t.conn.LocalAddr() }

func (t *UDPTransmitter) Close() error { return t.conn.Close() }
