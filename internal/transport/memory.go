package transport

import (
	"net"
	"sync"

	"github.com/pkg/errors"
)

// ErrInvalidAddr is returned by MemoryTransport.SendTo when addr is not a
// MemoryAddr belonging to the same network.
var ErrInvalidAddr = errors.New("transport: addr is not a MemoryAddr")

// MemoryAddr is a net.Addr identifying an endpoint within a MemoryNetwork.
type MemoryAddr string

func (a MemoryAddr) Network() string { return "memory" }
func (a MemoryAddr) String() string  { return string(a) }

// MemoryNetwork wires a set of in-process endpoints together, letting
// tests exercise retransmission, reordering and loss deterministically
// instead of against a real kernel socket.
type MemoryNetwork struct {
	mu        sync.Mutex
	endpoints map[MemoryAddr]*MemoryTransport

	// Drop, if set, is consulted for every datagram in flight; returning
	// true discards it silently, simulating loss. src/dst are the
	// endpoints' addresses and b is the whole datagram, header included.
	Drop func(src, dst MemoryAddr, b []byte) bool

	// Reorder, if set, is consulted for every datagram Drop let through.
	// It receives the number of datagrams already queued in dst's inbox
	// and returns the index at which to insert this one, letting tests
	// force deterministic out-of-order delivery (e.g. return 0 to deliver
	// a datagram ahead of everything still queued). A returned index is
	// clamped to [0, pending]; a nil Reorder appends normally.
	Reorder func(src, dst MemoryAddr, b []byte, pending int) int
}

// NewMemoryNetwork returns an empty network with no loss.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{endpoints: make(map[MemoryAddr]*MemoryTransport)}
}

// NewEndpoint registers and returns a new Transmitter bound to addr.
func (n *MemoryNetwork) NewEndpoint(addr MemoryAddr) *MemoryTransport {
	t := &MemoryTransport{net: n, addr: addr}
	n.mu.Lock()
	n.endpoints[addr] = t
	n.mu.Unlock()
	return t
}

func (n *MemoryNetwork) deliver(src, dst MemoryAddr, b []byte) {
	n.mu.Lock()
	drop := n.Drop
	reorder := n.Reorder
	to, ok := n.endpoints[dst]
	n.mu.Unlock()
	if !ok {
		return
	}
	if drop != nil && drop(src, dst, b) {
		return
	}
	cp := make([]byte, len(b))
	copy(cp, b)

	to.mu.Lock()
	defer to.mu.Unlock()
	idx := len(to.inbox)
	if reorder != nil {
		idx = reorder(src, dst, cp, len(to.inbox))
		if idx < 0 {
			idx = 0
		}
		if idx > len(to.inbox) {
			idx = len(to.inbox)
		}
	}
	to.inbox = append(to.inbox, Datagram{})
	copy(to.inbox[idx+1:], to.inbox[idx:])
	to.inbox[idx] = Datagram{Bytes: cp, Src: src}
}

// MemoryTransport is an in-process Transmitter over a MemoryNetwork.
type MemoryTransport struct {
	net  *MemoryNetwork
	addr MemoryAddr

	mu    sync.Mutex
	inbox []Datagram
}

func (t *MemoryTransport) SendTo(b []byte, addr net.Addr) (int, error) {
	dst, ok := addr.(MemoryAddr)
	if !ok {
		return 0, ErrInvalidAddr
	}
	t.net.deliver(t.addr, dst, b)
	return len(b), nil
}

func (t *MemoryTransport) TryRecvFrom(buf []byte) (int, net.Addr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return 0, nil, ErrNoPending
	}
	dgram := t.inbox[0]
	t.inbox = t.inbox[1:]
	n := copy(buf, dgram.Bytes)
	return n, dgram.Src, nil
}

func (t *MemoryTransport) LocalAddr() net.Addr { return t.addr }

func (t *MemoryTransport) Close() error {
	t.net.mu.Lock()
	delete(t.net.endpoints, t.addr)
	t.net.mu.Unlock()
	return nil
}
