package relnet_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"relnet"
	"relnet/internal/transport"
	"relnet/pkg/codec"
)

// stringParcel is the parcel type exercised by the tests below, standing
// in for an arbitrary user-defined, codec-serializable message.
type stringParcel struct {
	Value string
}

func (p *stringParcel) MarshalCodec(w *codec.Writer) error {
	w.WriteString(p.Value)
	return nil
}

func (p *stringParcel) UnmarshalCodec(r *codec.Reader) error {
	v, err := r.ReadString()
	if err != nil {
		return err
	}
	p.Value = v
	return nil
}

// fakeClock gives tests deterministic control over RESYNC_PERIOD/TIMEOUT
// driven behavior instead of sleeping real wall-clock time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type pair struct {
	client   *relnet.Connection[stringParcel, *stringParcel]
	server   *relnet.Connection[stringParcel, *stringParcel]
	listener *relnet.ConnectionListener[stringParcel, *stringParcel]
	clock    *fakeClock
	network  *transport.MemoryNetwork
}

// connectPair drives a full E1-shaped handshake over an in-memory
// network and returns both ends of the resulting connection.
func connectPair(t *testing.T, requestPayload string, decide relnet.Decision) (pair, error) {
	t.Helper()

	network := transport.NewMemoryNetwork()
	serverT := network.NewEndpoint("server")
	clientT := network.NewEndpoint("client")
	clock := newFakeClock()

	listener := relnet.NewListener[stringParcel, *stringParcel](serverT, clock.Now, nil)

	pending, err := relnet.Connect[stringParcel, *stringParcel](
		clientT, transport.MemoryAddr("server"), []byte(requestPayload), clock.Now, nil)
	require.NoError(t, err)

	serverConn, err := listener.TryAccept(func(addr net.Addr, payload []byte) (relnet.Decision, string) {
		require.Equal(t, requestPayload, string(payload))
		return decide, ""
	})
	if err != nil {
		return pair{listener: listener, clock: clock, network: network}, err
	}

	clientConn, err := pending.TryPromote()
	if err != nil {
		return pair{server: serverConn, listener: listener, clock: clock, network: network}, err
	}

	return pair{client: clientConn, server: serverConn, listener: listener, clock: clock, network: network}, nil
}
