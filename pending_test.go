package relnet_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"relnet"
	"relnet/internal/transport"
	"relnet/internal/wire"
)

func TestE5RejectedPendingConnectionReportsRejected(t *testing.T) {
	network := transport.NewMemoryNetwork()
	serverT := network.NewEndpoint("server")
	clientT := network.NewEndpoint("client")
	clock := newFakeClock()

	listener := relnet.NewListener[stringParcel, *stringParcel](serverT, clock.Now, nil)
	pending, err := relnet.Connect[stringParcel, *stringParcel](
		clientT, transport.MemoryAddr("server"), nil, clock.Now, nil)
	require.NoError(t, err)

	_, err = listener.TryAccept(func(addr net.Addr, payload []byte) (relnet.Decision, string) {
		return relnet.Reject, "server is full"
	})
	require.ErrorIs(t, err, relnet.ErrPredicateFail)

	_, err = pending.TryPromote()
	require.ErrorIs(t, err, relnet.ErrRejected)

	var rejErr *relnet.PendingConnectionError
	require.ErrorAs(t, err, &rejErr)
	require.Equal(t, "server is full", rejErr.Reason)
}

func TestE6HandshakeTimeoutKeepsRetryingWithoutAutoFail(t *testing.T) {
	network := transport.NewMemoryNetwork()
	clientT := network.NewEndpoint("client")
	clock := newFakeClock()

	// Server is down: nothing is registered at "server", so every
	// request is simply dropped by the network.
	pending, err := relnet.Connect[stringParcel, *stringParcel](
		clientT, transport.MemoryAddr("server"), []byte("hi"), clock.Now, nil)
	require.NoError(t, err)

	for i := 0; i < 40; i++ {
		clock.Advance(relnet.ResyncPeriod / 2)
		pending.Sync()
		_, err := pending.TryPromote()
		require.ErrorIs(t, err, relnet.ErrNoAnswer)
	}
	// total elapsed now well past relnet.Timeout; try_promote still just
	// reports NoAnswer, matching spec.md E6: the pending connection does
	// not auto-fail, the caller decides whether to give up.
}

func TestHandshakeUniqueness(t *testing.T) {
	network := transport.NewMemoryNetwork()
	serverT := network.NewEndpoint("server")
	clientT := network.NewEndpoint("client")
	clock := newFakeClock()

	pending, err := relnet.Connect[stringParcel, *stringParcel](
		clientT, transport.MemoryAddr("server"), []byte("hi"), clock.Now, nil)
	require.NoError(t, err)

	// Craft an accept datagram for a handshake id that is NOT this
	// pending connection's, as if a reply meant for a different client
	// had been misdelivered.
	h := wire.AcceptConnection(0xDEADBEEF, 7)
	buf := make([]byte, wire.HeaderByteCount)
	require.NoError(t, wire.WriteHeader(buf, h))
	if _, err := serverT.SendTo(buf, transport.MemoryAddr("client")); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	_, err = pending.TryPromote()
	require.ErrorIs(t, err, relnet.ErrInvalidAnswer)
}
