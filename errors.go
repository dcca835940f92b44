package relnet

import "github.com/pkg/errors"

// Transport-level sentinels (spec.md §7, "Transport").
var (
	ErrIo        = errors.New("relnet: transport io error")
	ErrNoPending = errors.New("relnet: no pending datagram")
	ErrMalformed = errors.New("relnet: malformed datagram")
)

// Connection-level sentinels.
var (
	ErrNoPendingParcels = errors.New("relnet: no pending parcels")
	ErrInvalidState     = errors.New("relnet: connection is not open")
)

// Connect-level sentinels.
var (
	ErrPayloadTooLarge = errors.New("relnet: handshake payload too large")
)

// PendingConnection-level sentinels.
var (
	ErrNoAnswer      = errors.New("relnet: no answer yet")
	ErrInvalidAnswer = errors.New("relnet: datagram did not match the pending handshake")
	ErrRejected      = errors.New("relnet: connection request rejected")
)

// PendingConnectionError wraps ErrRejected with the reason string, if any,
// the listener's predicate chose to echo back in the reject datagram's
// stream region (spec.md's original_source supplement). Reason is empty
// when the peer sent no reason.
type PendingConnectionError struct {
	Err    error
	Reason string
}

func (e *PendingConnectionError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Reason
}

func (e *PendingConnectionError) Unwrap() error { return e.Err }

// Accept-level sentinels.
var (
	ErrInvalidRequest      = errors.New("relnet: malformed or missing connection request")
	ErrPredicateFail       = errors.New("relnet: admission predicate did not allow the request")
	ErrNoPendingConnections = errors.New("relnet: no pending connection requests")
)

// Allocator-level sentinel: TryAccept returns it when internal/idpool has
// no connection id left to hand out. It is a distinct value from
// idpool.ErrOutOfIDs.
var ErrOutOfIDs = errors.New("relnet: out of connection ids")
