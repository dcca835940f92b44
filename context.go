package relnet

import (
	"encoding/binary"

	"relnet/internal/transport"
	"relnet/internal/wire"
)

// pump drains every datagram currently buffered by transmitter into
// demux, keyed by each datagram's raw connection_id field. It is the
// one place that reads the shared transmitter; both a Connection's sync
// and a ConnectionListener's TryAccept call it before consulting their
// own demux key; spec.md §5 calls for the (transmitter, demux) pair to
// be a single shared resource with no fine-grained locking, which a
// single-threaded cooperative caller satisfies without one.
func pump(transmitter transport.Transmitter, demux transport.Demux) {
	buf := make([]byte, wire.MaxFrameLength)
	for {
		n, addr, err := transmitter.TryRecvFrom(buf)
		if err != nil {
			return
		}
		if n < 2 {
			continue
		}
		connID := transport.ConnectionID(binary.LittleEndian.Uint16(buf[:2]))
		if !demux.IsAllowed(connID) {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		demux.Push(connID, transport.Datagram{Bytes: data, Src: addr})
	}
}

// This file holds the stateless packet-building helpers of spec component
// J: packing queued parcels and stream bytes into one datagram's payload,
// and splitting a received payload back apart. Connection (component G)
// owns the buffers; these functions never touch connection state
// directly, so they can be exercised and reasoned about independently.

// encodeParcelItem prefixes raw with its 2-byte little-endian length so
// several parcels can be packed back-to-back in one datagram's parcel
// region and split apart again on the receiving side.
func encodeParcelItem(raw []byte) []byte {
	out := make([]byte, 2+len(raw))
	binary.LittleEndian.PutUint16(out, uint16(len(raw)))
	copy(out[2:], raw)
	return out
}

// splitParcelRegion splits a packed parcel region back into the raw
// (length-prefix stripped) bytes of each item it contains.
func splitParcelRegion(region []byte) ([][]byte, error) {
	var items [][]byte
	for len(region) > 0 {
		if len(region) < 2 {
			return nil, ErrMalformed
		}
		n := int(binary.LittleEndian.Uint16(region))
		region = region[2:]
		if len(region) < n {
			return nil, ErrMalformed
		}
		items = append(items, region[:n])
		region = region[n:]
	}
	return items, nil
}

// packRegion pulls already-length-prefixed items from reliable first,
// then volatile, filling up to maxLen bytes without ever splitting an
// item across datagrams. reliableTaken holds the items drawn from
// reliable, in order, so the caller can track them in `unacked` and
// re-enqueue them at the head of reliable if the datagram carrying them
// is lost. A volatile item that would not fit is discarded and packing
// stops, matching spec.md §4.G step 5.
func packRegion(reliable, volatile [][]byte, maxLen int) (region []byte, reliableTaken [][]byte, remainingReliable, remainingVolatile [][]byte) {
	remainingReliable = reliable
	remainingVolatile = volatile

	for len(remainingReliable) > 0 {
		item := remainingReliable[0]
		if len(region)+len(item) > maxLen {
			break
		}
		region = append(region, item...)
		reliableTaken = append(reliableTaken, item)
		remainingReliable = remainingReliable[1:]
	}

	for len(remainingVolatile) > 0 {
		item := remainingVolatile[0]
		if len(region)+len(item) > maxLen {
			remainingVolatile = remainingVolatile[1:]
			break
		}
		region = append(region, item...)
		remainingVolatile = remainingVolatile[1:]
	}

	return region, reliableTaken, remainingReliable, remainingVolatile
}

// packStream takes up to maxLen bytes from the front of streamOut.
func packStream(streamOut []byte, maxLen int) (region []byte, remaining []byte) {
	n := len(streamOut)
	if n > maxLen {
		n = maxLen
	}
	region = streamOut[:n]
	remaining = streamOut[n:]
	return region, remaining
}
