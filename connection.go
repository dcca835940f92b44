// Package relnet implements a connection-oriented messaging layer over an
// unreliable datagram transport: reliable unordered parcels, unreliable
// volatile parcels, and a reliable ordered byte stream, multiplexed over
// one bound socket on the server side.
package relnet

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"relnet/internal/ackwindow"
	"relnet/internal/telemetry"
	"relnet/internal/transport"
	"relnet/internal/wire"
	"relnet/pkg/codec"
)

// Timing and capacity constants (spec.md §5, §9).
const (
	ResyncPeriod     = 200 * time.Millisecond
	Timeout          = 10 * ResyncPeriod
	AckWindow        = 64
	VolatileCap      = 64
	StreamReorderCap = 64
)

// Status is a connection's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusOpen
	StatusLost
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOpen:
		return "open"
	case StatusLost:
		return "lost"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParcelPtr constrains *P to be the mutable, (de)serializable half of a
// user parcel type P: P is pushed by value, *P is what Marshal/Unmarshal
// actually operate on, matching pkg/codec's pointer-receiver contract.
type ParcelPtr[P any] interface {
	*P
	codec.Marshaler
	codec.Unmarshaler
}

type inboundParcel[P any] struct {
	value   P
	prelude uint32
}

type unackedEntry struct {
	index         ackwindow.Index
	sentAt        time.Time
	reliableItems [][]byte
	streamBytes   []byte
}

// Connection is one established, bidirectional session (spec component
// G). All operations are synchronous, non-blocking, and safe for use by
// one logical caller at a time; the embedded mutex only guards against
// accidental concurrent use, not to provide a concurrency model of its
// own (spec.md §5).
type Connection[P any, PP ParcelPtr[P]] struct {
	mu sync.Mutex

	transmitter transport.Transmitter
	demux       transport.Demux
	remoteAddr  net.Addr
	id          transport.ConnectionID

	status Status

	lastSentAt time.Time
	lastRecvAt time.Time

	nextTxIndex ackwindow.Index
	unacked     []unackedEntry
	ackDirty    bool

	rxAckMask ackwindow.Mask

	inboundParcels []inboundParcel[P]
	inboundStream  []byte

	reliable  [][]byte
	volatile  [][]byte
	streamOut []byte

	streamReorder         map[ackwindow.Index][]byte
	expectStreamIndex     ackwindow.Index
	haveExpectStreamIndex bool

	metrics *telemetry.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

func newConnection[P any, PP ParcelPtr[P]](
	transmitter transport.Transmitter,
	demux transport.Demux,
	remoteAddr net.Addr,
	id transport.ConnectionID,
	nowFn func() time.Time,
	metrics *telemetry.Metrics,
) *Connection[P, PP] {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	now := nowFn()
	c := &Connection[P, PP]{
		transmitter:   transmitter,
		demux:         demux,
		remoteAddr:    remoteAddr,
		id:            id,
		status:        StatusOpen,
		lastSentAt:    now,
		lastRecvAt:    now,
		streamReorder: make(map[ackwindow.Index][]byte),
		metrics:       metrics,
		log:           logrus.WithField("connection_id", id).WithField("trace_id", uuid.NewString()),
		now:           nowFn,
	}
	metrics.ConnectionsOpen.Inc()
	return c
}

// Status reports the connection's current lifecycle state.
func (c *Connection[P, PP]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsOpen reports whether Status() == StatusOpen.
func (c *Connection[P, PP]) IsOpen() bool {
	return c.Status() == StatusOpen
}

// ID returns the connection id assigned to this connection by the
// listener (or learned from the accept datagram on the client side).
func (c *Connection[P, PP]) ID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint16(c.id)
}

// PushReliableParcel enqueues p for reliable, unordered delivery.
func (c *Connection[P, PP]) PushReliableParcel(p P) error {
	raw, err := codec.Marshal(PP(&p))
	if err != nil {
		return errors.Wrap(err, "relnet: marshal reliable parcel")
	}

	c.mu.Lock()
	if c.status != StatusOpen {
		c.mu.Unlock()
		return ErrInvalidState
	}
	wasEmpty := len(c.reliable) == 0 && len(c.streamOut) == 0
	c.reliable = append(c.reliable, encodeParcelItem(raw))
	if wasEmpty {
		_ = c.buildAndSendLocked()
	}
	c.mu.Unlock()
	return nil
}

// PushVolatileParcel appends p to the volatile queue, whose loss is
// tolerated; once VolatileCap is exceeded the oldest entries are dropped.
func (c *Connection[P, PP]) PushVolatileParcel(p P) error {
	raw, err := codec.Marshal(PP(&p))
	if err != nil {
		return errors.Wrap(err, "relnet: marshal volatile parcel")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusOpen {
		return ErrInvalidState
	}
	c.volatile = append(c.volatile, encodeParcelItem(raw))
	if len(c.volatile) > VolatileCap {
		c.volatile = c.volatile[len(c.volatile)-VolatileCap:]
	}
	return nil
}

// WriteBytesToStream appends b to the outgoing stream buffer.
func (c *Connection[P, PP]) WriteBytesToStream(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusOpen {
		return ErrInvalidState
	}
	c.streamOut = append(c.streamOut, b...)
	return nil
}

// WriteItemToStream serializes p and appends it to the outgoing stream.
func (c *Connection[P, PP]) WriteItemToStream(p P) error {
	raw, err := codec.Marshal(PP(&p))
	if err != nil {
		return errors.Wrap(err, "relnet: marshal stream item")
	}
	return c.WriteBytesToStream(raw)
}

// PopParcel pulls the oldest undelivered reliable or volatile parcel,
// syncing once if the queue is empty.
func (c *Connection[P, PP]) PopParcel() (P, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inboundParcels) == 0 {
		c.syncLocked()
	}
	if len(c.inboundParcels) == 0 {
		var zero P
		return zero, 0, ErrNoPendingParcels
	}
	item := c.inboundParcels[0]
	c.inboundParcels = c.inboundParcels[1:]
	return item.value, item.prelude, nil
}

// ReadFromStream drains up to len(buf) bytes from the inbound stream,
// syncing first to pick up anything newly arrived.
func (c *Connection[P, PP]) ReadFromStream(buf []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked()
	n := copy(buf, c.inboundStream)
	c.inboundStream = c.inboundStream[n:]
	return n
}

// PendingIncomingStreamBytes reports len(inbound_stream) without syncing.
func (c *Connection[P, PP]) PendingIncomingStreamBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inboundStream)
}

// Flush forces a datagram to be built and sent if there is any queued
// outbound data or an unsent ack update.
func (c *Connection[P, PP]) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked()
	if len(c.reliable) > 0 || len(c.volatile) > 0 || len(c.streamOut) > 0 || c.ackDirty {
		return c.buildAndSendLocked()
	}
	return nil
}

// Close sends a best-effort connection-closed datagram and transitions
// to StatusClosed. Safe to call more than once.
func (c *Connection[P, PP]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusClosed {
		return nil
	}
	h := wire.ConnectionClosed(c.id)
	h.AckPacketID = c.rxAckMask.LastIndex
	h.AckPacketMask = c.rxAckMask.Bits
	buf := make([]byte, wire.HeaderByteCount)
	if err := wire.WriteHeader(buf, h); err == nil {
		_, _ = c.transmitter.SendTo(buf, c.remoteAddr)
	}
	if c.status == StatusOpen {
		c.metrics.ConnectionsOpen.Dec()
	}
	c.status = StatusClosed
	return nil
}

func (c *Connection[P, PP]) syncLocked() {
	if c.status != StatusOpen {
		return
	}
	pump(c.transmitter, c.demux)
	c.demux.Process(c.id, func(dgram transport.Datagram) {
		c.processInboundLocked(dgram.Bytes)
	})
	c.checkRetransmitAndKeepAliveLocked()
}

func (c *Connection[P, PP]) checkRetransmitAndKeepAliveLocked() {
	if c.status != StatusOpen {
		return
	}
	now := c.now()

	if now.Sub(c.lastRecvAt) > Timeout {
		c.status = StatusLost
		c.metrics.ConnectionsOpen.Dec()
		return
	}

	if len(c.unacked) > 0 && now.Sub(c.unacked[0].sentAt) > ResyncPeriod {
		c.requeueLocked(c.unacked[0])
		c.unacked = c.unacked[1:]
		c.metrics.ParcelsRetransmitted.Inc()
	}

	if now.Sub(c.lastSentAt) > ResyncPeriod &&
		len(c.reliable) == 0 && len(c.volatile) == 0 && len(c.streamOut) == 0 && !c.ackDirty {
		_ = c.buildAndSendLocked()
	}
}

func (c *Connection[P, PP]) requeueLocked(e unackedEntry) {
	if len(e.reliableItems) > 0 {
		c.reliable = append(append([][]byte{}, e.reliableItems...), c.reliable...)
	}
	if len(e.streamBytes) > 0 {
		c.streamOut = append(append([]byte{}, e.streamBytes...), c.streamOut...)
	}
}

// buildAndSendLocked implements spec.md §4.G's build_packet.
func (c *Connection[P, PP]) buildAndSendLocked() error {
	backpressure := len(c.unacked) >= AckWindow

	hasReliable := len(c.reliable) > 0
	hasStream := len(c.streamOut) > 0
	hasVolatile := len(c.volatile) > 0

	maxPayload := wire.MaxFramePayloadByteCount

	var h wire.Header
	var parcelRegion, streamRegion []byte
	var reliableTaken [][]byte

	switch {
	case !backpressure && (hasReliable || hasStream):
		parcelRegion, reliableTaken, c.reliable, c.volatile = packRegion(c.reliable, c.volatile, maxPayload)
		streamRegion, c.streamOut = packStream(c.streamOut, maxPayload-len(parcelRegion))
		h = wire.Synchronized(len(parcelRegion), len(streamRegion))
	case hasVolatile:
		parcelRegion, _, _, c.volatile = packRegion(nil, c.volatile, maxPayload)
		h = wire.Volatile(len(parcelRegion))
	case c.now().Sub(c.lastSentAt) > ResyncPeriod/2 || c.ackDirty:
		h = wire.KeepAlive()
	default:
		if backpressure {
			c.metrics.AckWindowBackpressure.Inc()
		}
		return nil
	}

	h.ConnectionID = c.id
	h.AckPacketID = c.rxAckMask.LastIndex
	h.AckPacketMask = c.rxAckMask.Bits
	if h.Signal.IsSynchronized() {
		h.PacketID = c.nextTxIndex
	}

	buf := make([]byte, wire.HeaderByteCount+len(parcelRegion)+len(streamRegion))
	if err := wire.WriteHeader(buf, h); err != nil {
		return errors.Wrap(err, "relnet: write header")
	}
	copy(buf[wire.HeaderByteCount:], parcelRegion)
	copy(buf[wire.HeaderByteCount+len(parcelRegion):], streamRegion)

	if _, err := c.transmitter.SendTo(buf, c.remoteAddr); err != nil {
		return errors.Wrap(err, "relnet: send")
	}
	c.metrics.BytesSent.Add(float64(len(buf)))

	if h.Signal.IsSynchronized() {
		c.unacked = append(c.unacked, unackedEntry{
			index:         c.nextTxIndex,
			sentAt:        c.now(),
			reliableItems: reliableTaken,
			streamBytes:   streamRegion,
		})
		c.nextTxIndex = c.nextTxIndex.Add(1)
	}

	c.lastSentAt = c.now()
	c.ackDirty = false
	return nil
}

// processInboundLocked implements spec.md §4.G's process_inbound.
func (c *Connection[P, PP]) processInboundLocked(raw []byte) {
	if c.status != StatusOpen {
		return
	}
	h, err := wire.ReadHeader(raw)
	if err != nil {
		return
	}
	if h.ConnectionID != c.id {
		return
	}
	c.lastRecvAt = c.now()
	c.metrics.BytesReceived.Add(float64(len(raw)))

	remaining := c.unacked[:0:0]
	for _, e := range c.unacked {
		if h.Acknowledges(e.index) {
			continue
		}
		d := ackwindow.Dist(h.AckPacketID, e.index)
		if d > 64 && d <= 127 {
			c.requeueLocked(e)
			c.metrics.ParcelsRetransmitted.Inc()
			continue
		}
		remaining = append(remaining, e)
	}
	c.unacked = remaining

	if h.Signal.IsSynchronized() {
		if err := c.rxAckMask.Ack(h.PacketID); err != nil {
			return
		}
		c.ackDirty = true
	}

	if h.Signal.IsConnectionClosed() {
		c.status = StatusClosed
		c.metrics.ConnectionsOpen.Dec()
		return
	}

	parcelLen := h.Signal.ParcelByteCount()
	streamLen := h.Signal.StreamByteCount()
	if wire.HeaderByteCount+parcelLen+streamLen > len(raw) {
		return
	}
	parcelRegion := raw[wire.HeaderByteCount : wire.HeaderByteCount+parcelLen]
	streamRegion := raw[wire.HeaderByteCount+parcelLen : wire.HeaderByteCount+parcelLen+streamLen]

	if items, err := splitParcelRegion(parcelRegion); err == nil {
		for _, item := range items {
			var p P
			if _, err := codec.Unmarshal(item, PP(&p)); err == nil {
				c.inboundParcels = append(c.inboundParcels, inboundParcel[P]{value: p, prelude: h.Prelude})
			}
		}
	}

	if len(streamRegion) > 0 {
		c.appendStreamLocked(h.PacketID, streamRegion)
	}
}

func (c *Connection[P, PP]) appendStreamLocked(idx ackwindow.Index, data []byte) {
	if !c.haveExpectStreamIndex {
		c.expectStreamIndex = idx
		c.haveExpectStreamIndex = true
	}

	if idx != c.expectStreamIndex {
		d := ackwindow.Dist(idx, c.expectStreamIndex)
		if d == 0 {
			return
		}
		if d > StreamReorderCap {
			c.status = StatusLost
			c.metrics.ConnectionsOpen.Dec()
			return
		}
		c.streamReorder[idx] = data
		if len(c.streamReorder) > StreamReorderCap {
			c.status = StatusLost
			c.metrics.ConnectionsOpen.Dec()
		}
		return
	}

	c.inboundStream = append(c.inboundStream, data...)
	c.expectStreamIndex = c.expectStreamIndex.Add(1)
	for {
		next, ok := c.streamReorder[c.expectStreamIndex]
		if !ok {
			break
		}
		delete(c.streamReorder, c.expectStreamIndex)
		c.inboundStream = append(c.inboundStream, next...)
		c.expectStreamIndex = c.expectStreamIndex.Add(1)
	}
}
