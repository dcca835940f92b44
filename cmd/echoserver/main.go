// Command echoserver is a minimal demonstration of relnet: it listens on a
// UDP socket, accepts every connection offered to it, and echoes back
// every reliable parcel and stream byte it receives.
package main

import (
	"flag"
	"net"
	"time"

	"relnet"
	"relnet/internal/transport"
	"relnet/pkg/codec"
	"relnet/pkg/logger"
)

// chatParcel is a single UTF-8 line of chat, the demo's only parcel type.
type chatParcel struct {
	Text string
}

func (p *chatParcel) MarshalCodec(w *codec.Writer) error {
	w.WriteString(p.Text)
	return nil
}

func (p *chatParcel) UnmarshalCodec(r *codec.Reader) error {
	s, err := r.ReadString()
	if err != nil {
		return err
	}
	p.Text = s
	return nil
}

func main() {
	addr := flag.String("addr", ":9422", "address to listen on")
	flag.Parse()

	logger.Banner("RELNET", "0.1")
	logger.Section("listening")

	transmitter, err := transport.ListenUDP(*addr)
	if err != nil {
		logger.Fatal("listen: %v", err)
	}
	defer transmitter.Close()
	logger.Success("listening on %s", transmitter.LocalAddr())

	listener := relnet.NewListener[chatParcel, *chatParcel](transmitter, time.Now, nil)

	for {
		conn, err := listener.TryAccept(func(addr net.Addr, payload []byte) (relnet.Decision, string) {
			logger.InfoCyan("connection request from %s: %q", addr, payload)
			return relnet.Allow, ""
		})
		switch err {
		case nil:
			logger.Success("accepted connection %d", conn.ID())
			go serve(conn)
		case relnet.ErrNoPendingConnections:
			time.Sleep(10 * time.Millisecond)
		default:
			logger.Warn("accept: %v", err)
		}
	}
}

func serve(conn *relnet.Connection[chatParcel, *chatParcel]) {
	buf := make([]byte, 4096)
	for conn.IsOpen() {
		p, _, err := conn.PopParcel()
		if err == nil {
			logger.Info("connection %d: %q", conn.ID(), p.Text)
			if err := conn.PushReliableParcel(chatParcel{Text: p.Text}); err != nil {
				logger.Warn("connection %d: echo: %v", conn.ID(), err)
			}
		}

		if n := conn.ReadFromStream(buf); n > 0 {
			_ = conn.WriteBytesToStream(buf[:n])
		}

		if err := conn.Flush(); err != nil {
			logger.Warn("connection %d: flush: %v", conn.ID(), err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	logger.Info("connection %d closed: %s", conn.ID(), conn.Status())
}
