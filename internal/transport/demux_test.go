package transport

import "testing"

func TestMapDemuxConnectionlessAllowedByDefault(t *testing.T) {
	d := NewMapDemux()
	if !d.IsAllowed(0) {
		t.Fatal("expected key 0 to be allowed by default")
	}
	if d.IsAllowed(5) {
		t.Fatal("expected key 5 to be blocked by default")
	}
}

func TestMapDemuxPushRequiresAllow(t *testing.T) {
	d := NewMapDemux()
	d.Push(5, Datagram{Bytes: []byte("x")})

	var got []Datagram
	d.Process(5, func(dg Datagram) { got = append(got, dg) })
	if len(got) != 0 {
		t.Fatalf("expected push to a blocked key to be dropped, got %d", len(got))
	}

	d.Allow(5)
	d.Push(5, Datagram{Bytes: []byte("x")})
	d.Process(5, func(dg Datagram) { got = append(got, dg) })
	if len(got) != 1 {
		t.Fatalf("expected 1 buffered datagram, got %d", len(got))
	}
}

func TestMapDemuxProcessClearsBuffer(t *testing.T) {
	d := NewMapDemux()
	d.Allow(1)
	d.Push(1, Datagram{Bytes: []byte("a")})
	d.Push(1, Datagram{Bytes: []byte("b")})

	var first []Datagram
	d.Process(1, func(dg Datagram) { first = append(first, dg) })
	if len(first) != 2 {
		t.Fatalf("expected 2 datagrams, got %d", len(first))
	}

	var second []Datagram
	d.Process(1, func(dg Datagram) { second = append(second, dg) })
	if len(second) != 0 {
		t.Fatalf("expected empty buffer on re-process, got %d", len(second))
	}
}

func TestMapDemuxBlockClearsQueue(t *testing.T) {
	d := NewMapDemux()
	d.Allow(2)
	d.Push(2, Datagram{Bytes: []byte("a")})
	d.Block(2)

	if d.IsAllowed(2) {
		t.Fatal("expected key 2 to be blocked")
	}
	var got []Datagram
	d.Process(2, func(dg Datagram) { got = append(got, dg) })
	if len(got) != 0 {
		t.Fatalf("expected blocked key's queue to be cleared, got %d", len(got))
	}
}
