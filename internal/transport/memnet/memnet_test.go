package memnet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jdowell/racetype/internal/transport"
)

func recvBytes(t *testing.T, c transport.Conn, within time.Duration) []byte {
	t.Helper()
	select {
	case data := <-c.Recv():
		return data
	case <-c.Done():
		t.Fatalf("connection closed while waiting for data")
	case <-time.After(within):
		t.Fatalf("timed out waiting for data")
	}
	return nil
}

func TestListenCollision(t *testing.T) {
	n := New()
	ctx := context.Background()

	ep, err := n.Listen(ctx, "id-1", transport.Config{})
	if err != nil {
		t.Fatalf("first listen: %v", err)
	}
	defer ep.Close()

	_, err = n.Listen(ctx, "id-1", transport.Config{})
	if transport.KindOf(err) != transport.KindUnavailableID {
		t.Fatalf("want unavailable-id, got %v", err)
	}

	// The id frees up once the endpoint closes.
	ep.Close()
	ep2, err := n.Listen(ctx, "id-1", transport.Config{})
	if err != nil {
		t.Fatalf("listen after close: %v", err)
	}
	ep2.Close()
}

func TestDialUnknownPeer(t *testing.T) {
	n := New()
	ep, err := n.Listen(context.Background(), "a", transport.Config{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ep.Close()

	_, err = ep.Dial(context.Background(), "nobody")
	if transport.KindOf(err) != transport.KindPeerUnavailable {
		t.Fatalf("want peer-unavailable, got %v", err)
	}
}

func TestSendBothWays(t *testing.T) {
	n := New()
	ctx := context.Background()
	a, _ := n.Listen(ctx, "a", transport.Config{})
	b, _ := n.Listen(ctx, "b", transport.Config{})
	defer a.Close()
	defer b.Close()

	dialed, err := a.Dial(ctx, "b")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var accepted transport.Conn
	select {
	case accepted = <-b.Accept():
	case <-time.After(time.Second):
		t.Fatalf("no inbound connection")
	}

	if dialed.RemoteID() != "b" || accepted.RemoteID() != "a" {
		t.Fatalf("remote ids wrong: %q %q", dialed.RemoteID(), accepted.RemoteID())
	}

	if err := dialed.Send([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := string(recvBytes(t, accepted, time.Second)); got != "ping" {
		t.Fatalf("got %q", got)
	}
	if err := accepted.Send([]byte("pong")); err != nil {
		t.Fatalf("send back: %v", err)
	}
	if got := string(recvBytes(t, dialed, time.Second)); got != "pong" {
		t.Fatalf("got %q", got)
	}
}

func TestClosePropagates(t *testing.T) {
	n := New()
	ctx := context.Background()
	a, _ := n.Listen(ctx, "a", transport.Config{})
	b, _ := n.Listen(ctx, "b", transport.Config{})
	defer a.Close()
	defer b.Close()

	dialed, err := a.Dial(ctx, "b")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	accepted := <-b.Accept()

	_ = dialed.Close()
	select {
	case <-accepted.Done():
	case <-time.After(time.Second):
		t.Fatalf("peer close not observed")
	}
	if err := accepted.Send([]byte("x")); err == nil {
		t.Fatalf("send on closed connection must fail")
	}
}

func TestEndpointCloseClosesConns(t *testing.T) {
	n := New()
	ctx := context.Background()
	a, _ := n.Listen(ctx, "a", transport.Config{})
	b, _ := n.Listen(ctx, "b", transport.Config{})
	defer b.Close()

	dialed, err := a.Dial(ctx, "b")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = a.Close()

	select {
	case <-dialed.Done():
	case <-time.After(time.Second):
		t.Fatalf("endpoint close did not release its connections")
	}
	if !errors.Is(dialed.Send([]byte("x")), errClosed) {
		t.Fatalf("expected errClosed after endpoint close")
	}
}
