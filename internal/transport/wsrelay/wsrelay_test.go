package wsrelay_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jdowell/racetype/internal/relay"
	"github.com/jdowell/racetype/internal/transport"
	"github.com/jdowell/racetype/internal/transport/wsrelay"
)

func newRelay(t *testing.T) *wsrelay.Network {
	t.Helper()
	srv := httptest.NewServer(relay.NewServer(zap.NewNop()).Routes())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return wsrelay.New(url, zap.NewNop())
}

func recvBytes(t *testing.T, c transport.Conn, within time.Duration) []byte {
	t.Helper()
	select {
	case data := <-c.Recv():
		return data
	case <-c.Done():
		t.Fatalf("connection closed while waiting for data: %v", c.Err())
	case <-time.After(within):
		t.Fatalf("timed out waiting for data")
	}
	return nil
}

func TestRegisterCollision(t *testing.T) {
	n := newRelay(t)
	ctx := context.Background()

	ep, err := n.Listen(ctx, "same-id", transport.Config{})
	if err != nil {
		t.Fatalf("first listen: %v", err)
	}
	defer ep.Close()

	_, err = n.Listen(ctx, "same-id", transport.Config{})
	if transport.KindOf(err) != transport.KindUnavailableID {
		t.Fatalf("want unavailable-id, got %v", err)
	}
}

func TestDialUnknownPeer(t *testing.T) {
	n := newRelay(t)
	ep, err := n.Listen(context.Background(), "alone", transport.Config{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ep.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ep.Dial(ctx, "missing")
	if transport.KindOf(err) != transport.KindPeerUnavailable {
		t.Fatalf("want peer-unavailable, got %v", err)
	}
}

func TestDataExchange(t *testing.T) {
	n := newRelay(t)
	ctx := context.Background()

	a, err := n.Listen(ctx, "alice", transport.Config{})
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	defer a.Close()
	b, err := n.Listen(ctx, "bob", transport.Config{})
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	defer b.Close()

	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	toB, err := a.Dial(dialCtx, "bob")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var fromA transport.Conn
	select {
	case fromA = <-b.Accept():
	case <-time.After(2 * time.Second):
		t.Fatalf("no inbound connection at bob")
	}
	if fromA.RemoteID() != "alice" {
		t.Fatalf("inbound remote = %q", fromA.RemoteID())
	}

	if err := toB.Send([]byte(`{"type":"PING"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := string(recvBytes(t, fromA, 2*time.Second)); got != `{"type":"PING"}` {
		t.Fatalf("got %q", got)
	}

	if err := fromA.Send([]byte("reply")); err != nil {
		t.Fatalf("send reply: %v", err)
	}
	if got := string(recvBytes(t, toB, 2*time.Second)); got != "reply" {
		t.Fatalf("got %q", got)
	}
}

func TestPeerDisconnectPropagates(t *testing.T) {
	n := newRelay(t)
	ctx := context.Background()

	a, err := n.Listen(ctx, "host-peer", transport.Config{})
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	defer a.Close()
	b, err := n.Listen(ctx, "guest-peer", transport.Config{})
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, err := b.Dial(dialCtx, "host-peer")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	accepted := <-a.Accept()

	// Dropping the whole guest endpoint must surface as a close on the
	// host's side of the link.
	_ = b.Close()
	select {
	case <-accepted.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("peer disconnect not observed")
	}
	_ = conn
}
