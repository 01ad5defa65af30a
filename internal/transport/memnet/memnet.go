// Package memnet is an in-process transport.Network. It gives tests the full
// rendezvous lifecycle, including id collisions and dialing unknown peers,
// without any real networking.
package memnet

import (
	"context"
	"errors"
	"sync"

	"github.com/jdowell/racetype/internal/transport"
)

var errClosed = errors.New("memnet: connection closed")

type Net struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
}

func New() *Net {
	return &Net{endpoints: make(map[string]*endpoint)}
}

func (n *Net) Listen(ctx context.Context, localID string, _ transport.Config) (transport.Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, taken := n.endpoints[localID]; taken {
		return nil, &transport.Error{Kind: transport.KindUnavailableID, ID: localID}
	}
	ep := &endpoint{
		net:    n,
		id:     localID,
		accept: make(chan transport.Conn, 8),
		closed: make(chan struct{}),
	}
	n.endpoints[localID] = ep
	return ep, nil
}

type endpoint struct {
	net    *Net
	id     string
	accept chan transport.Conn
	closed chan struct{}

	mu    sync.Mutex
	conns []*conn
	done  bool
}

func (e *endpoint) ID() string                    { return e.id }
func (e *endpoint) Accept() <-chan transport.Conn { return e.accept }

func (e *endpoint) Dial(ctx context.Context, remoteID string) (transport.Conn, error) {
	e.net.mu.Lock()
	remote := e.net.endpoints[remoteID]
	e.net.mu.Unlock()
	if remote == nil {
		return nil, &transport.Error{Kind: transport.KindPeerUnavailable, ID: remoteID}
	}

	local, far := pair(e.id, remoteID)
	if !e.track(local) || !remote.track(far) {
		_ = local.Close()
		return nil, &transport.Error{Kind: transport.KindPeerUnavailable, ID: remoteID}
	}

	select {
	case remote.accept <- far:
	case <-remote.closed:
		return nil, &transport.Error{Kind: transport.KindPeerUnavailable, ID: remoteID}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return local, nil
}

func (e *endpoint) track(c *conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return false
	}
	e.conns = append(e.conns, c)
	return true
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return nil
	}
	e.done = true
	conns := e.conns
	e.conns = nil
	e.mu.Unlock()

	e.net.mu.Lock()
	delete(e.net.endpoints, e.id)
	e.net.mu.Unlock()

	close(e.closed)
	for _, c := range conns {
		_ = c.Close()
	}
	return nil
}

// pair builds the two halves of a pipe: dialer's conn and the accepted conn.
func pair(dialerID, targetID string) (*conn, *conn) {
	a := &conn{remote: targetID, in: make(chan []byte, 64), done: make(chan struct{})}
	b := &conn{remote: dialerID, in: make(chan []byte, 64), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

type conn struct {
	remote string
	in     chan []byte
	peer   *conn
	done   chan struct{}
	once   sync.Once
	err    error
}

func (c *conn) RemoteID() string      { return c.remote }
func (c *conn) Recv() <-chan []byte   { return c.in }
func (c *conn) Done() <-chan struct{} { return c.done }
func (c *conn) Err() error            { return c.err }

func (c *conn) Send(data []byte) error {
	cp := append([]byte(nil), data...)
	select {
	case <-c.done:
		return errClosed
	case <-c.peer.done:
		return errClosed
	case c.peer.in <- cp:
		return nil
	}
}

func (c *conn) Close() error {
	c.once.Do(func() { close(c.done) })
	c.peer.once.Do(func() { close(c.peer.done) })
	return nil
}
