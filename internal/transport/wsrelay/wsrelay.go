// Package wsrelay implements transport.Network on top of a relay daemon. The
// endpoint holds one websocket to the relay and demultiplexes virtual
// connections on it by remote id.
package wsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/jdowell/racetype/internal/relay"
	"github.com/jdowell/racetype/internal/transport"
)

const writeTimeout = 5 * time.Second

var errClosed = errors.New("wsrelay: connection closed")

type Network struct {
	relayURL string
	log      *zap.Logger
}

// New builds a Network dialing the given relay websocket URL
// (e.g. ws://localhost:9000/ws).
func New(relayURL string, log *zap.Logger) *Network {
	return &Network{relayURL: relayURL, log: log}
}

func (n *Network) Listen(ctx context.Context, localID string, _ transport.Config) (transport.Endpoint, error) {
	u := n.relayURL + "?id=" + url.QueryEscape(localID)
	ws, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, &transport.Error{Kind: transport.KindUnknown, ID: localID, Err: err}
	}

	// The relay answers registration with OPEN or an unavailable-id ERROR
	// before anything else.
	_, data, err := ws.Read(ctx)
	if err != nil {
		ws.Close(websocket.StatusNormalClosure, "")
		return nil, &transport.Error{Kind: transport.KindUnknown, ID: localID, Err: err}
	}
	var f relay.Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != relay.FrameOpen {
		ws.Close(websocket.StatusNormalClosure, "")
		if f.Type == relay.FrameError && f.Error == relay.ErrUnavailableID {
			return nil, &transport.Error{Kind: transport.KindUnavailableID, ID: localID}
		}
		return nil, &transport.Error{Kind: transport.KindUnknown, ID: localID, Err: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	ep := &endpoint{
		id:     localID,
		log:    n.log,
		ws:     ws,
		accept: make(chan transport.Conn, 8),
		closed: make(chan struct{}),
		conns:  make(map[string]*conn),
		dials:  make(map[string]chan dialResult),
		ctx:    runCtx,
		cancel: cancel,
	}
	go ep.readLoop()
	return ep, nil
}

type dialResult struct {
	conn *conn
	err  error
}

type endpoint struct {
	id     string
	log    *zap.Logger
	ws     *websocket.Conn
	accept chan transport.Conn
	closed chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu    sync.Mutex
	conns map[string]*conn
	dials map[string]chan dialResult
	done  bool
}

func (e *endpoint) ID() string                    { return e.id }
func (e *endpoint) Accept() <-chan transport.Conn { return e.accept }

func (e *endpoint) Dial(ctx context.Context, remoteID string) (transport.Conn, error) {
	result := make(chan dialResult, 1)
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return nil, &transport.Error{Kind: transport.KindUnknown, ID: remoteID, Err: errClosed}
	}
	e.dials[remoteID] = result
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.dials, remoteID)
		e.mu.Unlock()
	}()

	if err := e.write(relay.Frame{Type: relay.FrameConnect, Dst: remoteID}); err != nil {
		return nil, &transport.Error{Kind: transport.KindUnknown, ID: remoteID, Err: err}
	}

	select {
	case res := <-result:
		return res.conn, res.err
	case <-e.closed:
		return nil, &transport.Error{Kind: transport.KindUnknown, ID: remoteID, Err: errClosed}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *endpoint) readLoop() {
	for {
		_, data, err := e.ws.Read(e.ctx)
		if err != nil {
			e.shutdown(err)
			return
		}
		var f relay.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		e.handle(f)
	}
}

func (e *endpoint) handle(f relay.Frame) {
	switch f.Type {
	case relay.FrameConnect:
		c := e.newConn(f.Src)
		if c == nil {
			return
		}
		if err := e.write(relay.Frame{Type: relay.FrameAccept, Dst: f.Src}); err != nil {
			return
		}
		select {
		case e.accept <- c:
		default:
			e.log.Warn("accept backlog full, rejecting peer", zap.String("peer", f.Src))
			_ = c.Close()
		}

	case relay.FrameAccept:
		e.mu.Lock()
		result := e.dials[f.Src]
		e.mu.Unlock()
		if result == nil {
			return
		}
		c := e.newConn(f.Src)
		if c == nil {
			return
		}
		result <- dialResult{conn: c}

	case relay.FrameData:
		e.mu.Lock()
		c := e.conns[f.Src]
		e.mu.Unlock()
		if c == nil {
			return
		}
		select {
		case c.in <- f.Payload:
		case <-c.done:
		}

	case relay.FrameClose:
		e.mu.Lock()
		c := e.conns[f.Src]
		delete(e.conns, f.Src)
		e.mu.Unlock()
		if c != nil {
			c.finish(nil)
		}

	case relay.FrameError:
		e.mu.Lock()
		result := e.dials[f.Dst]
		e.mu.Unlock()
		if result != nil {
			kind := transport.KindUnknown
			if f.Error == relay.ErrPeerUnavailable {
				kind = transport.KindPeerUnavailable
			}
			result <- dialResult{err: &transport.Error{Kind: kind, ID: f.Dst}}
		}
	}
}

// newConn registers a virtual connection for a remote id. At most one
// connection per remote exists on an endpoint.
func (e *endpoint) newConn(remote string) *conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return nil
	}
	if existing := e.conns[remote]; existing != nil {
		return existing
	}
	c := &conn{
		ep:     e,
		remote: remote,
		in:     make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	e.conns[remote] = c
	return c
}

func (e *endpoint) write(f relay.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.ctx, writeTimeout)
	defer cancel()
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.ws.Write(ctx, websocket.MessageText, payload)
}

// shutdown tears down the endpoint after the relay link fails or Close is
// called. Every owned connection and pending dial is released.
func (e *endpoint) shutdown(err error) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.done = true
	conns := e.conns
	e.conns = map[string]*conn{}
	e.mu.Unlock()

	close(e.closed)
	e.cancel()
	for _, c := range conns {
		c.finish(err)
	}
	_ = e.ws.Close(websocket.StatusNormalClosure, "bye")
}

func (e *endpoint) Close() error {
	e.shutdown(nil)
	return nil
}

type conn struct {
	ep     *endpoint
	remote string
	in     chan []byte
	done   chan struct{}
	once   sync.Once
	err    error
}

func (c *conn) RemoteID() string      { return c.remote }
func (c *conn) Recv() <-chan []byte   { return c.in }
func (c *conn) Done() <-chan struct{} { return c.done }
func (c *conn) Err() error            { return c.err }

func (c *conn) Send(data []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	return c.ep.write(relay.Frame{Type: relay.FrameData, Dst: c.remote, Payload: data})
}

func (c *conn) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *conn) Close() error {
	_ = c.ep.write(relay.Frame{Type: relay.FrameClose, Dst: c.remote})
	c.ep.mu.Lock()
	if c.ep.conns[c.remote] == c {
		delete(c.ep.conns, c.remote)
	}
	c.ep.mu.Unlock()
	c.finish(nil)
	return nil
}
