// Package relay implements the rendezvous daemon peers use to find each other
// and exchange session traffic. A peer registers the id it wants to be
// reachable under; frames addressed to another id are forwarded verbatim.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type Server struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
}

func NewServer(log *zap.Logger) *Server {
	return &Server{
		log:     log,
		clients: make(map[string]*client),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

type client struct {
	id   string
	send chan Frame
	done chan struct{}
	// peers this client has exchanged traffic with; each gets a CLOSE when
	// this client goes away.
	peers map[string]bool
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	c := &client{id: id, send: make(chan Frame, 32), done: make(chan struct{}), peers: make(map[string]bool)}
	if !s.register(c) {
		s.log.Info("id collision", zap.String("id", id))
		writeFrame(r.Context(), conn, Frame{Type: FrameError, Dst: id, Error: ErrUnavailableID})
		return
	}
	defer s.unregister(c)
	s.log.Info("peer registered", zap.String("id", id))

	// Writer goroutine; the reader loop below owns the request context.
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for {
			select {
			case f := <-c.send:
				writeFrame(writeCtx, conn, f)
			case <-c.done:
				return
			}
		}
	}()

	writeFrame(r.Context(), conn, Frame{Type: FrameOpen, Src: id})

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		s.route(c, f)
	}
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.clients[c.id]; taken {
		return false
	}
	s.clients[c.id] = c
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	var peers []*client
	for pid := range c.peers {
		if p := s.clients[pid]; p != nil {
			peers = append(peers, p)
		}
	}
	s.mu.Unlock()

	close(c.done)
	for _, p := range peers {
		p.deliver(Frame{Type: FrameClose, Src: c.id})
	}
	s.log.Info("peer gone", zap.String("id", c.id))
}

// route forwards a client frame to its destination, stamping the sender.
func (s *Server) route(from *client, f Frame) {
	switch f.Type {
	case FrameConnect, FrameAccept, FrameData, FrameClose:
	default:
		return
	}
	if f.Dst == "" || f.Dst == from.id {
		return
	}

	s.mu.Lock()
	to := s.clients[f.Dst]
	if to != nil {
		from.peers[f.Dst] = true
		to.peers[from.id] = true
	}
	s.mu.Unlock()

	if to == nil {
		if f.Type == FrameConnect {
			from.deliver(Frame{Type: FrameError, Dst: f.Dst, Error: ErrPeerUnavailable})
		}
		return
	}
	f.Src = from.id
	to.deliver(f)
}

func (c *client) deliver(f Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		// slow client, drop the frame
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
