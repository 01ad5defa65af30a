// Package transport abstracts the rendezvous network: one side publishes an
// id and listens, the other dials that id, and both ends get a best-effort
// reliable-ordered message pipe with explicit open/close/error lifecycle.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies the transport failures the session layer must tell apart.
type Kind string

const (
	// KindPeerUnavailable means the dialed id is not registered anywhere:
	// a wrong or stale room code.
	KindPeerUnavailable Kind = "peer-unavailable"
	// KindUnavailableID means the local id is already taken and the caller
	// should regenerate its identity and retry.
	KindUnavailableID Kind = "unavailable-id"
	KindUnknown       Kind = "unknown"
)

type Error struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s (%s): %v", e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("transport: %s (%s)", e.Kind, e.ID)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind, defaulting to unknown.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// Config carries transport tuning the core treats as opaque, notably the
// NAT-traversal server list handed to the underlying network.
type Config struct {
	ICEServers []string
}

// Network opens local endpoints. Listen fails with KindUnavailableID when the
// requested id is already registered.
type Network interface {
	Listen(ctx context.Context, localID string, cfg Config) (Endpoint, error)
}

// Endpoint is one bound local identity. Closing it releases every connection
// and pending operation it owns.
type Endpoint interface {
	ID() string
	// Accept yields inbound connections until the endpoint closes.
	Accept() <-chan Conn
	// Dial connects to a remote id, blocking until the link is open.
	Dial(ctx context.Context, remoteID string) (Conn, error)
	Close() error
}

// Conn is an open reliable-ordered message pipe to one peer. Receivers select
// on Recv together with Done; Err reports the cause once Done is closed, nil
// for a clean close.
type Conn interface {
	RemoteID() string
	Send(data []byte) error
	Recv() <-chan []byte
	Done() <-chan struct{}
	Err() error
	Close() error
}
