package session

import (
	"github.com/jdowell/racetype/internal/race"
	"github.com/jdowell/racetype/internal/transport"
)

// sessionMsg is anything the loop goroutine consumes. All session state is
// mutated only while handling one of these, so no locking exists anywhere in
// this package.
type sessionMsg interface{ isSessionMsg() }

// inboundConn is a transport-level connection the host endpoint accepted.
type inboundConn struct{ conn transport.Conn }

// peerFrame is one raw message received from a peer connection.
type peerFrame struct {
	peerID string
	data   []byte
}

type peerClosed struct {
	peerID string
	err    error
}

// rejectDone fires after the room-full grace delay so the rejection message
// flushes before teardown.
type rejectDone struct{ conn transport.Conn }

// Timer messages carry the generation they were armed under; fires from a
// finished phase are dropped.
type countdownTick struct{ gen int }
type raceTick struct{ gen int }
type joinTimedOut struct{ gen int }

// User intents.
type setProfile struct {
	name    string
	variant string
	color   string
}
type startRace struct{}
type playAgain struct{}
type typedUpdate struct{ typed string }
type leave struct{}

// getState reflects internal state without data races (test and CLI use).
type getState struct{ reply chan View }

func (inboundConn) isSessionMsg()   {}
func (peerFrame) isSessionMsg()     {}
func (peerClosed) isSessionMsg()    {}
func (rejectDone) isSessionMsg()    {}
func (countdownTick) isSessionMsg() {}
func (raceTick) isSessionMsg()      {}
func (joinTimedOut) isSessionMsg()  {}
func (setProfile) isSessionMsg()    {}
func (startRace) isSessionMsg()     {}
func (playAgain) isSessionMsg()     {}
func (typedUpdate) isSessionMsg()   {}
func (leave) isSessionMsg()         {}
func (getState) isSessionMsg()      {}

// View is a copy of the session state at one point in time.
type View struct {
	Role          Role
	Phase         race.Phase
	RoomCode      string
	Slot          int
	Players       []*race.Player // length race.MaxPlayers, nil = empty slot
	Text          string
	TimeLimit     int
	Remaining     int
	FinishedCount int
	GuestConns    int
}
