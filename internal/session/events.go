package session

import "github.com/jdowell/racetype/internal/race"

// Event is a state-change notification for the presentation layer. Payload
// players are clones; consumers may keep them.
type Event interface{ isEvent() }

// RosterChanged reports any membership or profile change. Players has length
// race.MaxPlayers with nil for empty slots.
type RosterChanged struct{ Players []*race.Player }

// PhaseChanged reports a race phase transition. Text and TimeLimit are set
// from the countdown transition onward.
type PhaseChanged struct {
	Phase     race.Phase
	Text      string
	TimeLimit int
}

type CountdownTick struct{ Remaining int }

type TimerTick struct{ Remaining int }

// TrackChanged reports live per-slot metric updates during a race.
type TrackChanged struct{ Players []*race.Player }

// RaceResult carries the final standings once the race has converged.
type RaceResult struct{ Standings []*race.Player }

// Errored is a fatal session error; the session is shut down after emitting it.
type Errored struct{ Err error }

func (RosterChanged) isEvent() {}
func (PhaseChanged) isEvent()  {}
func (CountdownTick) isEvent() {}
func (TimerTick) isEvent()     {}
func (TrackChanged) isEvent()  {}
func (RaceResult) isEvent()    {}
func (Errored) isEvent()       {}
