package session

import (
	"errors"

	"go.uber.org/zap"

	"github.com/jdowell/racetype/internal/protocol"
	"github.com/jdowell/racetype/internal/race"
)

// handleGuestFrame applies one host message to the local replica. A guest
// never relays; it only mutates local state. Anything malformed is dropped.
func (s *Session) handleGuestFrame(env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindWelcome:
		var w protocol.Welcome
		if err := protocol.DecodePayload(env, &w); err != nil || !validSlot(w.Slot) {
			return
		}
		if !s.joined {
			s.joined = true
			s.resetTimers() // cancels the join timeout
		}
		s.slot = w.Slot
		s.roomCode = w.RoomCode
		s.adoptRoster(w.Players)
		s.emit(RosterChanged{Players: s.snapshot()})

	case protocol.KindPlayerJoined:
		var pj protocol.PlayerJoined
		if err := protocol.DecodePayload(env, &pj); err != nil || !validSlot(pj.Slot) || pj.Player == nil {
			return
		}
		s.players[pj.Slot] = pj.Player
		s.emit(RosterChanged{Players: s.snapshot()})

	case protocol.KindPlayerLeft:
		var pl protocol.PlayerLeft
		if err := protocol.DecodePayload(env, &pl); err != nil || !validSlot(pl.Slot) {
			return
		}
		s.players[pl.Slot] = nil
		s.emit(RosterChanged{Players: s.snapshot()})

	case protocol.KindPlayerUpdate:
		var pu protocol.PlayerUpdate
		if err := protocol.DecodePayload(env, &pu); err != nil || !validSlot(pu.Slot) || pu.Player == nil {
			return
		}
		s.players[pu.Slot] = pu.Player
		s.emit(RosterChanged{Players: s.snapshot()})

	case protocol.KindStartRace:
		var sr protocol.StartRace
		if err := protocol.DecodePayload(env, &sr); err != nil || sr.Text == "" {
			return
		}
		s.adoptRoster(sr.Players)
		s.prepareRace(sr.Text)

	case protocol.KindProgress:
		var prog protocol.Progress
		if err := protocol.DecodePayload(env, &prog); err != nil || !validSlot(prog.Slot) {
			return
		}
		p := s.players[prog.Slot]
		if p == nil || s.current == nil {
			return
		}
		p.Progress = prog.Progress
		p.WPM = prog.WPM
		p.Accuracy = prog.Accuracy
		s.emit(TrackChanged{Players: s.snapshot()})

	case protocol.KindFinished:
		var fin protocol.Finished
		if err := protocol.DecodePayload(env, &fin); err != nil || !validSlot(fin.Slot) {
			return
		}
		p := s.players[fin.Slot]
		if p == nil || p.Finished || s.current == nil {
			return
		}
		race.Finish(p, fin.Rank, fin.WPM, fin.Accuracy, false)
		s.current.ObserveRank(fin.Rank)
		s.emit(TrackChanged{Players: s.snapshot()})

	case protocol.KindTimeout:
		var to protocol.Timeout
		if err := protocol.DecodePayload(env, &to); err != nil || !validSlot(to.Slot) {
			return
		}
		p := s.players[to.Slot]
		if p == nil || p.Finished || s.current == nil {
			return
		}
		race.Finish(p, s.current.NextRank(), to.WPM, 0, true)
		s.emit(TrackChanged{Players: s.snapshot()})

	case protocol.KindEndRace:
		var er protocol.EndRace
		if err := protocol.DecodePayload(env, &er); err != nil {
			return
		}
		s.applyEndRace(er.Players)

	case protocol.KindError:
		var em protocol.Error
		if err := protocol.DecodePayload(env, &em); err != nil {
			return
		}
		if em.Message == "" {
			em.Message = "session error"
		}
		s.fail(errors.New(em.Message))

	default:
		s.log.Debug("dropping unexpected frame", zap.String("kind", string(env.Kind)))
	}
}

// adoptRoster replaces the local roster wholesale with a snapshot from the
// host. Snapshots may be full (nulls included) or compact.
func (s *Session) adoptRoster(players []*race.Player) {
	for i := range s.players {
		s.players[i] = nil
	}
	for _, p := range players {
		if p != nil && validSlot(p.Slot) {
			s.players[p.Slot] = p
		}
	}
}

// applyEndRace finalizes every slot from the host's snapshot. The local slot
// is force-finished even if its own timer is skewed, so all nodes converge.
func (s *Session) applyEndRace(final []*race.Player) {
	if s.current == nil || s.phase == race.PhaseFinished {
		return
	}
	for _, fp := range final {
		if fp == nil || !validSlot(fp.Slot) {
			continue
		}
		p := s.players[fp.Slot]
		if p == nil {
			continue
		}
		p.Progress = fp.Progress
		p.WPM = fp.WPM
		p.Accuracy = fp.Accuracy
		p.FinishRank = fp.FinishRank
		p.TimedOut = fp.TimedOut
		p.Finished = true
	}
	if me := s.me(); me != nil && !me.Finished {
		me.Finished = true
		me.TimedOut = true
	}

	s.resetTimers()
	s.phase = race.PhaseFinished
	s.emit(RaceResult{Standings: race.Standings(s.players[:])})
	s.emit(PhaseChanged{Phase: race.PhaseFinished})
	s.emit(TrackChanged{Players: s.snapshot()})
}
