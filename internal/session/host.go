package session

import (
	"go.uber.org/zap"

	"github.com/jdowell/racetype/internal/protocol"
	"github.com/jdowell/racetype/internal/race"
	"github.com/jdowell/racetype/internal/transport"
)

// handleInbound registers a freshly accepted guest connection, or rejects it
// when the room is at capacity. Slot numbers are monotonic and never reused
// within a session, so a session that has cycled through all slots is full
// even if some are vacant.
func (s *Session) handleInbound(conn transport.Conn) {
	if s.role != RoleHost {
		_ = conn.Close()
		return
	}
	if len(s.conns) >= race.MaxPlayers-1 || s.nextSlot >= race.MaxPlayers {
		s.log.Info("room full, rejecting peer", zap.String("peer", conn.RemoteID()))
		s.send(conn, protocol.KindError, protocol.Error{Message: "Room is full."})
		go func() {
			select {
			case <-s.clock.After(roomFullGrace):
				s.post(rejectDone{conn: conn})
			case <-s.ctx.Done():
				_ = conn.Close()
			}
		}()
		return
	}

	slot := s.nextSlot
	s.nextSlot++
	p := race.NewPlayer(slot, "", "", "")
	s.players[slot] = p
	s.conns[conn.RemoteID()] = &connRecord{conn: conn, slot: slot}

	s.send(conn, protocol.KindWelcome, protocol.Welcome{
		Slot:     slot,
		Players:  s.snapshot(),
		RoomCode: s.roomCode,
	})
	s.broadcastExcept(conn.RemoteID(), protocol.KindPlayerJoined, protocol.PlayerJoined{Slot: slot, Player: p.Clone()})
	go s.connPump(conn)

	s.log.Info("guest joined", zap.String("peer", conn.RemoteID()), zap.Int("slot", slot))
	s.emit(RosterChanged{Players: s.snapshot()})
}

// handleHostFrame applies a guest message and fans it out to the other
// guests. Unknown kinds and out-of-range slots are dropped.
func (s *Session) handleHostFrame(peerID string, env protocol.Envelope, raw []byte) {
	switch env.Kind {
	case protocol.KindIdentify:
		var ident protocol.Identify
		if err := protocol.DecodePayload(env, &ident); err != nil {
			return
		}
		rec := s.conns[peerID]
		if rec == nil || s.players[rec.slot] == nil {
			return
		}
		p := s.players[rec.slot]
		if ident.Name != "" {
			p.Name = ident.Name
		}
		if ident.AvatarVariant != "" {
			p.AvatarVariant = ident.AvatarVariant
		}
		if ident.AvatarColor != "" {
			p.AvatarColor = ident.AvatarColor
		}
		s.broadcastExcept(peerID, protocol.KindPlayerUpdate, protocol.PlayerUpdate{Slot: rec.slot, Player: p.Clone()})
		s.emit(RosterChanged{Players: s.snapshot()})

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
		s.relayExcept(peerID, raw)
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
		// The host's counter is the rank authority: the reported rank is
		// replaced with the next rank in arrival order before relaying.
		rank := s.current.NextRank()
		race.Finish(p, rank, fin.WPM, fin.Accuracy, false)
		s.broadcastExcept(peerID, protocol.KindFinished, protocol.Finished{
			Slot: fin.Slot, Rank: rank, WPM: fin.WPM, Accuracy: fin.Accuracy,
		})
		s.emit(TrackChanged{Players: s.snapshot()})
		s.checkDone()

	case protocol.KindTimeout:
		var to protocol.Timeout
		if err := protocol.DecodePayload(env, &to); err != nil || !validSlot(to.Slot) {
			return
		}
		p := s.players[to.Slot]
		if p == nil || p.Finished || s.current == nil {
			return
		}
		rank := s.current.NextRank()
		race.Finish(p, rank, to.WPM, 0, true)
		s.relayExcept(peerID, raw)
		s.emit(TrackChanged{Players: s.snapshot()})
		s.checkDone()

	default:
		s.log.Debug("dropping unexpected frame", zap.String("kind", string(env.Kind)), zap.String("peer", peerID))
	}
}

func (s *Session) handlePeerClosed(peerID string, err error) {
	if s.role == RoleGuest {
		if s.hostConn != nil && peerID == s.hostConn.RemoteID() {
			s.fail(ErrHostGone)
		}
		return
	}

	rec := s.conns[peerID]
	if rec == nil {
		// a rejected connection, never had a slot
		return
	}
	delete(s.conns, peerID)
	slot := rec.slot
	p := s.players[slot]
	if p == nil {
		return
	}
	s.log.Info("guest gone", zap.String("peer", peerID), zap.Int("slot", slot), zap.Error(err))

	racing := s.current != nil &&
		(s.phase == race.PhaseCountdown || s.phase == race.PhaseRunning)
	if racing {
		// Synthesize a timeout for the vanished slot so race-end detection
		// still converges; the slot is vacated once the race settles.
		if !p.Finished {
			rank := s.current.NextRank()
			race.Finish(p, rank, p.WPM, 0, true)
			s.broadcastAll(protocol.KindTimeout, protocol.Timeout{Slot: slot, WPM: p.WPM})
		}
		s.departed = append(s.departed, slot)
		s.emit(TrackChanged{Players: s.snapshot()})
		s.checkDone()
		return
	}

	s.players[slot] = nil
	s.broadcastAll(protocol.KindPlayerLeft, protocol.PlayerLeft{Slot: slot})
	s.emit(RosterChanged{Players: s.snapshot()})
}

// handleStartRace begins a race (from the lobby) or restarts one (from the
// results screen). Host only; needs at least two occupied slots.
func (s *Session) handleStartRace(again bool) {
	if s.role != RoleHost {
		return
	}
	if again && s.phase != race.PhaseFinished {
		return
	}
	if !again && s.phase != race.PhaseLobby {
		return
	}
	if s.occupiedCount() < 2 {
		s.log.Info("not enough players to start")
		return
	}

	text := race.PickText()
	s.broadcastAll(protocol.KindStartRace, protocol.StartRace{Text: text, Players: s.occupied()})
	s.prepareRace(text)
}

// checkDone ends the race once every occupied slot has finished (host only).
func (s *Session) checkDone() {
	if s.role != RoleHost || s.current == nil || s.phase == race.PhaseFinished {
		return
	}
	if !race.AllFinished(s.players[:]) {
		return
	}
	s.broadcastAll(protocol.KindEndRace, protocol.EndRace{Players: s.occupied()})

	standings := race.Standings(s.players[:])
	s.resetTimers()
	s.phase = race.PhaseFinished

	vacated := false
	for _, slot := range s.departed {
		if s.players[slot] != nil {
			s.players[slot] = nil
			s.broadcastAll(protocol.KindPlayerLeft, protocol.PlayerLeft{Slot: slot})
			vacated = true
		}
	}
	s.departed = nil

	s.emit(RaceResult{Standings: standings})
	s.emit(PhaseChanged{Phase: race.PhaseFinished})
	if vacated {
		s.emit(RosterChanged{Players: s.snapshot()})
	}
}

func (s *Session) broadcastAll(kind protocol.Kind, payload any) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		return
	}
	for _, rec := range s.conns {
		_ = rec.conn.Send(data)
	}
}

// broadcastExcept sends to every guest but the originator; the host never
// reflects a message back to its sender.
func (s *Session) broadcastExcept(peerID string, kind protocol.Kind, payload any) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		return
	}
	for id, rec := range s.conns {
		if id == peerID {
			continue
		}
		_ = rec.conn.Send(data)
	}
}

// relayExcept forwards raw bytes verbatim.
func (s *Session) relayExcept(peerID string, raw []byte) {
	for id, rec := range s.conns {
		if id == peerID {
			continue
		}
		_ = rec.conn.Send(raw)
	}
}
