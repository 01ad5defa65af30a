// Package session coordinates one peer-to-peer race session. Every process
// runs exactly one Session actor: the host owns the authoritative roster and
// fans messages out to guests; a guest mirrors state replicated through the
// host over its single connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jdowell/racetype/internal/identity"
	"github.com/jdowell/racetype/internal/protocol"
	"github.com/jdowell/racetype/internal/race"
	"github.com/jdowell/racetype/internal/transport"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

const (
	// DefaultJoinTimeout bounds how long a guest waits for WELCOME.
	DefaultJoinTimeout = 12 * time.Second
	// roomFullGrace lets the rejection message flush before teardown.
	roomFullGrace = 500 * time.Millisecond
	// maxIDAttempts bounds identity regeneration on unavailable-id errors.
	maxIDAttempts = 5
)

var (
	ErrRoomNotFound = errors.New("room not found: check the code and try again")
	ErrJoinTimeout  = errors.New("could not reach the host in time: check the code and try again")
	ErrHostGone     = errors.New("lost connection to the host")
	ErrIDExhausted  = errors.New("could not register a free id")
)

// Options configures a session. Network is required; everything else has a
// working default.
type Options struct {
	Network         transport.Network
	TransportConfig transport.Config
	Clock           clockwork.Clock
	Log             *zap.Logger
	JoinTimeout     time.Duration

	Name          string
	AvatarVariant string
	AvatarColor   string
}

func (o *Options) withDefaults() {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.Name == "" {
		o.Name = "Racer"
	}
}

type connRecord struct {
	conn transport.Conn
	slot int
}

type Session struct {
	log   *zap.Logger
	clock clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	inbox  chan sessionMsg
	events chan Event

	role     Role
	roomCode string
	endpoint transport.Endpoint

	slot    int
	players [race.MaxPlayers]*race.Player
	phase   race.Phase

	current       *race.Race
	typed         string
	startAt       time.Time
	countdownLeft int

	timerGen  int
	timerStop chan struct{}

	// host state
	conns    map[string]*connRecord
	nextSlot int
	// slots that vanished mid-race; vacated once the race converges
	departed []int

	// guest state
	hostConn transport.Conn
	joined   bool
}

// Host opens a new room and returns its session. The room code is regenerated
// on rendezvous-id collision up to maxIDAttempts.
func Host(ctx context.Context, opts Options) (*Session, error) {
	opts.withDefaults()

	var (
		code     string
		endpoint transport.Endpoint
	)
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return nil, ErrIDExhausted
		}
		c, err := identity.NewRoomCode()
		if err != nil {
			return nil, err
		}
		ep, err := opts.Network.Listen(ctx, identity.HostID(c), opts.TransportConfig)
		if err != nil {
			if transport.KindOf(err) == transport.KindUnavailableID {
				opts.Log.Info("room code collision, regenerating", zap.String("code", c))
				continue
			}
			return nil, fmt.Errorf("open room: %w", err)
		}
		code, endpoint = c, ep
		break
	}

	s := newSession(ctx, opts, RoleHost, endpoint)
	s.roomCode = code
	s.slot = 0
	s.nextSlot = 1
	s.conns = make(map[string]*connRecord)
	s.players[0] = race.NewPlayer(0, opts.Name, opts.AvatarVariant, opts.AvatarColor)

	s.emit(RosterChanged{Players: s.snapshot()})
	s.emit(PhaseChanged{Phase: race.PhaseLobby})
	go s.loop()
	go s.acceptPump()
	s.log.Info("room open", zap.String("code", code))
	return s, nil
}

// Join connects to an existing room as a guest. The guest id is regenerated on
// collision; a wrong or stale code surfaces as ErrRoomNotFound.
func Join(ctx context.Context, opts Options, code string) (*Session, error) {
	opts.withDefaults()
	code = identity.NormalizeCode(code)
	if len(code) != identity.CodeLength {
		return nil, ErrRoomNotFound
	}

	var endpoint transport.Endpoint
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return nil, ErrIDExhausted
		}
		ep, err := opts.Network.Listen(ctx, identity.NewGuestID(), opts.TransportConfig)
		if err != nil {
			if transport.KindOf(err) == transport.KindUnavailableID {
				continue
			}
			return nil, fmt.Errorf("open endpoint: %w", err)
		}
		endpoint = ep
		break
	}

	conn, err := endpoint.Dial(ctx, identity.HostID(code))
	if err != nil {
		_ = endpoint.Close()
		if transport.KindOf(err) == transport.KindPeerUnavailable {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("connect to host: %w", err)
	}

	s := newSession(ctx, opts, RoleGuest, endpoint)
	s.roomCode = code
	s.slot = -1
	s.hostConn = conn

	s.send(conn, protocol.KindIdentify, protocol.Identify{
		Name:          opts.Name,
		AvatarVariant: opts.AvatarVariant,
		AvatarColor:   opts.AvatarColor,
	})

	gen := s.resetTimers()
	s.armTimer(gen, opts.JoinTimeout, s.timerStop, func(g int) sessionMsg { return joinTimedOut{gen: g} })

	s.emit(PhaseChanged{Phase: race.PhaseLobby})
	go s.loop()
	go s.connPump(conn)
	s.log.Info("joined room", zap.String("code", code))
	return s, nil
}

func newSession(parent context.Context, opts Options, role Role, ep transport.Endpoint) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		log:      opts.Log,
		clock:    opts.Clock,
		ctx:      ctx,
		cancel:   cancel,
		inbox:    make(chan sessionMsg, 64),
		events:   make(chan Event, 64),
		role:     role,
		endpoint: ep,
		phase:    race.PhaseLobby,
		slot:     -1,
	}
}

// Events is the presentation notification stream. It closes when the session
// ends.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Role() Role       { return s.role }
func (s *Session) RoomCode() string { return s.roomCode }

// Done closes when the session has shut down.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// User intents. All are applied asynchronously by the session loop.

func (s *Session) SetProfile(name, variant, color string) {
	s.post(setProfile{name: name, variant: variant, color: color})
}
func (s *Session) StartRace()                { s.post(startRace{}) }
func (s *Session) PlayAgain()                { s.post(playAgain{}) }
func (s *Session) UpdateTyping(typed string) { s.post(typedUpdate{typed: typed}) }
func (s *Session) Leave()                    { s.post(leave{}) }

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() (View, bool) {
	reply := make(chan View, 1)
	s.post(getState{reply: reply})
	select {
	case v := <-reply:
		return v, true
	case <-s.ctx.Done():
		return View{}, false
	}
}

func (s *Session) post(m sessionMsg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		// slow presentation consumer, drop the notification
	}
}

func (s *Session) loop() {
	defer s.teardown()
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.inbox:
			switch msg := m.(type) {
			case inboundConn:
				s.handleInbound(msg.conn)
			case peerFrame:
				s.handleFrame(msg.peerID, msg.data)
			case peerClosed:
				s.handlePeerClosed(msg.peerID, msg.err)
			case rejectDone:
				_ = msg.conn.Close()
			case countdownTick:
				s.handleCountdownTick(msg.gen)
			case raceTick:
				s.handleRaceTick(msg.gen)
			case joinTimedOut:
				s.handleJoinTimeout(msg.gen)
			case setProfile:
				s.handleSetProfile(msg)
			case startRace:
				s.handleStartRace(false)
			case playAgain:
				s.handleStartRace(true)
			case typedUpdate:
				s.handleTyped(msg.typed)
			case leave:
				return
			case getState:
				msg.reply <- s.view()
			}
		}
	}
}

func (s *Session) teardown() {
	s.cancel()
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
	_ = s.endpoint.Close()
	close(s.events)
}

// fail emits a terminal error and shuts the session down.
func (s *Session) fail(err error) {
	s.log.Warn("session failed", zap.Error(err))
	s.emit(Errored{Err: err})
	s.cancel()
}

// acceptPump forwards inbound transport connections into the loop (host).
func (s *Session) acceptPump() {
	for {
		select {
		case conn, ok := <-s.endpoint.Accept():
			if !ok {
				return
			}
			s.post(inboundConn{conn: conn})
		case <-s.ctx.Done():
			return
		}
	}
}

// connPump forwards one connection's messages and its close into the loop.
func (s *Session) connPump(conn transport.Conn) {
	id := conn.RemoteID()
	for {
		select {
		case data := <-conn.Recv():
			s.post(peerFrame{peerID: id, data: data})
		case <-conn.Done():
			s.post(peerClosed{peerID: id, err: conn.Err()})
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) handleFrame(peerID string, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		s.log.Debug("dropping malformed frame", zap.String("peer", peerID))
		return
	}
	if s.role == RoleHost {
		s.handleHostFrame(peerID, env, data)
	} else {
		s.handleGuestFrame(env)
	}
}

// validSlot guards against out-of-range slot indices in network input.
func validSlot(slot int) bool { return slot >= 0 && slot < race.MaxPlayers }

// snapshot clones the full roster, nils included.
func (s *Session) snapshot() []*race.Player {
	out := make([]*race.Player, race.MaxPlayers)
	for i, p := range s.players {
		out[i] = p.Clone()
	}
	return out
}

// occupied clones only the filled slots.
func (s *Session) occupied() []*race.Player {
	var out []*race.Player
	for _, p := range s.players {
		if p != nil {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (s *Session) occupiedCount() int {
	n := 0
	for _, p := range s.players {
		if p != nil {
			n++
		}
	}
	return n
}

func (s *Session) me() *race.Player {
	if !validSlot(s.slot) {
		return nil
	}
	return s.players[s.slot]
}

// send marshals and ships one message, ignoring delivery errors the same way
// the session treats any single-peer hiccup: the close handler deals with it.
func (s *Session) send(conn transport.Conn, kind protocol.Kind, payload any) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		return
	}
	_ = conn.Send(data)
}

// resetTimers cancels every timer of the current phase and starts a new
// generation. Ticks from older generations are dropped on receipt.
func (s *Session) resetTimers() int {
	if s.timerStop != nil {
		close(s.timerStop)
	}
	s.timerStop = make(chan struct{})
	s.timerGen++
	return s.timerGen
}

// tickEvery registers the ticker synchronously so a tick can never be missed
// between arming and the goroutine starting.
func (s *Session) tickEvery(gen int, stop chan struct{}, mk func(gen int) sessionMsg) {
	t := s.clock.NewTicker(time.Second)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.Chan():
				s.post(mk(gen))
			case <-stop:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Session) armTimer(gen int, d time.Duration, stop chan struct{}, mk func(gen int) sessionMsg) {
	ch := s.clock.After(d)
	go func() {
		select {
		case <-ch:
			s.post(mk(gen))
		case <-stop:
		case <-s.ctx.Done():
		}
	}()
}

// prepareRace resets every occupied slot and enters the countdown. Identical
// on host and guest; no network round-trip synchronizes the countdown's end.
func (s *Session) prepareRace(text string) {
	s.current = race.NewRace(text)
	s.typed = ""
	for _, p := range s.players {
		if p != nil {
			p.ResetRace()
		}
	}

	s.phase = race.PhaseCountdown
	s.countdownLeft = race.CountdownSeconds
	gen := s.resetTimers()
	s.tickEvery(gen, s.timerStop, func(g int) sessionMsg { return countdownTick{gen: g} })

	s.emit(PhaseChanged{Phase: race.PhaseCountdown, Text: text, TimeLimit: s.current.TimeLimit})
	s.emit(RosterChanged{Players: s.snapshot()})
	s.emit(CountdownTick{Remaining: s.countdownLeft})
}

func (s *Session) handleCountdownTick(gen int) {
	if gen != s.timerGen || s.phase != race.PhaseCountdown {
		return
	}
	s.countdownLeft--
	if s.countdownLeft > 0 {
		s.emit(CountdownTick{Remaining: s.countdownLeft})
		return
	}

	s.phase = race.PhaseRunning
	s.startAt = s.clock.Now()
	g := s.resetTimers()
	s.tickEvery(g, s.timerStop, func(gg int) sessionMsg { return raceTick{gen: gg} })
	s.emit(CountdownTick{Remaining: 0})
	s.emit(PhaseChanged{Phase: race.PhaseRunning, Text: s.current.Text, TimeLimit: s.current.TimeLimit})
	s.emit(TimerTick{Remaining: s.current.Remaining})
}

func (s *Session) handleRaceTick(gen int) {
	if gen != s.timerGen || s.phase != race.PhaseRunning || s.current == nil {
		return
	}
	s.current.Remaining--
	s.emit(TimerTick{Remaining: s.current.Remaining})
	if s.current.Remaining > 0 {
		return
	}

	// Time is up on this node's own clock.
	s.resetTimers()
	me := s.me()
	if me == nil || me.Finished {
		return
	}
	rank := s.current.NextRank()
	race.Finish(me, rank, me.WPM, 0, true)
	msg := protocol.Timeout{Slot: s.slot, WPM: me.WPM}
	if s.role == RoleHost {
		s.broadcastAll(protocol.KindTimeout, msg)
		s.emit(TrackChanged{Players: s.snapshot()})
		s.checkDone()
	} else {
		s.send(s.hostConn, protocol.KindTimeout, msg)
		s.emit(TrackChanged{Players: s.snapshot()})
	}
}

func (s *Session) handleJoinTimeout(gen int) {
	if s.joined || gen != s.timerGen {
		return
	}
	s.fail(ErrJoinTimeout)
}

func (s *Session) handleSetProfile(msg setProfile) {
	me := s.me()
	if me != nil {
		if msg.name != "" {
			me.Name = msg.name
		}
		if msg.variant != "" {
			me.AvatarVariant = msg.variant
		}
		if msg.color != "" {
			me.AvatarColor = msg.color
		}
		s.emit(RosterChanged{Players: s.snapshot()})
	}

	ident := protocol.Identify{Name: msg.name, AvatarVariant: msg.variant, AvatarColor: msg.color}
	if s.role == RoleGuest {
		s.send(s.hostConn, protocol.KindIdentify, ident)
		return
	}
	if me != nil {
		s.broadcastAll(protocol.KindPlayerUpdate, protocol.PlayerUpdate{Slot: s.slot, Player: me.Clone()})
	}
}

// handleTyped recomputes the local player's metrics from the full typed text
// and replicates them. A fully correct match finishes the race for this slot.
func (s *Session) handleTyped(typed string) {
	if s.phase != race.PhaseRunning || s.current == nil {
		return
	}
	me := s.me()
	if me == nil || me.Finished {
		return
	}
	s.typed = typed

	m := race.Measure(s.current.Text, typed, s.clock.Since(s.startAt))
	me.Progress = m.Progress
	me.WPM = m.WPM
	me.Accuracy = m.Accuracy

	prog := protocol.Progress{Slot: s.slot, Progress: m.Progress, WPM: m.WPM, Accuracy: m.Accuracy}
	if s.role == RoleHost {
		s.broadcastAll(protocol.KindProgress, prog)
	} else {
		s.send(s.hostConn, protocol.KindProgress, prog)
	}
	s.emit(TrackChanged{Players: s.snapshot()})

	if !m.Complete {
		return
	}
	rank := s.current.NextRank()
	race.Finish(me, rank, m.WPM, m.Accuracy, false)
	fin := protocol.Finished{Slot: s.slot, Rank: rank, WPM: m.WPM, Accuracy: m.Accuracy}
	if s.role == RoleHost {
		s.broadcastAll(protocol.KindFinished, fin)
		s.emit(TrackChanged{Players: s.snapshot()})
		s.checkDone()
	} else {
		s.send(s.hostConn, protocol.KindFinished, fin)
		s.emit(TrackChanged{Players: s.snapshot()})
	}
}

func (s *Session) view() View {
	v := View{
		Role:     s.role,
		Phase:    s.phase,
		RoomCode: s.roomCode,
		Slot:     s.slot,
		Players:  s.snapshot(),
	}
	if s.current != nil {
		v.Text = s.current.Text
		v.TimeLimit = s.current.TimeLimit
		v.Remaining = s.current.Remaining
		v.FinishedCount = s.current.FinishedCount
	}
	if s.role == RoleHost {
		v.GuestConns = len(s.conns)
	}
	return v
}
