// Package match implements the authoritative session for one two-player
// card battle: a single goroutine owns the match state and processes
// actions, connection changes and grace-timer events in arrival order.
package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cardclash/battle-backend/internal/engine"
)

// Session is the per-match authority. All mutation happens on the loop
// goroutine; other components only talk to the inbox.
type Session struct {
	code  string
	inbox chan Msg

	state *engine.MatchState
	deps  engine.Deps
	seq   int

	reg       *registry
	outboxes  map[engine.PlayerID]chan Outbound
	snapshots map[engine.PlayerID]*engine.PlayerSnapshot

	grace       time.Duration
	graceGen    map[engine.PlayerID]int
	graceTimers map[engine.PlayerID]*time.Timer

	startedAt time.Time
	onEnd     func(Result)
	ended     bool

	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession starts the authority goroutine for a freshly built match
// state (still in the lobby phase). onEnd fires exactly once, when the
// match reaches Ended for any reason.
func NewSession(parent context.Context, code string, state *engine.MatchState, deps engine.Deps, grace time.Duration, logger *zap.Logger, onEnd func(Result)) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		code:        code,
		inbox:       make(chan Msg, 64),
		state:       state,
		deps:        deps,
		reg:         newRegistry(state.Players[0].ID, state.Players[1].ID),
		outboxes:    make(map[engine.PlayerID]chan Outbound),
		snapshots:   make(map[engine.PlayerID]*engine.PlayerSnapshot),
		grace:       grace,
		graceGen:    make(map[engine.PlayerID]int),
		graceTimers: make(map[engine.PlayerID]*time.Timer),
		onEnd:       onEnd,
		logger:      logger.With(zap.String("match", code)),
		ctx:         ctx,
		cancel:      cancel,
	}
	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session goroutine has shut down. Senders select
// on it so a message to a dead inbox cannot hang a request forever.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Session) Code() string { return s.code }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Connect:
				s.handleConnect(msg)
			case Disconnected:
				s.handleDisconnect(msg.ClientID)
			case FromClient:
				s.handleAction(msg)
			case GraceExpired:
				s.handleGraceExpired(msg)
			case RequestSnapshot:
				if rec := s.reg.byClient(msg.ClientID); rec != nil {
					s.sendSnapshot(rec.Player)
				}
			case GetView:
				msg.Reply <- View{
					Seq:        s.seq,
					Phase:      s.state.Phase,
					NumClients: len(s.outboxes),
					State:      s.state.Clone(),
					Records:    s.reg.snapshot(),
				}
			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// handleAction runs the validate → mutate → broadcast pipeline for one
// client action. Rejections go back to the requester only.
func (s *Session) handleAction(msg FromClient) {
	rec := s.reg.byClient(msg.ClientID)
	if rec == nil {
		// Connection died before we processed its request; drop it.
		s.logger.Debug("action from unbound connection dropped", zap.String("client", msg.ClientID))
		return
	}
	if rec.Player != msg.Action.Player {
		s.reject(rec.Player, msg.Action.Kind, "action attributed to another player")
		return
	}
	if s.state.Phase == engine.PhasePaused && !allowedWhilePaused(msg.Action.Kind) {
		s.reject(rec.Player, msg.Action.Kind, "match paused awaiting reconnect")
		return
	}

	events, ns, err := engine.Apply(s.deps, s.state, msg.Action)
	if err != nil {
		s.reject(rec.Player, msg.Action.Kind, err.Error())
		return
	}
	if err := engine.CheckInvariants(ns); err != nil {
		s.breach(err)
		return
	}
	s.commit(ns, events)
}

// allowedWhilePaused: the connected side may still concede, and may end
// its own turn (the turn then waits on the disconnected player). All
// board mutations hold until the pause resolves.
func allowedWhilePaused(kind engine.ActionKind) bool {
	return kind == engine.ActConcede || kind == engine.ActEndTurn
}

// commit installs the new state and broadcasts the delta. Exactly one
// outbound broadcast per applied action.
func (s *Session) commit(ns *engine.MatchState, events []engine.Event) {
	s.state = ns
	s.seq++
	s.broadcast(Delta{Seq: s.seq, Events: events})
	if s.state.Phase == engine.PhaseEnded {
		s.finish()
	}
}

// breach force-ends the match on an internal invariant violation. This is
// a bug upstream, not a user error, so it logs at error level.
func (s *Session) breach(err error) {
	s.logger.Error("invariant breach, force-ending match", zap.Error(err))
	events, ns := engine.EndMatch(s.state, "", engine.EndForcedHalt)
	if len(events) > 0 {
		s.commit(ns, events)
	}
}

func (s *Session) reject(player engine.PlayerID, kind engine.ActionKind, reason string) {
	s.logger.Debug("action rejected",
		zap.String("player", string(player)),
		zap.String("kind", string(kind)),
		zap.String("reason", reason))
	if out, ok := s.outboxes[player]; ok {
		s.send(player, out, Rejected{Action: kind, Reason: reason})
	}
}

// finish runs the end-of-match bookkeeping once: cancel timers, report
// the result, drop snapshots. Outboxes stay open so clients receive the
// final events before the hub tears the session down.
func (s *Session) finish() {
	if s.ended {
		return
	}
	s.ended = true
	for id, t := range s.graceTimers {
		t.Stop()
		delete(s.graceTimers, id)
	}
	for id := range s.snapshots {
		delete(s.snapshots, id)
	}
	s.logger.Info("match ended",
		zap.String("winner", string(s.state.Winner)),
		zap.String("reason", string(s.state.EndReason)),
		zap.Int("turns", s.state.TurnNumber))
	if s.onEnd != nil {
		s.onEnd(Result{
			Code:      s.code,
			Winner:    s.state.Winner,
			Reason:    s.state.EndReason,
			Turns:     s.state.TurnNumber,
			StartedAt: s.startedAt,
			EndedAt:   time.Now(),
		})
	}
}

func (s *Session) shutdown() {
	for id, ch := range s.outboxes {
		close(ch)
		delete(s.outboxes, id)
	}
	for _, t := range s.graceTimers {
		t.Stop()
	}
	s.cancel()
}

// broadcast delivers a delta to every connected observer. Ordering per
// observer is the loop's processing order by construction. A client that
// cannot keep up is dropped and goes through the normal disconnect path,
// so it can reconnect and resync from a snapshot.
func (s *Session) broadcast(out Outbound) {
	for id, ch := range s.outboxes {
		s.send(id, ch, out)
	}
}

func (s *Session) send(player engine.PlayerID, ch chan Outbound, out Outbound) {
	select {
	case ch <- out:
	default:
		s.logger.Warn("observer too slow, dropping connection", zap.String("player", string(player)))
		if rec := s.reg.byPlayer(player); rec != nil && rec.ClientID != "" {
			clientID := rec.ClientID
			// Re-enqueue instead of mutating here: disconnect handling
			// must run through the serialized path like everything else.
			go func() { s.inbox <- Disconnected{ClientID: clientID} }()
		}
		close(ch)
		delete(s.outboxes, player)
	}
}

// sendSnapshot delivers a full state view to exactly one player's
// connection, tagged with the current sequence number so following deltas
// apply cleanly.
func (s *Session) sendSnapshot(player engine.PlayerID) {
	if out, ok := s.outboxes[player]; ok {
		s.send(player, out, Snapshot{Seq: s.seq, State: s.state.Clone()})
	}
}
