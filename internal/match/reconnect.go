package match

import (
	"time"

	"go.uber.org/zap"

	"github.com/cardclash/battle-backend/internal/engine"
)

// handleConnect seats a new transport identity or rebinds a returning one.
func (s *Session) handleConnect(msg Connect) {
	if s.state.Phase == engine.PhaseEnded {
		msg.Reply <- ConnectResult{Err: ErrMatchOver}
		return
	}
	if msg.Token == "" {
		s.handleJoin(msg)
		return
	}

	rec, err := s.reg.resolve(msg.Token, msg.ClientID)
	if err == ErrDuplicateConn {
		// Two live connections for one player id means a bug upstream of
		// the session; the match cannot be trusted anymore.
		msg.Reply <- ConnectResult{Err: err}
		s.breach(err)
		return
	}
	if err != nil {
		msg.Reply <- ConnectResult{Err: err}
		return
	}
	s.handleReconnect(rec, msg)
}

func (s *Session) handleJoin(msg Connect) {
	rec, err := s.reg.claim(msg.ClientID)
	if err != nil {
		msg.Reply <- ConnectResult{Err: err}
		return
	}
	s.outboxes[rec.Player] = msg.Outbox
	msg.Reply <- ConnectResult{Player: rec.Player, Token: rec.Token}
	s.logger.Info("player joined", zap.String("player", string(rec.Player)))

	// Full snapshot before anything else, so the match-start delta below
	// lands on a complete base state.
	s.sendSnapshot(rec.Player)

	if s.state.Phase == engine.PhaseLobby && s.reg.bothSeated() {
		s.startedAt = time.Now()
		events := s.state.Begin()
		s.logger.Info("match started", zap.String("turn_owner", string(s.state.TurnOwner)))
		s.seq++
		s.broadcast(Delta{Seq: s.seq, Events: events})

		// A seat can already be in grace when the late joiner arrives: the
		// other player dropped while the match was still in the lobby. The
		// match then starts paused, with the usual notice for the joiner.
		if absent := s.reg.inGrace(); absent != nil {
			s.snapshots[absent.Player] = capture(s.state, absent.Player)
			s.state.Phase = engine.PhasePaused
			s.broadcast(ConnectionNotice{Player: absent.Player, Status: StatusGrace, Phase: s.state.Phase})
		}
	}
}

func (s *Session) handleReconnect(rec *ConnectionRecord, msg Connect) {
	// Retire the pending grace timer; a stale fire is also caught by the
	// generation check, this just stops the clock early.
	s.graceGen[rec.Player]++
	if t, ok := s.graceTimers[rec.Player]; ok {
		t.Stop()
		delete(s.graceTimers, rec.Player)
	}

	// The snapshot was captured for delivery, never as the source of
	// truth; the authoritative store carries through the pause. A
	// mismatch is legal when the opponent ended their turn meanwhile.
	if snap, ok := s.snapshots[rec.Player]; ok {
		if !snap.Matches(s.state) {
			s.logger.Debug("state advanced during pause", zap.String("player", string(rec.Player)))
		}
		delete(s.snapshots, rec.Player)
	}

	s.outboxes[rec.Player] = msg.Outbox
	msg.Reply <- ConnectResult{Player: rec.Player, Token: rec.Token}
	s.logger.Info("player reconnected", zap.String("player", string(rec.Player)))

	// Resume before the snapshot goes out so the rejoiner already sees
	// the live phase; the snapshot must precede any later delta.
	if s.state.Phase == engine.PhasePaused && s.reg.connectedCount() == 2 {
		s.state.Phase = engine.PhaseInProgress
	}
	s.sendSnapshot(rec.Player)
	s.broadcast(ConnectionNotice{Player: rec.Player, Status: StatusConnected, Phase: s.state.Phase})
}

// handleDisconnect starts the grace protocol: keep the seat, freeze the
// match, give the player a fresh full window to come back.
func (s *Session) handleDisconnect(clientID string) {
	rec := s.reg.byClient(clientID)
	if rec == nil {
		return
	}
	if out, ok := s.outboxes[rec.Player]; ok {
		close(out)
		delete(s.outboxes, rec.Player)
	}
	if s.state.Phase == engine.PhaseEnded {
		rec.ClientID = ""
		return
	}

	s.reg.markDisconnected(rec, time.Now())
	s.logger.Info("player disconnected",
		zap.String("player", string(rec.Player)),
		zap.Duration("grace", s.grace))

	if s.reg.connectedCount() == 0 && s.state.Phase != engine.PhaseLobby {
		// Nobody left to wait for a winner.
		s.logger.Info("both players gone, abandoning match")
		events, ns := engine.EndMatch(s.state, "", engine.EndAbandoned)
		s.commit(ns, events)
		return
	}

	if s.state.Phase == engine.PhaseInProgress {
		s.snapshots[rec.Player] = capture(s.state, rec.Player)
		s.state.Phase = engine.PhasePaused
	}
	s.broadcast(ConnectionNotice{Player: rec.Player, Status: StatusGrace, Phase: s.state.Phase})

	// Each disconnect restarts the grace window from zero. The timer only
	// enqueues; the forfeit itself runs on the session loop.
	s.graceGen[rec.Player]++
	gen := s.graceGen[rec.Player]
	player := rec.Player
	s.graceTimers[player] = time.AfterFunc(s.grace, func() {
		select {
		case s.inbox <- GraceExpired{Player: player, Gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) handleGraceExpired(msg GraceExpired) {
	if msg.Gen != s.graceGen[msg.Player] {
		return // stale timer from an earlier disconnect cycle
	}
	if s.state.Phase == engine.PhaseEnded {
		return
	}
	rec := s.reg.byPlayer(msg.Player)
	if rec == nil || rec.Status != StatusGrace {
		return
	}

	rec.Status = StatusForfeited
	delete(s.snapshots, msg.Player)
	delete(s.graceTimers, msg.Player)

	if s.state.Phase == engine.PhaseLobby {
		// Opponent never showed up either; nothing to award.
		events, ns := engine.EndMatch(s.state, "", engine.EndAbandoned)
		s.commit(ns, events)
		return
	}

	winner := s.state.Opponent(msg.Player).ID
	s.logger.Info("grace period expired, forfeiting",
		zap.String("player", string(msg.Player)),
		zap.String("winner", string(winner)))
	events, ns := engine.EndMatch(s.state, winner, engine.EndForfeit)
	s.commit(ns, events)
}

func capture(state *engine.MatchState, id engine.PlayerID) *engine.PlayerSnapshot {
	snap := engine.CapturePlayer(state, id)
	return &snap
}
