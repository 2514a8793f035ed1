package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cardclash/battle-backend/internal/engine"
)

type stubLibrary map[string]engine.Definition

func (l stubLibrary) GetDefinition(id string) (engine.Definition, bool) {
	d, ok := l[id]
	return d, ok
}

type stubResolver struct{}

func (stubResolver) ResolveAbility(engine.AbilityBinding, engine.CardInstance, engine.Target) (engine.EffectResult, error) {
	return engine.EffectResult{}, nil
}

func testDeps() engine.Deps {
	return engine.Deps{
		Library: stubLibrary{
			"grunt": {ID: "grunt", Cost: 1, Attack: 2, Health: 3},
		},
		Resolver: stubResolver{},
	}
}

func testState() *engine.MatchState {
	deck := make([]engine.Spawn, 8)
	for i := range deck {
		deck[i] = engine.Spawn{DefID: "grunt", Attack: 2, Health: 3}
	}
	return engine.NewMatch(engine.Setup{StartingHealth: 20, StartingHand: 3, DeckSize: len(deck)},
		"alice", "bob", deck, deck)
}

type client struct {
	id     string
	player engine.PlayerID
	token  string
	out    chan Outbound
}

// connect claims or rebinds a seat, failing the test on error.
func connect(t *testing.T, s *Session, clientID, token string) *client {
	t.Helper()
	c := &client{id: clientID, out: make(chan Outbound, 32)}
	reply := make(chan ConnectResult, 1)
	s.Inbox() <- Connect{ClientID: clientID, Token: token, Outbox: c.out, Reply: reply}
	res := recvResult(t, reply, time.Second)
	if res.Err != nil {
		t.Fatalf("connect %s: %v", clientID, res.Err)
	}
	c.player = res.Player
	c.token = res.Token
	return c
}

func recvResult(t *testing.T, ch <-chan ConnectResult, within time.Duration) ConnectResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(within):
		t.Fatalf("timed out waiting for connect result")
		return ConnectResult{} // unreachable
	}
}

// recvOutbound receives one outbound with a timeout so tests never hang.
func recvOutbound(t *testing.T, ch <-chan Outbound, within time.Duration) Outbound {
	t.Helper()
	select {
	case out, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return out
	case <-time.After(within):
		t.Fatalf("timed out waiting for outbound")
		return nil // unreachable
	}
}

func recvNoOutbound(t *testing.T, ch <-chan Outbound, within time.Duration) {
	t.Helper()
	select {
	case out, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no outbound within %v, got %#v", within, out)
	case <-time.After(within):
	}
}

// recvDelta skips non-delta outbounds (connection notices) until a delta
// arrives.
func recvDelta(t *testing.T, ch <-chan Outbound, within time.Duration) Delta {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case out, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for delta")
			}
			if d, isDelta := out.(Delta); isDelta {
				return d
			}
		case <-deadline:
			t.Fatalf("timed out waiting for delta")
		}
	}
}

func view(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func hasEndEvent(d Delta, reason engine.EndReason) bool {
	for _, ev := range d.Events {
		if ev.Type == engine.EvtMatchEnded && ev.Reason == reason {
			return true
		}
	}
	return false
}

func newSession(t *testing.T, grace time.Duration) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewSession(ctx, "TEST01", testState(), testDeps(), grace, zap.NewNop(), nil)
}

// startMatch seats both players and drains their join-time outbounds,
// returning them ready for in-game traffic.
func startMatch(t *testing.T, s *Session) (*client, *client) {
	t.Helper()
	c1 := connect(t, s, "conn-1", "")
	snap := recvOutbound(t, c1.out, time.Second)
	if sn, ok := snap.(Snapshot); !ok || sn.State.Phase != engine.PhaseLobby {
		t.Fatalf("first outbound must be a lobby snapshot, got %#v", snap)
	}

	c2 := connect(t, s, "conn-2", "")
	if _, ok := recvOutbound(t, c2.out, time.Second).(Snapshot); !ok {
		t.Fatalf("joiner must receive a snapshot before any delta")
	}

	// both see the match-start delta
	d1 := recvDelta(t, c1.out, time.Second)
	d2 := recvDelta(t, c2.out, time.Second)
	if d1.Seq != 1 || d2.Seq != 1 {
		t.Fatalf("match-start delta should be seq 1, got %d/%d", d1.Seq, d2.Seq)
	}
	return c1, c2
}

func byPlayer(c1, c2 *client, id engine.PlayerID) (*client, *client) {
	if c1.player == id {
		return c1, c2
	}
	return c2, c1
}

func TestSession_JoinBothStartsMatch(t *testing.T) {
	s := newSession(t, time.Second)
	startMatch(t, s)

	v := view(t, s)
	if v.Phase != engine.PhaseInProgress {
		t.Fatalf("want InProgress, got %s", v.Phase)
	}
	if v.State.TurnOwner != "alice" {
		t.Fatalf("first turn should be alice's, got %s", v.State.TurnOwner)
	}
}

func TestSession_ActionBroadcastsInOrder(t *testing.T) {
	s := newSession(t, time.Second)
	c1, c2 := startMatch(t, s)
	owner, _ := byPlayer(c1, c2, view(t, s).State.TurnOwner)

	s.Inbox() <- FromClient{ClientID: owner.id, Action: engine.Action{Kind: engine.ActEndTurn, Player: owner.player}}

	d1 := recvDelta(t, c1.out, time.Second)
	d2 := recvDelta(t, c2.out, time.Second)
	if d1.Seq != 2 || d2.Seq != 2 {
		t.Fatalf("want seq 2 on both observers, got %d/%d", d1.Seq, d2.Seq)
	}
}

func TestSession_RejectionGoesToRequesterOnly(t *testing.T) {
	s := newSession(t, time.Second)
	c1, c2 := startMatch(t, s)
	owner, other := byPlayer(c1, c2, view(t, s).State.TurnOwner)

	s.Inbox() <- FromClient{ClientID: other.id, Action: engine.Action{Kind: engine.ActEndTurn, Player: other.player}}

	out := recvOutbound(t, other.out, time.Second)
	rej, ok := out.(Rejected)
	if !ok {
		t.Fatalf("want Rejected, got %#v", out)
	}
	if rej.Action != engine.ActEndTurn {
		t.Fatalf("rejection names the wrong action: %s", rej.Action)
	}
	// the owner sees nothing: no broadcast, no state change
	recvNoOutbound(t, owner.out, 150*time.Millisecond)
	if view(t, s).Seq != 1 {
		t.Fatalf("rejection must not bump the sequence")
	}
}

func TestSession_ActionAttributedToOtherPlayerRejected(t *testing.T) {
	s := newSession(t, time.Second)
	c1, c2 := startMatch(t, s)
	owner, other := byPlayer(c1, c2, view(t, s).State.TurnOwner)

	// other's connection claims to act as the owner
	s.Inbox() <- FromClient{ClientID: other.id, Action: engine.Action{Kind: engine.ActEndTurn, Player: owner.player}}

	if _, ok := recvOutbound(t, other.out, time.Second).(Rejected); !ok {
		t.Fatalf("spoofed attribution should be rejected")
	}
	if view(t, s).Seq != 1 {
		t.Fatalf("spoofed action must not mutate state")
	}
}

func TestSession_DisconnectPausesAndNotifiesOpponent(t *testing.T) {
	s := newSession(t, time.Minute)
	c1, c2 := startMatch(t, s)

	s.Inbox() <- Disconnected{ClientID: c1.id}

	out := recvOutbound(t, c2.out, time.Second)
	notice, ok := out.(ConnectionNotice)
	if !ok {
		t.Fatalf("want ConnectionNotice, got %#v", out)
	}
	if notice.Player != c1.player || notice.Status != StatusGrace || notice.Phase != engine.PhasePaused {
		t.Fatalf("unexpected notice: %#v", notice)
	}

	v := view(t, s)
	if v.Phase != engine.PhasePaused {
		t.Fatalf("want Paused, got %s", v.Phase)
	}
	for _, rec := range v.Records {
		if rec.Player == c1.player && rec.Status != StatusGrace {
			t.Fatalf("record should be in grace: %#v", rec)
		}
	}
}

func TestSession_PausedRejectsBoardActionsAllowsEndTurnAndConcede(t *testing.T) {
	s := newSession(t, time.Minute)
	c1, c2 := startMatch(t, s)
	owner, other := byPlayer(c1, c2, view(t, s).State.TurnOwner)

	// the non-owner drops; the owner keeps its connection
	s.Inbox() <- Disconnected{ClientID: other.id}
	if _, ok := recvOutbound(t, owner.out, time.Second).(ConnectionNotice); !ok {
		t.Fatalf("expected pause notice")
	}

	// board mutation is parked until the pause resolves
	hand := view(t, s).State.Player(owner.player).Hand
	s.Inbox() <- FromClient{ClientID: owner.id, Action: engine.Action{
		Kind: engine.ActPlayCard, Player: owner.player, Card: hand[0], Slot: 0}}
	if _, ok := recvOutbound(t, owner.out, time.Second).(Rejected); !ok {
		t.Fatalf("play during pause should be rejected")
	}

	// but the connected side may still end its turn
	s.Inbox() <- FromClient{ClientID: owner.id, Action: engine.Action{Kind: engine.ActEndTurn, Player: owner.player}}
	d := recvDelta(t, owner.out, time.Second)
	if d.Seq != 2 {
		t.Fatalf("end turn during pause should commit, got seq %d", d.Seq)
	}
	v := view(t, s)
	if v.State.TurnOwner != other.player {
		t.Fatalf("turn should pass to the disconnected player")
	}
	if v.Phase != engine.PhasePaused {
		t.Fatalf("pause must survive the turn handoff")
	}

	// actions attributed to the disconnected player are dropped, not queued
	s.Inbox() <- FromClient{ClientID: other.id, Action: engine.Action{Kind: engine.ActEndTurn, Player: other.player}}
	recvNoOutbound(t, owner.out, 150*time.Millisecond)
	if view(t, s).Seq != 2 {
		t.Fatalf("disconnected player's action must not commit")
	}
}

func TestSession_ReconnectRestoresStateAndCancelsForfeit(t *testing.T) {
	grace := 500 * time.Millisecond
	s := newSession(t, grace)
	c1, c2 := startMatch(t, s)

	before := view(t, s).State
	s.Inbox() <- Disconnected{ClientID: c1.id}
	if _, ok := recvOutbound(t, c2.out, time.Second).(ConnectionNotice); !ok {
		t.Fatalf("expected pause notice")
	}

	// back well within the grace window, presenting the issued token
	time.Sleep(100 * time.Millisecond)
	r := connect(t, s, "conn-1b", c1.token)
	if r.player != c1.player {
		t.Fatalf("reconnect must resolve to the same player id")
	}

	out := recvOutbound(t, r.out, time.Second)
	snap, ok := out.(Snapshot)
	if !ok {
		t.Fatalf("rejoiner must get a full snapshot first, got %#v", out)
	}
	// authoritative state was frozen during the pause
	pre := before.Player(c1.player)
	post := snap.State.Player(c1.player)
	if post.Health != pre.Health || post.Mana != pre.Mana || len(post.Hand) != len(pre.Hand) {
		t.Fatalf("snapshot diverged from pre-disconnect state: %+v vs %+v", post, pre)
	}
	if snap.State.Phase != engine.PhaseInProgress {
		t.Fatalf("match should resume on reconnect, got %s", snap.State.Phase)
	}

	// grace timer cancelled: no forfeit fires after the window
	time.Sleep(grace + 200*time.Millisecond)
	v := view(t, s)
	if v.Phase != engine.PhaseInProgress {
		t.Fatalf("late forfeit fired after successful reconnect: %s", v.Phase)
	}
}

func TestSession_GraceExpiryForfeitsExactlyOnce(t *testing.T) {
	ended := make(chan Result, 2)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := NewSession(ctx, "TEST02", testState(), testDeps(), 80*time.Millisecond, zap.NewNop(),
		func(res Result) { ended <- res })
	c1, c2 := startMatch(t, s)

	s.Inbox() <- Disconnected{ClientID: c1.id}
	if _, ok := recvOutbound(t, c2.out, time.Second).(ConnectionNotice); !ok {
		t.Fatalf("expected pause notice")
	}

	d := recvDelta(t, c2.out, time.Second)
	if !hasEndEvent(d, engine.EndForfeit) {
		t.Fatalf("expected forfeit delta, got %#v", d)
	}
	select {
	case res := <-ended:
		if res.Winner != c2.player || res.Reason != engine.EndForfeit {
			t.Fatalf("wrong result: %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatalf("onEnd never fired")
	}

	// a late reconnect after expiry is refused, and no second forfeit fires
	reply := make(chan ConnectResult, 1)
	s.Inbox() <- Connect{ClientID: "conn-late", Token: c1.token, Outbox: make(chan Outbound, 1), Reply: reply}
	res := recvResult(t, reply, time.Second)
	if !errors.Is(res.Err, ErrMatchOver) {
		t.Fatalf("want ErrMatchOver, got %v", res.Err)
	}
	select {
	case res := <-ended:
		t.Fatalf("double forfeit: %+v", res)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSession_SecondDisconnectRestartsGraceFromZero(t *testing.T) {
	grace := 400 * time.Millisecond
	s := newSession(t, grace)
	c1, c2 := startMatch(t, s)

	// cycle one: drop and come back half-way through the window
	s.Inbox() <- Disconnected{ClientID: c1.id}
	time.Sleep(200 * time.Millisecond)
	r1 := connect(t, s, "conn-1b", c1.token)

	// cycle two: drop again; the window must restart, not continue
	s.Inbox() <- Disconnected{ClientID: "conn-1b"}
	time.Sleep(250 * time.Millisecond)
	if v := view(t, s); v.Phase != engine.PhasePaused {
		t.Fatalf("grace window did not restart: %s", v.Phase)
	}

	// and expire a full window after the second disconnect
	d := recvDelta(t, c2.out, time.Second)
	if !hasEndEvent(d, engine.EndForfeit) {
		t.Fatalf("expected forfeit after second window, got %#v", d)
	}
	_ = r1
}

func TestSession_BothDisconnectedAbandonsMatch(t *testing.T) {
	ended := make(chan Result, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := NewSession(ctx, "TEST03", testState(), testDeps(), time.Minute, zap.NewNop(),
		func(res Result) { ended <- res })
	c1, c2 := startMatch(t, s)

	s.Inbox() <- Disconnected{ClientID: c1.id}
	s.Inbox() <- Disconnected{ClientID: c2.id}

	select {
	case res := <-ended:
		if res.Reason != engine.EndAbandoned || res.Winner != "" {
			t.Fatalf("want abandoned with no winner, got %+v", res)
		}
	case <-time.After(time.Second):
		t.Fatalf("abandonment never reported")
	}
}

func TestSession_JoinWithAbsentOpponentStartsPaused(t *testing.T) {
	s := newSession(t, time.Minute)
	c1 := connect(t, s, "conn-1", "")
	_ = recvOutbound(t, c1.out, time.Second) // lobby snapshot

	// first player drops while the match is still in the lobby
	s.Inbox() <- Disconnected{ClientID: c1.id}

	c2 := connect(t, s, "conn-2", "")
	if _, ok := recvOutbound(t, c2.out, time.Second).(Snapshot); !ok {
		t.Fatalf("joiner must receive a snapshot first")
	}
	d := recvDelta(t, c2.out, time.Second)
	if d.Seq != 1 {
		t.Fatalf("match-start delta should be seq 1, got %d", d.Seq)
	}

	// the joiner is told about the seat already in grace
	out := recvOutbound(t, c2.out, time.Second)
	notice, ok := out.(ConnectionNotice)
	if !ok {
		t.Fatalf("want ConnectionNotice for the absent player, got %#v", out)
	}
	if notice.Player != c1.player || notice.Status != StatusGrace || notice.Phase != engine.PhasePaused {
		t.Fatalf("unexpected notice: %#v", notice)
	}
	if v := view(t, s); v.Phase != engine.PhasePaused {
		t.Fatalf("want Paused while one side is disconnected, got %s", v.Phase)
	}

	// the absent player's token still rebinds and resumes the match
	r := connect(t, s, "conn-1b", c1.token)
	if r.player != c1.player {
		t.Fatalf("reconnect must resolve to the same player id")
	}
	snap, ok := recvOutbound(t, r.out, time.Second).(Snapshot)
	if !ok || snap.State.Phase != engine.PhaseInProgress {
		t.Fatalf("rejoin should resume the match, got %#v", snap)
	}
}

func TestSession_DuplicateLiveConnectionForceEndsMatch(t *testing.T) {
	s := newSession(t, time.Minute)
	c1, c2 := startMatch(t, s)

	// c1 is still live; a second connection presenting its token is a
	// breach, not a takeover
	reply := make(chan ConnectResult, 1)
	s.Inbox() <- Connect{ClientID: "conn-1-dup", Token: c1.token, Outbox: make(chan Outbound, 1), Reply: reply}
	res := recvResult(t, reply, time.Second)
	if !errors.Is(res.Err, ErrDuplicateConn) {
		t.Fatalf("want ErrDuplicateConn, got %v", res.Err)
	}

	d := recvDelta(t, c2.out, time.Second)
	if !hasEndEvent(d, engine.EndForcedHalt) {
		t.Fatalf("duplicate connection should force-end the match, got %#v", d)
	}
	if v := view(t, s); v.Phase != engine.PhaseEnded {
		t.Fatalf("want Ended, got %s", v.Phase)
	}
}

func TestSession_RequestSnapshotResync(t *testing.T) {
	s := newSession(t, time.Minute)
	c1, _ := startMatch(t, s)

	// a client that noticed a sequence gap asks for a full resync
	s.Inbox() <- RequestSnapshot{ClientID: c1.id}
	out := recvOutbound(t, c1.out, time.Second)
	snap, ok := out.(Snapshot)
	if !ok {
		t.Fatalf("want Snapshot, got %#v", out)
	}
	if want := view(t, s).Seq; snap.Seq != want {
		t.Fatalf("snapshot should carry the current seq %d, got %d", want, snap.Seq)
	}
	if snap.State.Phase != engine.PhaseInProgress {
		t.Fatalf("snapshot should reflect the live state, got %s", snap.State.Phase)
	}
}

func TestSession_ReconnectTokenMismatchRejected(t *testing.T) {
	s := newSession(t, time.Minute)
	c1, _ := startMatch(t, s)
	s.Inbox() <- Disconnected{ClientID: c1.id}

	reply := make(chan ConnectResult, 1)
	s.Inbox() <- Connect{ClientID: "intruder", Token: "not-a-token", Outbox: make(chan Outbound, 1), Reply: reply}
	res := recvResult(t, reply, time.Second)
	if !errors.Is(res.Err, ErrBadToken) {
		t.Fatalf("want ErrBadToken, got %v", res.Err)
	}
}

func TestSession_ThirdFreshJoinRejected(t *testing.T) {
	s := newSession(t, time.Minute)
	startMatch(t, s)

	reply := make(chan ConnectResult, 1)
	s.Inbox() <- Connect{ClientID: "conn-3", Token: "", Outbox: make(chan Outbound, 1), Reply: reply}
	res := recvResult(t, reply, time.Second)
	if !errors.Is(res.Err, ErrMatchFull) {
		t.Fatalf("want ErrMatchFull, got %v", res.Err)
	}
}

func TestSession_SlowObserverIsDropped(t *testing.T) {
	s := newSession(t, time.Minute)
	c1 := connect(t, s, "conn-1", "")
	_ = recvOutbound(t, c1.out, time.Second) // drain join snapshot

	// a client that never reads: buffer of one fills with its join
	// snapshot, the match-start delta overflows it
	slow := &client{id: "conn-2", out: make(chan Outbound, 1)}
	reply := make(chan ConnectResult, 1)
	s.Inbox() <- Connect{ClientID: slow.id, Token: "", Outbox: slow.out, Reply: reply}
	if res := recvResult(t, reply, time.Second); res.Err != nil {
		t.Fatalf("connect: %v", res.Err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		v := view(t, s)
		if v.NumClients == 1 && v.Phase == engine.PhasePaused {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("slow observer never dropped: clients=%d phase=%s", v.NumClients, v.Phase)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
