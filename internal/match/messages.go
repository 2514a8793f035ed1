package match

import (
	"time"

	"github.com/cardclash/battle-backend/internal/engine"
)

// Msg is the serialized-inbox message type for a Session. Everything that
// can happen to a match (actions, connects, disconnects, grace expiry)
// arrives through the same channel and is processed one at a time.
type Msg interface{ isMsg() }

// Connect claims a seat or rebinds a disconnected one. Token is empty for
// a fresh join; a returning client presents the token it was issued.
type Connect struct {
	ClientID string
	Token    string
	Outbox   chan Outbound
	Reply    chan ConnectResult
}

type ConnectResult struct {
	Player engine.PlayerID
	Token  string
	Err    error
}

// Disconnected reports that a transport connection dropped. Emitted by the
// ws layer for any close, clean or not.
type Disconnected struct{ ClientID string }

// FromClient carries one action request. The session resolves ClientID to
// a player; a mismatch with Action.Player is a protocol violation.
type FromClient struct {
	ClientID string
	Action   engine.Action
}

// GraceExpired is enqueued by the grace timer. Gen guards against stale
// fires: a reconnect or a newer disconnect bumps the generation and the
// old timer's message is dropped.
type GraceExpired struct {
	Player engine.PlayerID
	Gen    int
}

// RequestSnapshot asks for a fresh full snapshot on the requesting
// connection, used by clients that detect a sequence gap.
type RequestSnapshot struct{ ClientID string }

// GetView reflects internal state without data races. Test-only.
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Connect) isMsg()         {}
func (Disconnected) isMsg()    {}
func (FromClient) isMsg()      {}
func (GraceExpired) isMsg()    {}
func (RequestSnapshot) isMsg() {}
func (GetView) isMsg()         {}
func (Shutdown) isMsg()        {}

// Outbound is what a session writes to a connection's outbox channel.
type Outbound interface{ isOutbound() }

// Snapshot is the complete state view sent to exactly one connection on
// join and on reconnect, always before any subsequent delta.
type Snapshot struct {
	Seq   int
	State *engine.MatchState
}

// Delta is one applied mutation, broadcast to every connected observer in
// the order the session produced it. Seq is strictly increasing per match.
type Delta struct {
	Seq    int
	Events []engine.Event
}

// Rejected is reported to the requesting connection only; it never
// reaches the opponent and causes no state change.
type Rejected struct {
	Action engine.ActionKind
	Reason string
}

// ConnectionNotice tells observers about the opponent's link status
// ("opponent disconnected, reconnecting…" and the recovery).
type ConnectionNotice struct {
	Player engine.PlayerID
	Status Status
	Phase  engine.Phase
}

func (Snapshot) isOutbound()         {}
func (Delta) isOutbound()            {}
func (Rejected) isOutbound()         {}
func (ConnectionNotice) isOutbound() {}

// View mirrors session internals for tests.
type View struct {
	Seq        int
	Phase      engine.Phase
	NumClients int
	State      *engine.MatchState
	Records    []ConnectionRecord
}

// Result summarizes a finished match for the result recorder.
type Result struct {
	Code      string
	Winner    engine.PlayerID
	Reason    engine.EndReason
	Turns     int
	StartedAt time.Time
	EndedAt   time.Time
}
