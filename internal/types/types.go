package types

import "github.com/cardclash/battle-backend/internal/engine"

// ClientMessage is the client → server envelope. Which fields matter
// depends on Type; see pkg/types for the protocol reference.
type ClientMessage struct {
	Type     string            `json:"type"`
	Card     engine.InstanceID `json:"card,omitempty"`
	Slot     int               `json:"slot,omitempty"`
	Attacker engine.InstanceID `json:"attacker,omitempty"`
	Target   *engine.Target    `json:"target,omitempty"`
}

// ServerMessage is the server → client envelope.
type ServerMessage struct {
	Type     string             `json:"type"` // Welcome | Snapshot | Delta | Rejected | Opponent | Error
	Seq      int                `json:"seq,omitempty"`
	PlayerID engine.PlayerID    `json:"player_id,omitempty"`
	Token    string             `json:"token,omitempty"`
	State    *engine.MatchState `json:"state,omitempty"`
	Events   []engine.Event     `json:"events,omitempty"`
	Action   string             `json:"action,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Opponent engine.PlayerID    `json:"opponent,omitempty"`
	Status   string             `json:"status,omitempty"`
	Phase    engine.Phase       `json:"phase,omitempty"`
	Error    string             `json:"error,omitempty"`
}
