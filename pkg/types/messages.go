package types

// Client -> Server
// All action messages are attributed server-side to the player bound to
// the sending connection; a payload naming another player is rejected.
//
// PlayCard:
//   card: number   (instance id in the requester's hand)
//   slot: number   (0-based board slot)
//
// Attack:
//   attacker: number (board instance id)
//   target: { kind: "card" | "player", card?: number, player?: string }
//
// UseAbility:
//   card: number    (board instance id with an ability binding)
//   target: { kind: "card" | "player", card?: number, player?: string }
//
// EndTurn: {}
//
// Concede: {}
//
// RequestSnapshot: {}   (sent after the client detects a seq gap)

// Server -> Client
// Welcome:
//   player_id: string
//   token: string    (present this on reconnect as ?token=)
//
// Snapshot:
//   seq: number      (deltas with seq <= this are already folded in)
//   state: full match state (players, instances, turn owner, phase)
//
// Delta:
//   seq: number      (strictly increasing; a gap means "request snapshot")
//   events: ordered list of state changes from one applied action
//
// Rejected:          (sent only to the requester; nothing changed)
//   action: string
//   reason: string
//
// Opponent:          (connection status of the other player)
//   opponent: string
//   status: "connected" | "disconnected_in_grace" | "forfeited"
//   phase: string
//
// Error:
//   error: string
