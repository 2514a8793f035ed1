package engine

// PlayerID is a stable logical identity, assigned once per match and never
// reused. It survives transport reconnects.
type PlayerID string

// InstanceID identifies one card instance within a match. Unique for the
// lifetime of the match, never reused, even after the card dies.
type InstanceID int

type Zone string

const (
	ZoneDeck      Zone = "deck"
	ZoneHand      Zone = "hand"
	ZoneBoard     Zone = "board"
	ZoneGraveyard Zone = "graveyard"
)

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseInProgress Phase = "in_progress"
	PhasePaused     Phase = "paused"
	PhaseEnded      Phase = "ended"
)

type EndReason string

const (
	EndConcede    EndReason = "concede"
	EndDefeat     EndReason = "defeat"
	EndForfeit    EndReason = "forfeit_by_disconnect"
	EndAbandoned  EndReason = "abandoned"
	EndForcedHalt EndReason = "invariant_breach"
)

// BoardSlots is the number of board positions per player.
const BoardSlots = 7

// ManaCap is the ceiling for MaxMana growth.
const ManaCap = 10

// CardInstance is a live copy of a card definition. Current stats may
// diverge from the definition through in-match effects.
type CardInstance struct {
	ID     InstanceID `json:"id"`
	DefID  string     `json:"def_id"`
	Owner  PlayerID   `json:"owner"`
	Attack int        `json:"attack"`
	Health int        `json:"health"`
	Tapped bool       `json:"tapped,omitempty"`
	Sick   bool       `json:"sick,omitempty"`
	Zone   Zone       `json:"zone"`
	Slot   int        `json:"slot"` // meaningful only while Zone == ZoneBoard
}

type PlayerState struct {
	ID        PlayerID     `json:"id"`
	Health    int          `json:"health"`
	Mana      int          `json:"mana"`
	MaxMana   int          `json:"max_mana"`
	Hand      []InstanceID `json:"hand"`
	Deck      []InstanceID `json:"deck"`
	Graveyard []InstanceID `json:"graveyard"`
}

// MatchState is the single authoritative representation of one match.
// Board contents are derived from Instances (Zone == ZoneBoard + Slot), so
// a card can never be on the board and somewhere else at the same time.
type MatchState struct {
	Players    [2]*PlayerState              `json:"players"`
	Instances  map[InstanceID]*CardInstance `json:"instances"`
	TurnOwner  PlayerID                     `json:"turn_owner"`
	TurnNumber int                          `json:"turn_number"`
	Phase      Phase                        `json:"phase"`
	Winner     PlayerID                     `json:"winner,omitempty"`
	EndReason  EndReason                    `json:"end_reason,omitempty"`
}

// Setup carries the match-start parameters. Loaded from config, not
// hardcoded, so tests can shrink them.
type Setup struct {
	StartingHealth int
	StartingHand   int
	DeckSize       int
}

// Spawn describes one card to shuffle into a starting deck.
type Spawn struct {
	DefID  string
	Attack int
	Health int
}

// NewMatch builds the authoritative state for two players with their decks
// already ordered (shuffling is the caller's concern so matches stay
// deterministic under test). Instance ids are assigned here and never again.
func NewMatch(setup Setup, a, b PlayerID, deckA, deckB []Spawn) *MatchState {
	s := &MatchState{
		Instances:  make(map[InstanceID]*CardInstance),
		TurnOwner:  a,
		TurnNumber: 0,
		Phase:      PhaseLobby,
	}
	next := InstanceID(1)
	build := func(id PlayerID, deck []Spawn) *PlayerState {
		p := &PlayerState{
			ID:        id,
			Health:    setup.StartingHealth,
			Hand:      []InstanceID{},
			Deck:      []InstanceID{},
			Graveyard: []InstanceID{},
		}
		for _, sp := range deck {
			inst := &CardInstance{
				ID:     next,
				DefID:  sp.DefID,
				Owner:  id,
				Attack: sp.Attack,
				Health: sp.Health,
				Zone:   ZoneDeck,
			}
			s.Instances[inst.ID] = inst
			p.Deck = append(p.Deck, inst.ID)
			next++
		}
		return p
	}
	s.Players[0] = build(a, deckA)
	s.Players[1] = build(b, deckB)

	for _, p := range s.Players {
		for i := 0; i < setup.StartingHand && len(p.Deck) > 0; i++ {
			drawCard(s, p)
		}
	}
	return s
}

// Begin moves the match out of the lobby once both seats are filled. The
// first turn belongs to player A; their mana ramps through advanceTurn so
// both players see identical start-of-turn handling.
func (s *MatchState) Begin() []Event {
	s.Phase = PhaseInProgress
	// advanceTurn swaps owners, so point at B before the first swap.
	s.TurnOwner = s.Players[1].ID
	return advanceTurn(s)
}

func (s *MatchState) Player(id PlayerID) *PlayerState {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *MatchState) Opponent(id PlayerID) *PlayerState {
	for _, p := range s.Players {
		if p.ID != id {
			return p
		}
	}
	return nil
}

// boardAt returns the instance occupying a player's board slot, or nil.
func boardAt(s *MatchState, owner PlayerID, slot int) *CardInstance {
	for _, inst := range s.Instances {
		if inst.Zone == ZoneBoard && inst.Owner == owner && inst.Slot == slot {
			return inst
		}
	}
	return nil
}

// Clone deep-copies the match state. Apply mutates a clone so a rejected
// action can never leave a half-applied authoritative state behind.
func (s *MatchState) Clone() *MatchState {
	c := &MatchState{
		Instances:  make(map[InstanceID]*CardInstance, len(s.Instances)),
		TurnOwner:  s.TurnOwner,
		TurnNumber: s.TurnNumber,
		Phase:      s.Phase,
		Winner:     s.Winner,
		EndReason:  s.EndReason,
	}
	for id, inst := range s.Instances {
		cp := *inst
		c.Instances[id] = &cp
	}
	for i, p := range s.Players {
		cp := *p
		cp.Hand = append([]InstanceID{}, p.Hand...)
		cp.Deck = append([]InstanceID{}, p.Deck...)
		cp.Graveyard = append([]InstanceID{}, p.Graveyard...)
		c.Players[i] = &cp
	}
	return c
}
