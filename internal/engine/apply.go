package engine

import "fmt"

type EventType string

const (
	EvtCardPlayed    EventType = "CardPlayed"
	EvtCardDrawn     EventType = "CardDrawn"
	EvtManaChanged   EventType = "ManaChanged"
	EvtAttacked      EventType = "Attacked"
	EvtAbilityUsed   EventType = "AbilityUsed"
	EvtHealthChanged EventType = "HealthChanged"
	EvtCardDied      EventType = "CardDied"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtMatchEnded    EventType = "MatchEnded"
)

// Event is one observable state change. A delta is the ordered list of
// events produced by a single applied action.
type Event struct {
	Type   EventType  `json:"type"`
	Player PlayerID   `json:"player,omitempty"`
	Card   InstanceID `json:"card,omitempty"`
	Target Target     `json:"target,omitempty"`
	Slot   int        `json:"slot,omitempty"`
	Delta  int        `json:"delta,omitempty"`
	Value  int        `json:"value,omitempty"` // new health / mana / turn number
	Reason EndReason  `json:"reason,omitempty"`
}

// Apply validates and applies one action. On success it returns the events
// describing the change and the new state; the input state is never
// touched. On rejection it returns the input state unchanged, so calling
// it again with the same illegal action changes nothing either time.
func Apply(deps Deps, s *MatchState, act Action) ([]Event, *MatchState, error) {
	if err := Validate(deps, s, act); err != nil {
		return nil, s, err
	}

	ns := s.Clone()
	var events []Event

	switch act.Kind {
	case ActPlayCard:
		events = applyPlayCard(deps, ns, act)
	case ActAttack:
		events = applyAttack(ns, act)
	case ActUseAbility:
		var err error
		if events, err = applyUseAbility(deps, ns, act); err != nil {
			return nil, s, err
		}
	case ActEndTurn:
		events = advanceTurn(ns)
	case ActConcede:
		events = endMatch(ns, ns.Opponent(act.Player).ID, EndConcede)
	}
	return events, ns, nil
}

// AdvanceTurn swaps the turn owner outside of a client action (start of
// match). Re-entrant advancement is impossible through the public API: the
// swap itself revokes the previous owner's turn, so a second EndTurn from
// the same player is rejected as ErrWrongTurn before it gets here.
func AdvanceTurn(s *MatchState, by PlayerID) ([]Event, *MatchState, error) {
	if s.Phase != PhaseInProgress {
		return nil, s, ErrMatchNotInProgress
	}
	if by != s.TurnOwner {
		return nil, s, ErrWrongTurn
	}
	ns := s.Clone()
	return advanceTurn(ns), ns, nil
}

func applyPlayCard(deps Deps, s *MatchState, act Action) []Event {
	p := s.Player(act.Player)
	inst := s.Instances[act.Card]
	def, _ := deps.Library.GetDefinition(inst.DefID)

	p.Mana -= def.Cost
	removeID(&p.Hand, inst.ID)
	inst.Zone = ZoneBoard
	inst.Slot = act.Slot
	inst.Sick = true

	return []Event{
		{Type: EvtCardPlayed, Player: act.Player, Card: inst.ID, Slot: act.Slot},
		{Type: EvtManaChanged, Player: act.Player, Delta: -def.Cost, Value: p.Mana},
	}
}

// applyAttack resolves combat atomically: damage, retaliation and deaths
// land in one delta, so observers never see a dead card still on the board
// or health between zero and its pre-attack value.
func applyAttack(s *MatchState, act Action) []Event {
	atk := s.Instances[act.Attacker]
	atk.Tapped = true

	events := []Event{
		{Type: EvtAttacked, Player: act.Player, Card: atk.ID, Target: act.Target},
	}
	switch act.Target.Kind {
	case TargetPlayer:
		events = append(events, damagePlayer(s, act.Target.Player, atk.Attack)...)
	case TargetCard:
		tgt := s.Instances[act.Target.Card]
		events = append(events, damageCard(s, tgt, atk.Attack)...)
		// Defender strikes back while it still can.
		if tgt.Attack > 0 {
			events = append(events, damageCard(s, atk, tgt.Attack)...)
		}
	}
	return events
}

func applyUseAbility(deps Deps, s *MatchState, act Action) ([]Event, error) {
	src := s.Instances[act.Card]
	def, _ := deps.Library.GetDefinition(src.DefID)
	binding := *def.Ability

	// Resolve before any mutation: a failing resolver rejects the action
	// without spending mana or tapping the source.
	result, err := deps.Resolver.ResolveAbility(binding, *src, act.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve ability %q: %w", binding.ID, err)
	}

	p := s.Player(act.Player)
	p.Mana -= binding.Cost
	src.Tapped = true

	events := []Event{
		{Type: EvtAbilityUsed, Player: act.Player, Card: src.ID, Target: act.Target},
		{Type: EvtManaChanged, Player: act.Player, Delta: -binding.Cost, Value: p.Mana},
	}
	for _, hd := range result.HealthDeltas {
		switch hd.Kind {
		case TargetPlayer:
			events = append(events, damagePlayer(s, hd.Player, -hd.Delta)...)
		case TargetCard:
			if inst, ok := s.Instances[hd.Card]; ok && inst.Zone == ZoneBoard {
				events = append(events, damageCard(s, inst, -hd.Delta)...)
			}
		}
	}
	for _, id := range result.Destroys {
		if inst, ok := s.Instances[id]; ok && inst.Zone == ZoneBoard {
			events = append(events, killCard(s, inst))
		}
	}
	for i := 0; i < result.Draws; i++ {
		if ev, ok := draw(s, p); ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

// damageCard applies a (possibly negative, i.e. healing) hit to a board
// card, moving it to the graveyard in the same delta when it dies.
func damageCard(s *MatchState, inst *CardInstance, amount int) []Event {
	inst.Health -= amount
	events := []Event{
		{Type: EvtHealthChanged, Player: inst.Owner, Card: inst.ID, Delta: -amount, Value: inst.Health},
	}
	if inst.Health <= 0 {
		events = append(events, killCard(s, inst))
	}
	return events
}

func damagePlayer(s *MatchState, id PlayerID, amount int) []Event {
	p := s.Player(id)
	p.Health -= amount
	if p.Health < 0 {
		p.Health = 0
	}
	events := []Event{
		{Type: EvtHealthChanged, Player: id, Delta: -amount, Value: p.Health},
	}
	if p.Health == 0 {
		events = append(events, endMatch(s, s.Opponent(id).ID, EndDefeat)...)
	}
	return events
}

func killCard(s *MatchState, inst *CardInstance) Event {
	inst.Zone = ZoneGraveyard
	inst.Slot = 0
	owner := s.Player(inst.Owner)
	owner.Graveyard = append(owner.Graveyard, inst.ID)
	return Event{Type: EvtCardDied, Player: inst.Owner, Card: inst.ID}
}

// advanceTurn hands the turn to the other player: untap, shake off
// summoning sickness, grow and refill mana, draw one.
func advanceTurn(s *MatchState) []Event {
	next := s.Opponent(s.TurnOwner)
	s.TurnOwner = next.ID
	s.TurnNumber++

	for _, inst := range s.Instances {
		if inst.Owner == next.ID && inst.Zone == ZoneBoard {
			inst.Tapped = false
			inst.Sick = false
		}
	}
	if next.MaxMana < ManaCap {
		next.MaxMana++
	}
	next.Mana = next.MaxMana

	events := []Event{
		{Type: EvtTurnAdvanced, Player: next.ID, Value: s.TurnNumber},
		{Type: EvtManaChanged, Player: next.ID, Value: next.Mana},
	}
	if ev, ok := draw(s, next); ok {
		events = append(events, ev)
	}
	return events
}

func endMatch(s *MatchState, winner PlayerID, reason EndReason) []Event {
	if s.Phase == PhaseEnded {
		return nil
	}
	s.Phase = PhaseEnded
	s.Winner = winner
	s.EndReason = reason
	return []Event{{Type: EvtMatchEnded, Player: winner, Reason: reason}}
}

// EndMatch force-terminates a match from outside the action path (forfeit,
// abandonment, invariant breach). Ending an already ended match is a no-op.
func EndMatch(s *MatchState, winner PlayerID, reason EndReason) ([]Event, *MatchState) {
	if s.Phase == PhaseEnded {
		return nil, s
	}
	ns := s.Clone()
	return endMatch(ns, winner, reason), ns
}

// draw moves the top deck card to hand. An empty deck draws nothing.
func draw(s *MatchState, p *PlayerState) (Event, bool) {
	if len(p.Deck) == 0 {
		return Event{}, false
	}
	id := p.Deck[0]
	p.Deck = p.Deck[1:]
	p.Hand = append(p.Hand, id)
	s.Instances[id].Zone = ZoneHand
	return Event{Type: EvtCardDrawn, Player: p.ID, Card: id}, true
}

func drawCard(s *MatchState, p *PlayerState) {
	_, _ = draw(s, p)
}

func removeID(ids *[]InstanceID, id InstanceID) {
	for i, v := range *ids {
		if v == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return
		}
	}
}
