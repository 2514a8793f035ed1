package engine

import "errors"

var ErrWrongTurn = errors.New("not your turn")
var ErrMatchNotInProgress = errors.New("match not in progress")
var ErrNotEnoughMana = errors.New("not enough mana")
var ErrSlotOccupied = errors.New("board slot occupied")
var ErrInvalidSlot = errors.New("invalid board slot")
var ErrCardNotInHand = errors.New("card not in hand")
var ErrCardNotOnBoard = errors.New("card not on board")
var ErrNotYourCard = errors.New("card not owned by requester")
var ErrCardTapped = errors.New("card already tapped")
var ErrSummoningSick = errors.New("card has summoning sickness")
var ErrInvalidTarget = errors.New("invalid target")
var ErrUnknownCard = errors.New("unknown card instance")
var ErrNoAbility = errors.New("card has no ability")
var ErrUnsupportedAction = errors.New("unsupported action")

type ActionKind string

const (
	ActPlayCard   ActionKind = "PlayCard"
	ActAttack     ActionKind = "Attack"
	ActUseAbility ActionKind = "UseAbility"
	ActEndTurn    ActionKind = "EndTurn"
	ActConcede    ActionKind = "Concede"
)

type TargetKind string

const (
	TargetCard   TargetKind = "card"
	TargetPlayer TargetKind = "player"
)

// Target is the tagged-variant target of an attack or ability.
type Target struct {
	Kind   TargetKind `json:"kind"`
	Card   InstanceID `json:"card,omitempty"`
	Player PlayerID   `json:"player,omitempty"`
}

// Action is one requested mutation, attributed to a player. Which payload
// fields matter depends on Kind.
type Action struct {
	Kind     ActionKind `json:"kind"`
	Player   PlayerID   `json:"player"`
	Card     InstanceID `json:"card,omitempty"`     // PlayCard: hand card, UseAbility: source
	Slot     int        `json:"slot,omitempty"`     // PlayCard
	Attacker InstanceID `json:"attacker,omitempty"` // Attack
	Target   Target     `json:"target,omitempty"`   // Attack, UseAbility
}

// AbilityBinding names an ability on a card definition. The engine treats
// the binding as opaque; resolution happens in the AbilityResolver.
type AbilityBinding struct {
	ID        string     `json:"id"`
	Cost      int        `json:"cost"`
	Targets   TargetKind `json:"targets"`
	WhileSick bool       `json:"while_sick,omitempty"` // exempt from summoning sickness
}

// Definition is the static card template. Read-only lookup data.
type Definition struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Cost    int             `json:"cost"`
	Attack  int             `json:"attack"`
	Health  int             `json:"health"`
	Ability *AbilityBinding `json:"ability,omitempty"`
}

// CardLibrary is the card-definition lookup collaborator. Never mutated.
type CardLibrary interface {
	GetDefinition(defID string) (Definition, bool)
}

// HealthDelta is one health change produced by an ability.
type HealthDelta struct {
	Kind   TargetKind
	Player PlayerID
	Card   InstanceID
	Delta  int
}

// EffectResult is what an ability resolution wants done to the state. The
// engine applies it; the resolver never touches state itself.
type EffectResult struct {
	HealthDeltas []HealthDelta
	Draws        int // cards the source's owner draws
	Destroys     []InstanceID
}

// AbilityResolver must be a deterministic pure function of its inputs.
type AbilityResolver interface {
	ResolveAbility(binding AbilityBinding, source CardInstance, target Target) (EffectResult, error)
}

// Deps are the collaborators Apply and Validate consult. Both remain pure
// as long as the collaborators are.
type Deps struct {
	Library  CardLibrary
	Resolver AbilityResolver
}

// Validate checks whether an action is legal against the given state. It
// performs no mutation, so rejected actions are free of side effects and
// trivially idempotent.
func Validate(deps Deps, s *MatchState, act Action) error {
	// Paused passes here: the engine only knows a live match. Which
	// action kinds survive a pause is session policy, enforced upstream.
	if s.Phase != PhaseInProgress && s.Phase != PhasePaused {
		return ErrMatchNotInProgress
	}
	if s.Player(act.Player) == nil {
		return ErrInvalidTarget
	}
	// Conceding is the one owner-independent action.
	if act.Kind != ActConcede && act.Player != s.TurnOwner {
		return ErrWrongTurn
	}

	switch act.Kind {
	case ActPlayCard:
		return validatePlayCard(deps, s, act)
	case ActAttack:
		return validateAttack(s, act)
	case ActUseAbility:
		return validateUseAbility(deps, s, act)
	case ActEndTurn, ActConcede:
		return nil
	default:
		return ErrUnsupportedAction
	}
}

func validatePlayCard(deps Deps, s *MatchState, act Action) error {
	p := s.Player(act.Player)
	inst, ok := s.Instances[act.Card]
	if !ok {
		return ErrUnknownCard
	}
	if inst.Owner != act.Player || inst.Zone != ZoneHand {
		return ErrCardNotInHand
	}
	def, ok := deps.Library.GetDefinition(inst.DefID)
	if !ok {
		return ErrUnknownCard
	}
	if def.Cost > p.Mana {
		return ErrNotEnoughMana
	}
	if act.Slot < 0 || act.Slot >= BoardSlots {
		return ErrInvalidSlot
	}
	if boardAt(s, act.Player, act.Slot) != nil {
		return ErrSlotOccupied
	}
	return nil
}

func validateAttack(s *MatchState, act Action) error {
	atk, ok := s.Instances[act.Attacker]
	if !ok {
		return ErrUnknownCard
	}
	if atk.Owner != act.Player {
		return ErrNotYourCard
	}
	if atk.Zone != ZoneBoard {
		return ErrCardNotOnBoard
	}
	if atk.Tapped {
		return ErrCardTapped
	}
	if atk.Sick {
		return ErrSummoningSick
	}
	return validateTarget(s, act.Player, act.Target)
}

func validateUseAbility(deps Deps, s *MatchState, act Action) error {
	src, ok := s.Instances[act.Card]
	if !ok {
		return ErrUnknownCard
	}
	if src.Owner != act.Player {
		return ErrNotYourCard
	}
	if src.Zone != ZoneBoard {
		return ErrCardNotOnBoard
	}
	def, ok := deps.Library.GetDefinition(src.DefID)
	if !ok {
		return ErrUnknownCard
	}
	if def.Ability == nil {
		return ErrNoAbility
	}
	if src.Tapped {
		return ErrCardTapped
	}
	if src.Sick && !def.Ability.WhileSick {
		return ErrSummoningSick
	}
	if def.Ability.Cost > s.Player(act.Player).Mana {
		return ErrNotEnoughMana
	}
	if act.Target.Kind != def.Ability.Targets {
		return ErrInvalidTarget
	}
	return validateTarget(s, act.Player, act.Target)
}

// validateTarget checks that the target exists. Either side is targetable;
// healing abilities pick friendly targets.
func validateTarget(s *MatchState, actor PlayerID, t Target) error {
	switch t.Kind {
	case TargetPlayer:
		if s.Player(t.Player) == nil {
			return ErrInvalidTarget
		}
	case TargetCard:
		inst, ok := s.Instances[t.Card]
		if !ok || inst.Zone != ZoneBoard {
			return ErrInvalidTarget
		}
	default:
		return ErrInvalidTarget
	}
	return nil
}
