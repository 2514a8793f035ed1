package cards

import (
	"fmt"

	"github.com/cardclash/battle-backend/internal/engine"
)

// Ability amounts, keyed by binding id. Kept in one place so tuning does
// not touch resolution logic.
const (
	snipeDamage    = 2
	fireboltDamage = 3
	mendHeal       = 3
	studyDraws     = 1
)

// Resolver is the default engine.AbilityResolver. It is a pure function
// of its inputs: same binding, source and target always produce the same
// EffectResult.
type Resolver struct{}

func NewResolver() Resolver { return Resolver{} }

func (Resolver) ResolveAbility(binding engine.AbilityBinding, source engine.CardInstance, target engine.Target) (engine.EffectResult, error) {
	switch binding.ID {
	case "snipe":
		return engine.EffectResult{HealthDeltas: []engine.HealthDelta{
			{Kind: engine.TargetCard, Card: target.Card, Delta: -snipeDamage},
		}}, nil
	case "firebolt":
		return engine.EffectResult{HealthDeltas: []engine.HealthDelta{
			{Kind: engine.TargetPlayer, Player: target.Player, Delta: -fireboltDamage},
		}}, nil
	case "mend":
		return engine.EffectResult{HealthDeltas: []engine.HealthDelta{
			{Kind: engine.TargetPlayer, Player: target.Player, Delta: mendHeal},
		}}, nil
	case "study":
		return engine.EffectResult{Draws: studyDraws}, nil
	case "execute":
		return engine.EffectResult{Destroys: []engine.InstanceID{target.Card}}, nil
	default:
		return engine.EffectResult{}, fmt.Errorf("unknown ability binding %q", binding.ID)
	}
}
