package engine

import "fmt"

// CheckInvariants verifies the structural guarantees the rest of the
// system leans on. A failure is a bug upstream of the engine, never user
// error; callers force-end the match rather than ignore it.
func CheckInvariants(s *MatchState) error {
	zones := make(map[InstanceID]int)
	for _, p := range s.Players {
		for _, id := range p.Hand {
			zones[id]++
			if inst := s.Instances[id]; inst == nil || inst.Zone != ZoneHand {
				return fmt.Errorf("instance %d listed in %s hand but not in hand zone", id, p.ID)
			}
		}
		for _, id := range p.Deck {
			zones[id]++
			if inst := s.Instances[id]; inst == nil || inst.Zone != ZoneDeck {
				return fmt.Errorf("instance %d listed in %s deck but not in deck zone", id, p.ID)
			}
		}
		for _, id := range p.Graveyard {
			zones[id]++
			if inst := s.Instances[id]; inst == nil || inst.Zone != ZoneGraveyard {
				return fmt.Errorf("instance %d listed in %s graveyard but not in graveyard zone", id, p.ID)
			}
		}
		if p.Health < 0 {
			return fmt.Errorf("player %s health below zero: %d", p.ID, p.Health)
		}
		if p.Mana > p.MaxMana {
			return fmt.Errorf("player %s mana %d exceeds max %d", p.ID, p.Mana, p.MaxMana)
		}
	}
	for id, n := range zones {
		if n > 1 {
			return fmt.Errorf("instance %d referenced from %d zone lists", id, n)
		}
	}

	occupied := make(map[PlayerID]map[int]InstanceID)
	for id, inst := range s.Instances {
		if inst.ID != id {
			return fmt.Errorf("instance map key %d disagrees with id %d", id, inst.ID)
		}
		if inst.Zone == ZoneBoard {
			zones[id]++
			slots := occupied[inst.Owner]
			if slots == nil {
				slots = make(map[int]InstanceID)
				occupied[inst.Owner] = slots
			}
			if prev, taken := slots[inst.Slot]; taken {
				return fmt.Errorf("instances %d and %d share board slot %d", prev, id, inst.Slot)
			}
			slots[inst.Slot] = id
		}
		if zones[id] != 1 {
			return fmt.Errorf("instance %d is in %d zones", id, zones[id])
		}
	}

	if s.Phase == PhaseInProgress && s.Player(s.TurnOwner) == nil {
		return fmt.Errorf("turn owner %q is not a player in this match", s.TurnOwner)
	}
	return nil
}
