package engine

// PlayerSnapshot is a deep, self-contained copy of one player's
// synchronized fields, captured at the moment of disconnect. The
// authoritative MatchState stays the source of truth throughout a pause;
// the snapshot only proves to the rejoining client that nothing moved.
type PlayerSnapshot struct {
	Player    PlayerID
	Health    int
	Mana      int
	Hand      []InstanceID
	Deck      []InstanceID
	Graveyard []InstanceID
	Board     []CardInstance
}

// CapturePlayer snapshots a player's state. Board cards are copied by
// value so later mutations of the live state cannot leak in.
func CapturePlayer(s *MatchState, id PlayerID) PlayerSnapshot {
	p := s.Player(id)
	snap := PlayerSnapshot{
		Player:    id,
		Health:    p.Health,
		Mana:      p.Mana,
		Hand:      append([]InstanceID{}, p.Hand...),
		Deck:      append([]InstanceID{}, p.Deck...),
		Graveyard: append([]InstanceID{}, p.Graveyard...),
	}
	for _, inst := range s.Instances {
		if inst.Owner == id && inst.Zone == ZoneBoard {
			snap.Board = append(snap.Board, *inst)
		}
	}
	return snap
}

// Matches reports whether the live state still agrees with the snapshot.
// Used to assert the store was frozen for the player during a pause.
func (snap PlayerSnapshot) Matches(s *MatchState) bool {
	p := s.Player(snap.Player)
	if p == nil || p.Health != snap.Health || p.Mana != snap.Mana {
		return false
	}
	if !equalIDs(p.Hand, snap.Hand) || !equalIDs(p.Deck, snap.Deck) || !equalIDs(p.Graveyard, snap.Graveyard) {
		return false
	}
	live := 0
	for _, inst := range s.Instances {
		if inst.Owner == snap.Player && inst.Zone == ZoneBoard {
			live++
			found := false
			for _, b := range snap.Board {
				if b == *inst {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return live == len(snap.Board)
}

func equalIDs(a, b []InstanceID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
