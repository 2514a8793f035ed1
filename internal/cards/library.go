// Package cards holds the static card content consumed by the engine. It
// is read-only lookup data; nothing in here mutates match state.
package cards

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/cardclash/battle-backend/internal/engine"
)

//go:embed defs.json
var rawDefs []byte

// Library implements engine.CardLibrary over the embedded definition set.
type Library struct {
	defs  map[string]engine.Definition
	order []string
}

func NewLibrary() (*Library, error) {
	var list []engine.Definition
	if err := json.Unmarshal(rawDefs, &list); err != nil {
		return nil, fmt.Errorf("parse card definitions: %w", err)
	}
	lib := &Library{defs: make(map[string]engine.Definition, len(list))}
	for _, d := range list {
		if _, dup := lib.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate card definition %q", d.ID)
		}
		lib.defs[d.ID] = d
		lib.order = append(lib.order, d.ID)
	}
	return lib, nil
}

func (l *Library) GetDefinition(defID string) (engine.Definition, bool) {
	d, ok := l.defs[defID]
	return d, ok
}

// BuildDeck produces a shuffled deck of the requested size, cycling
// through the definition set. The rng is supplied by the caller so match
// setup stays reproducible from a seed.
func (l *Library) BuildDeck(rng *rand.Rand, size int) []engine.Spawn {
	deck := make([]engine.Spawn, 0, size)
	for i := 0; i < size; i++ {
		d := l.defs[l.order[i%len(l.order)]]
		deck = append(deck, engine.Spawn{DefID: d.ID, Attack: d.Attack, Health: d.Health})
	}
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}
