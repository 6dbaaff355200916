package combatant

import (
	"math"

	"github.com/marchaven/roadband/internal/game/stats"
	"github.com/marchaven/roadband/internal/game/status"
)

// State is a read-only snapshot of a combatant for queries, events, and the
// UI overlay. Pools are reported rounded; the simulation keeps floats
// internally.
type State struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Side        Side               `json:"side"`
	Role        Role               `json:"role"`
	ArchetypeID string             `json:"archetypeId,omitempty"`
	Slot        int                `json:"slot"`
	Health      int                `json:"health"`
	MaxHealth   int                `json:"maxHealth"`
	Resource    int                `json:"resource"`
	MaxResource int                `json:"maxResource"`
	Defeated    bool               `json:"defeated"`
	Stats       stats.Block        `json:"stats"`
	ReadyIn     float64            `json:"readyIn"`
	Cooldowns   map[string]float64 `json:"cooldowns,omitempty"`
	Effects     []status.View      `json:"effects,omitempty"`
}

// Snapshot captures the combatant's externally visible state.
func (c *Combatant) Snapshot() State {
	return State{
		ID:          c.ID,
		Name:        c.Name,
		Side:        c.Side,
		Role:        c.Role,
		ArchetypeID: c.ArchetypeID,
		Slot:        c.Slot,
		Health:      int(math.Round(c.Health)),
		MaxHealth:   int(math.Round(c.Current.MaxHealth)),
		Resource:    int(math.Round(c.Resource)),
		MaxResource: int(math.Round(c.Current.MaxResource)),
		Defeated:    c.Defeated(),
		Stats:       c.Current.Clone(),
		ReadyIn:     c.ReadyIn(),
		Cooldowns:   c.Cooldowns(),
		Effects:     c.Effects.Snapshot(),
	}
}
