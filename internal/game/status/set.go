package status

import (
	"github.com/marchaven/roadband/internal/game/stats"
)

// ApplyOutcome describes what applying an effect to a set did.
type ApplyOutcome string

const (
	// OutcomeApplied means the effect was inserted as a new entry.
	OutcomeApplied ApplyOutcome = "applied"
	// OutcomeRefreshed means an existing kind+source entry had its duration
	// reset.
	OutcomeRefreshed ApplyOutcome = "refreshed"
	// OutcomeStacked means an existing kind+source entry gained a stack and
	// had its duration reset.
	OutcomeStacked ApplyOutcome = "stacked"
	// OutcomeImmune means the owner is immune to the effect's kind and
	// nothing was applied.
	OutcomeImmune ApplyOutcome = "immune"
)

// Set holds a combatant's active status effects in insertion order.
// Insertion order drives shield absorption and pulse resolution, so it is
// part of the simulation contract, not an implementation detail.
//
// A Set is not safe for concurrent use; the encounter tick owns it.
type Set struct {
	effects    []*Effect
	immunities map[Kind]struct{}
	nextSeq    uint64
}

// NewSet returns an empty effect set.
func NewSet() *Set {
	return &Set{immunities: make(map[Kind]struct{})}
}

// Len returns the number of active effects.
func (s *Set) Len() int {
	return len(s.effects)
}

// Apply inserts the effect, or merges it into an existing effect of the
// same kind and source according to the stacking policy. The returned
// effect is the live entry in the set; callers must not retain the incoming
// pointer.
func (s *Set) Apply(incoming *Effect) (*Effect, ApplyOutcome) {
	if s.Immune(incoming.Kind) {
		return nil, OutcomeImmune
	}
	for _, active := range s.effects {
		if active.Kind != incoming.Kind || active.SourceID != incoming.SourceID {
			continue
		}
		if active.Policy == PolicyStack {
			active.addStack(incoming)
			return active, OutcomeStacked
		}
		active.refresh(incoming)
		return active, OutcomeRefreshed
	}
	if incoming.Stacks < 1 {
		incoming.Stacks = 1
	}
	if incoming.Kind == KindShield {
		incoming.Capacity = incoming.Magnitude
	}
	incoming.sequence = s.nextSeq
	s.nextSeq++
	s.effects = append(s.effects, incoming)
	return incoming, OutcomeApplied
}

// Advance moves every effect's clock forward by delta seconds and returns
// the periodic pulses that became due, in insertion order, followed by the
// effects that expired. Expired effects are removed from the set.
//
// Advance must not be called for a defeated combatant: defeat freezes the
// set as-is.
func (s *Set) Advance(delta float64) (pulses []Pulse, expired []*Effect) {
	if delta <= 0 {
		return nil, nil
	}
	for _, active := range s.effects {
		fired := active.advance(delta)
		for i := 0; i < fired; i++ {
			pulses = append(pulses, Pulse{Effect: active, Amount: active.Amount()})
		}
	}
	s.effects, expired = partitionExpired(s.effects)
	return pulses, expired
}

func partitionExpired(effects []*Effect) (alive, expired []*Effect) {
	alive = effects[:0]
	for _, active := range effects {
		if active.Expired() {
			expired = append(expired, active)
			continue
		}
		alive = append(alive, active)
	}
	return alive, expired
}

// Dispel removes every active effect of the given kind and returns them.
func (s *Set) Dispel(kind Kind) []*Effect {
	var removed []*Effect
	alive := s.effects[:0]
	for _, active := range s.effects {
		if active.Kind == kind {
			removed = append(removed, active)
			continue
		}
		alive = append(alive, active)
	}
	s.effects = alive
	return removed
}

// DispelHarmful removes up to n harmful effects in insertion order and
// returns them.
func (s *Set) DispelHarmful(n int) []*Effect {
	var removed []*Effect
	alive := s.effects[:0]
	for _, active := range s.effects {
		if len(removed) < n && active.Kind.Harmful() {
			removed = append(removed, active)
			continue
		}
		alive = append(alive, active)
	}
	s.effects = alive
	return removed
}

// Clear drops every active effect. Used when an encounter tears down and
// heroes shed combat-only effects.
func (s *Set) Clear() []*Effect {
	removed := s.effects
	s.effects = nil
	return removed
}

// SetImmune grants or revokes immunity to a kind. Granting immunity does
// not remove already-active effects; callers that want that behavior dispel
// the kind explicitly.
func (s *Set) SetImmune(kind Kind, immune bool) {
	if immune {
		s.immunities[kind] = struct{}{}
		return
	}
	delete(s.immunities, kind)
}

// Immune reports whether the owner currently ignores effects of the kind.
func (s *Set) Immune(kind Kind) bool {
	_, ok := s.immunities[kind]
	return ok
}

// Stunned reports whether any active effect is a stun.
func (s *Set) Stunned() bool {
	for _, active := range s.effects {
		if active.Kind == KindStun {
			return true
		}
	}
	return false
}

// Modifier aggregates every active effect's stat contribution.
func (s *Set) Modifier() stats.Modifier {
	mods := make([]stats.Modifier, 0, len(s.effects))
	for _, active := range s.effects {
		mods = append(mods, active.Modifier())
	}
	return stats.Merge(mods...)
}

// ShieldCapacity returns the total damage the owner's shields can still
// absorb.
func (s *Set) ShieldCapacity() float64 {
	var total float64
	for _, active := range s.effects {
		if active.Kind == KindShield {
			total += active.Capacity
		}
	}
	return total
}

// ConsumeShield drains amount from the owner's shields in insertion order
// and returns how much was absorbed along with any shields that were fully
// depleted. Depleted shields are removed from the set.
func (s *Set) ConsumeShield(amount float64) (absorbed float64, depleted []*Effect) {
	if amount <= 0 {
		return 0, nil
	}
	remaining := amount
	for _, active := range s.effects {
		if active.Kind != KindShield || remaining <= 0 {
			continue
		}
		drain := active.Capacity
		if drain > remaining {
			drain = remaining
		}
		active.Capacity -= drain
		absorbed += drain
		remaining -= drain
	}
	alive := s.effects[:0]
	for _, active := range s.effects {
		if active.Kind == KindShield && active.Capacity <= timeEpsilon {
			depleted = append(depleted, active)
			continue
		}
		alive = append(alive, active)
	}
	s.effects = alive
	return absorbed, depleted
}

// Snapshot returns read-only views of every active effect in insertion
// order.
func (s *Set) Snapshot() []View {
	views := make([]View, 0, len(s.effects))
	for _, active := range s.effects {
		views = append(views, active.Snapshot())
	}
	return views
}
