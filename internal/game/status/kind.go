// Package status implements the timed status-effect engine: buffs, debuffs,
// damage and healing over time, stuns, and absorb shields, tracked per
// combatant with stacking and periodic-pulse semantics.
package status

// Kind classifies a status effect. Bleed and poison are damage-over-time
// kinds that keep their own identity for immunity and dispel targeting.
type Kind string

const (
	KindStun   Kind = "stun"
	KindBleed  Kind = "bleed"
	KindPoison Kind = "poison"
	KindBuff   Kind = "buff"
	KindDebuff Kind = "debuff"
	KindDoT    Kind = "dot"
	KindHoT    Kind = "hot"
	KindShield Kind = "shield"
)

// KnownKind reports whether k is one of the defined effect kinds.
func KnownKind(k Kind) bool {
	switch k {
	case KindStun, KindBleed, KindPoison, KindBuff, KindDebuff, KindDoT, KindHoT, KindShield:
		return true
	}
	return false
}

// Periodic reports whether k pulses on an interval.
func (k Kind) Periodic() bool {
	switch k {
	case KindBleed, KindPoison, KindDoT, KindHoT:
		return true
	}
	return false
}

// Harmful reports whether k is a detrimental effect (used by dispels and
// periodic damage application).
func (k Kind) Harmful() bool {
	switch k {
	case KindStun, KindBleed, KindPoison, KindDebuff, KindDoT:
		return true
	}
	return false
}

// StackPolicy controls what happens when an effect of the same kind and
// source is applied again.
type StackPolicy string

const (
	// PolicyRefresh resets the remaining duration to the new effect's full
	// duration without changing stacks. This is the default for most buffs
	// and debuffs.
	PolicyRefresh StackPolicy = "refresh"
	// PolicyStack increments the stack counter up to the cap and also
	// refreshes the duration. Used by stacking DoTs.
	PolicyStack StackPolicy = "stack"
)

// KnownPolicy reports whether p is a defined stacking policy.
func KnownPolicy(p StackPolicy) bool {
	return p == PolicyRefresh || p == PolicyStack
}
