// Package resolver computes damage and healing outcomes. It is pure
// computation: it reads combatant state and draws randomness, but the
// caller applies the resulting deltas and consumes shield capacity. All
// intermediate math stays in floating point; rounding happens once, at the
// point of application.
package resolver

import (
	"fmt"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/rng"
	"github.com/marchaven/roadband/internal/game/status"
)

// Tuning carries the combat-formula constants. They are injected rather
// than declared as package constants so balance passes can tune them from
// config and tests can pin them.
type Tuning struct {
	// CritMultiplier scales a critical hit or heal. Default 2.0.
	CritMultiplier float64
	// BlockReduction is the fraction of damage removed by a successful
	// block.
	BlockReduction float64
	// ResistScale is the soft-cap constant in the mitigation curve
	// resist/(resist+scale). Larger values make resistance ratings weaker.
	ResistScale float64
	// MaxMitigation caps the curve so damage is never reduced below
	// (1 - MaxMitigation) of its post-crit value.
	MaxMitigation float64
}

// DefaultTuning returns the baseline combat constants.
func DefaultTuning() Tuning {
	return Tuning{
		CritMultiplier: 2.0,
		BlockReduction: 0.3,
		ResistScale:    100,
		MaxMitigation:  0.75,
	}
}

// Validate checks the tuning constants are inside their workable ranges.
func (t Tuning) Validate() error {
	if t.CritMultiplier < 1 {
		return fmt.Errorf("resolver: critMultiplier must be >= 1, got %v", t.CritMultiplier)
	}
	if t.BlockReduction < 0 || t.BlockReduction > 1 {
		return fmt.Errorf("resolver: blockReduction must be in [0, 1], got %v", t.BlockReduction)
	}
	if t.ResistScale <= 0 {
		return fmt.Errorf("resolver: resistScale must be > 0, got %v", t.ResistScale)
	}
	if t.MaxMitigation < 0 || t.MaxMitigation >= 1 {
		return fmt.Errorf("resolver: maxMitigation must be in [0, 1), got %v", t.MaxMitigation)
	}
	return nil
}

// Result is the outcome of one resolution. Amount is the damage or healing
// to apply after every multiplier and shield absorption; Absorbed is the
// shield capacity the caller must consume from the target.
type Result struct {
	Amount   float64
	Critical bool
	Dodged   bool
	Blocked  bool
	Absorbed float64
}

// Threatworthy returns the amount that counts toward threat generation:
// damage absorbed by shields still represents pressure on the target.
func (r Result) Threatworthy() float64 {
	return r.Amount + r.Absorbed
}

// Resolver owns the combat formulas. It holds no per-encounter state
// beyond its randomness source, so one resolver can serve an encounter for
// its whole lifetime.
type Resolver struct {
	tuning Tuning
	src    rng.Source
}

// New validates the tuning and returns a resolver drawing from src.
func New(tuning Tuning, src rng.Source) (*Resolver, error) {
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("resolver: nil randomness source")
	}
	return &Resolver{tuning: tuning, src: src}, nil
}

// mitigation converts a resistance rating into a damage reduction fraction
// using a diminishing-returns curve, capped at MaxMitigation.
func (r *Resolver) mitigation(resist float64) float64 {
	if resist <= 0 {
		return 0
	}
	m := resist / (resist + r.tuning.ResistScale)
	if m > r.tuning.MaxMitigation {
		return r.tuning.MaxMitigation
	}
	return m
}

// ResolveDamage runs the full damage pipeline for a direct hit:
// base from the actor's power and the ability multiplier, critical roll,
// school mitigation, dodge then block rolls (dodge wins outright), source
// and target damage multipliers, then shield absorption. Randomness is
// drawn in a fixed order (crit, dodge, block) so identical seeds replay
// identically.
func (r *Resolver) ResolveDamage(source, target *combatant.Combatant, def *ability.Definition) Result {
	power := source.Current.AttackPower
	if def.UsesSpellPower() {
		power = source.Current.SpellPower
	}
	amount := def.Multiplier * power

	result := Result{}
	if rng.Chance(r.src, source.Current.CritChance) {
		amount *= r.tuning.CritMultiplier
		result.Critical = true
	}

	amount *= 1 - r.mitigation(target.Current.Resistance(def.School))

	if rng.Chance(r.src, target.Current.DodgeChance) {
		result.Dodged = true
		return result
	}
	if rng.Chance(r.src, target.Current.BlockChance) {
		amount *= 1 - r.tuning.BlockReduction
		result.Blocked = true
	}

	amount *= source.Effects.Modifier().DamageDealtMult
	amount *= target.Effects.Modifier().DamageTakenMult
	if amount < 0 {
		amount = 0
	}

	result.Absorbed = absorbable(target, amount)
	result.Amount = amount - result.Absorbed
	return result
}

// ResolveHealing mirrors the damage pipeline's first two steps: base from
// spell or attack power, then the critical roll. Resistance, dodge, and
// block never apply to healing. Clamping to missing health happens at
// application so overheal can be reported there.
func (r *Resolver) ResolveHealing(source *combatant.Combatant, def *ability.Definition) Result {
	power := source.Current.AttackPower
	if def.UsesSpellPower() {
		power = source.Current.SpellPower
	}
	amount := def.Multiplier * power

	result := Result{}
	if rng.Chance(r.src, source.Current.CritChance) {
		amount *= r.tuning.CritMultiplier
		result.Critical = true
	}
	result.Amount = amount
	return result
}

// ResolvePeriodic computes one DoT or HoT pulse against the target.
// Pulses are deterministic: no critical, dodge, or block rolls. Damage
// pulses still respect school mitigation, the target's damage-taken
// multiplier, and shields; healing pulses apply unmodified.
func (r *Resolver) ResolvePeriodic(target *combatant.Combatant, pulse status.Pulse) Result {
	amount := pulse.Amount
	if pulse.Healing() {
		return Result{Amount: amount}
	}

	amount *= 1 - r.mitigation(target.Current.Resistance(pulse.Effect.School))
	amount *= target.Effects.Modifier().DamageTakenMult
	if amount < 0 {
		amount = 0
	}

	result := Result{}
	result.Absorbed = absorbable(target, amount)
	result.Amount = amount - result.Absorbed
	return result
}

func absorbable(target *combatant.Combatant, amount float64) float64 {
	capacity := target.Effects.ShieldCapacity()
	if capacity >= amount {
		return amount
	}
	return capacity
}
