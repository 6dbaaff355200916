// Package ability defines the data-driven ability catalog: what a combatant
// can do on its turn, how much it costs, what it hits, and which status
// effects it leaves behind. Definitions are loaded from YAML content files
// and validated once at startup.
package ability

import (
	"fmt"
	"strings"

	"github.com/marchaven/roadband/internal/game/stats"
	"github.com/marchaven/roadband/internal/game/status"
)

// Kind classifies what an ability does when it lands.
type Kind string

const (
	KindAttack Kind = "attack"
	KindHeal   Kind = "heal"
	KindAOE    Kind = "aoe"
	KindBuff   Kind = "buff"
	KindDebuff Kind = "debuff"
	KindDoT    Kind = "dot"
	KindHoT    Kind = "hot"
	KindShield Kind = "shield"
)

// KnownKind reports whether k is one of the defined ability kinds.
func KnownKind(k Kind) bool {
	switch k {
	case KindAttack, KindHeal, KindAOE, KindBuff, KindDebuff, KindDoT, KindHoT, KindShield:
		return true
	}
	return false
}

// Offensive reports whether abilities of this kind target enemies of the
// actor. Buff, heal, HoT and shield kinds target allies.
func (k Kind) Offensive() bool {
	switch k {
	case KindAttack, KindAOE, KindDebuff, KindDoT:
		return true
	}
	return false
}

// EffectSpec describes the status effect an ability applies. For periodic,
// shield, buff and debuff kinds it is the primary payload; for attack kinds
// it is an optional rider.
type EffectSpec struct {
	Kind            status.Kind                   `yaml:"kind"`
	Magnitude       float64                       `yaml:"magnitude,omitempty"`
	Duration        float64                       `yaml:"duration"`
	Interval        float64                       `yaml:"interval,omitempty"`
	Stacking        status.StackPolicy            `yaml:"stacking,omitempty"`
	StackCap        int                           `yaml:"stackCap,omitempty"`
	StatMods        map[stats.Attribute]float64   `yaml:"statMods,omitempty"`
	DamageTakenMult float64                       `yaml:"damageTakenMult,omitempty"`
	DamageDealtMult float64                       `yaml:"damageDealtMult,omitempty"`
}

// Definition is a single ability as authored in content. Multiplier scales
// the actor's attack or spell power into a base amount; ThreatFactor scales
// the threat that amount generates.
type Definition struct {
	ID           string       `yaml:"id"`
	Name         string       `yaml:"name"`
	Kind         Kind         `yaml:"kind"`
	School       stats.School `yaml:"school"`
	Cost         float64      `yaml:"cost,omitempty"`
	Cooldown     float64      `yaml:"cooldown,omitempty"`
	Multiplier   float64      `yaml:"multiplier,omitempty"`
	ThreatFactor float64      `yaml:"threatFactor,omitempty"`
	Priority     int          `yaml:"priority,omitempty"`
	MaxTargets   int          `yaml:"maxTargets,omitempty"`
	Effect       *EffectSpec  `yaml:"effect,omitempty"`
	Taunt        bool         `yaml:"taunt,omitempty"`
	TauntTicks   int          `yaml:"tauntTicks,omitempty"`
	// HealThreshold overrides the healer policy's configured health-percentage
	// threshold for this ability when set. Zero means use the configured value.
	HealThreshold float64 `yaml:"healThreshold,omitempty"`
}

// UsesSpellPower reports whether the ability scales with spell power rather
// than attack power. Physical-school abilities use attack power.
func (d *Definition) UsesSpellPower() bool {
	return d.School != stats.SchoolPhysical
}

// threatOrDefault returns the authored threat factor, or 1 when unset.
func (d *Definition) threatOrDefault() float64 {
	if d.ThreatFactor <= 0 {
		return 1
	}
	return d.ThreatFactor
}

// Threat converts an amount of damage or healing into threat for this
// ability.
func (d *Definition) Threat(amount float64) float64 {
	return amount * d.threatOrDefault()
}

// Validate checks the definition against the authoring rules and returns a
// list of violations. An empty list indicates a valid definition.
func (d *Definition) Validate() []error {
	var violations []error
	if strings.TrimSpace(d.ID) == "" {
		violations = append(violations, fmt.Errorf("ability is missing an id"))
	}
	if strings.TrimSpace(d.Name) == "" {
		violations = append(violations, fmt.Errorf("ability %q is missing a name", d.ID))
	}
	if !KnownKind(d.Kind) {
		violations = append(violations, fmt.Errorf("ability %q has unknown kind %q", d.ID, d.Kind))
		return violations
	}
	if d.School != "" && !stats.KnownSchool(d.School) {
		violations = append(violations, fmt.Errorf("ability %q has unknown school %q", d.ID, d.School))
	}
	if d.Cost < 0 {
		violations = append(violations, fmt.Errorf("ability %q has negative cost %v", d.ID, d.Cost))
	}
	if d.Cooldown < 0 {
		violations = append(violations, fmt.Errorf("ability %q has negative cooldown %v", d.ID, d.Cooldown))
	}
	if d.Multiplier < 0 {
		violations = append(violations, fmt.Errorf("ability %q has negative multiplier %v", d.ID, d.Multiplier))
	}
	if d.ThreatFactor < 0 {
		violations = append(violations, fmt.Errorf("ability %q has negative threat factor %v", d.ID, d.ThreatFactor))
	}
	switch d.Kind {
	case KindAttack, KindHeal:
		if d.Multiplier <= 0 {
			violations = append(violations, fmt.Errorf("ability %q of kind %q requires a positive multiplier", d.ID, d.Kind))
		}
	case KindAOE:
		if d.Multiplier <= 0 {
			violations = append(violations, fmt.Errorf("ability %q of kind %q requires a positive multiplier", d.ID, d.Kind))
		}
		if d.MaxTargets < 1 {
			violations = append(violations, fmt.Errorf("ability %q of kind aoe requires maxTargets >= 1", d.ID))
		}
	case KindBuff, KindDebuff, KindDoT, KindHoT, KindShield:
		if d.Effect == nil {
			violations = append(violations, fmt.Errorf("ability %q of kind %q requires an effect", d.ID, d.Kind))
		}
	}
	if d.MaxTargets < 0 {
		violations = append(violations, fmt.Errorf("ability %q has negative maxTargets %d", d.ID, d.MaxTargets))
	}
	if d.Taunt && d.TauntTicks < 1 {
		violations = append(violations, fmt.Errorf("ability %q taunts but has tauntTicks %d", d.ID, d.TauntTicks))
	}
	if d.HealThreshold < 0 || d.HealThreshold > 1 {
		violations = append(violations, fmt.Errorf("ability %q has healThreshold %v outside [0,1]", d.ID, d.HealThreshold))
	}
	if d.Effect != nil {
		violations = append(violations, d.Effect.validate(d.ID, d.Kind)...)
	}
	return violations
}

func (e *EffectSpec) validate(abilityID string, kind Kind) []error {
	var violations []error
	if !status.KnownKind(e.Kind) {
		violations = append(violations, fmt.Errorf("ability %q effect has unknown kind %q", abilityID, e.Kind))
		return violations
	}
	if e.Duration <= 0 {
		violations = append(violations, fmt.Errorf("ability %q effect requires a positive duration", abilityID))
	}
	if e.Kind.Periodic() {
		if e.Interval <= 0 {
			violations = append(violations, fmt.Errorf("ability %q periodic effect requires a positive interval", abilityID))
		}
		if e.Magnitude <= 0 {
			violations = append(violations, fmt.Errorf("ability %q periodic effect requires a positive magnitude", abilityID))
		}
	}
	if e.Kind == status.KindShield && e.Magnitude <= 0 {
		violations = append(violations, fmt.Errorf("ability %q shield effect requires a positive magnitude", abilityID))
	}
	if e.Stacking != "" && !status.KnownPolicy(e.Stacking) {
		violations = append(violations, fmt.Errorf("ability %q effect has unknown stacking policy %q", abilityID, e.Stacking))
	}
	if e.Stacking == status.PolicyStack && e.StackCap < 1 {
		violations = append(violations, fmt.Errorf("ability %q stacking effect requires stackCap >= 1", abilityID))
	}
	if e.DamageTakenMult < 0 {
		violations = append(violations, fmt.Errorf("ability %q effect has negative damageTakenMult %v", abilityID, e.DamageTakenMult))
	}
	if e.DamageDealtMult < 0 {
		violations = append(violations, fmt.Errorf("ability %q effect has negative damageDealtMult %v", abilityID, e.DamageDealtMult))
	}
	for attr := range e.StatMods {
		if !stats.KnownAttribute(attr) {
			violations = append(violations, fmt.Errorf("ability %q effect modifies unknown attribute %q", abilityID, attr))
		}
	}
	if kind == KindBuff || kind == KindDebuff {
		if len(e.StatMods) == 0 && e.DamageTakenMult == 0 && e.DamageDealtMult == 0 && e.Kind != status.KindStun {
			violations = append(violations, fmt.Errorf("ability %q %s effect modifies nothing", abilityID, kind))
		}
	}
	return violations
}

// Policy returns the effect's stacking policy, defaulting to refresh.
func (e *EffectSpec) Policy() status.StackPolicy {
	if e.Stacking == "" {
		return status.PolicyRefresh
	}
	return e.Stacking
}

// BuildEffect constructs the runtime status effect this ability applies,
// attributed to the given source combatant. Returns nil for abilities with
// no effect payload.
func (d *Definition) BuildEffect(sourceID string) *status.Effect {
	if d.Effect == nil {
		return nil
	}
	spec := d.Effect
	mods := stats.NewModifier()
	for attr, delta := range spec.StatMods {
		mods.Add[attr] = delta
	}
	if spec.DamageTakenMult > 0 {
		mods.DamageTakenMult = spec.DamageTakenMult
	}
	if spec.DamageDealtMult > 0 {
		mods.DamageDealtMult = spec.DamageDealtMult
	}
	return &status.Effect{
		AbilityID: d.ID,
		Name:      d.Name,
		Kind:      spec.Kind,
		School:    d.School,
		SourceID:  sourceID,
		Magnitude: spec.Magnitude,
		Duration:  spec.Duration,
		Interval:  spec.Interval,
		StackCap:  spec.StackCap,
		Policy:    spec.Policy(),
		Mods:      mods,
	}
}
