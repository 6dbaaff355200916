// Package stats defines the attribute block shared by heroes and enemies and
// the modifier algebra used by status effects to derive current values.
package stats

import "fmt"

// School identifies the damage school of an ability, used for resistance
// lookups. Physical damage is mitigated by armor; every other school by the
// matching resistance entry.
type School string

const (
	SchoolPhysical School = "physical"
	SchoolFire     School = "fire"
	SchoolFrost    School = "frost"
	SchoolShadow   School = "shadow"
	SchoolHoly     School = "holy"
	SchoolNature   School = "nature"
)

// KnownSchool reports whether s is one of the defined schools.
func KnownSchool(s School) bool {
	switch s {
	case SchoolPhysical, SchoolFire, SchoolFrost, SchoolShadow, SchoolHoly, SchoolNature:
		return true
	}
	return false
}

// Attribute names a single numeric stat for modifier targeting.
type Attribute string

const (
	AttrMaxHealth   Attribute = "max_health"
	AttrMaxResource Attribute = "max_resource"
	AttrAttackPower Attribute = "attack_power"
	AttrSpellPower  Attribute = "spell_power"
	AttrArmor       Attribute = "armor"
	AttrCritChance  Attribute = "crit_chance"
	AttrDodgeChance Attribute = "dodge_chance"
	AttrBlockChance Attribute = "block_chance"
	AttrHaste       Attribute = "haste"
)

// KnownAttribute reports whether a is one of the defined attributes.
func KnownAttribute(a Attribute) bool {
	switch a {
	case AttrMaxHealth, AttrMaxResource, AttrAttackPower, AttrSpellPower,
		AttrArmor, AttrCritChance, AttrDodgeChance, AttrBlockChance, AttrHaste:
		return true
	}
	return false
}

// Block is the full attribute sheet of a combatant. Chance fields are
// probabilities in [0, 1]; Haste is a fractional speed bonus (0.1 = 10%
// faster actions).
type Block struct {
	MaxHealth   float64            `yaml:"max_health"`
	MaxResource float64            `yaml:"max_resource"`
	AttackPower float64            `yaml:"attack_power"`
	SpellPower  float64            `yaml:"spell_power"`
	Armor       float64            `yaml:"armor"`
	Resistances map[School]float64 `yaml:"resistances"`
	CritChance  float64            `yaml:"crit_chance"`
	DodgeChance float64            `yaml:"dodge_chance"`
	BlockChance float64            `yaml:"block_chance"`
	Haste       float64            `yaml:"haste"`
}

// Resistance returns the mitigation rating for the given school: Armor for
// physical, the matching Resistances entry otherwise (zero when absent).
func (b Block) Resistance(s School) float64 {
	if s == SchoolPhysical {
		return b.Armor
	}
	return b.Resistances[s]
}

// Clone returns a deep copy of the block (the resistance map is not shared).
func (b Block) Clone() Block {
	out := b
	if b.Resistances != nil {
		out.Resistances = make(map[School]float64, len(b.Resistances))
		for k, v := range b.Resistances {
			out.Resistances[k] = v
		}
	}
	return out
}

// Get returns the named attribute's value.
func (b Block) Get(a Attribute) float64 {
	switch a {
	case AttrMaxHealth:
		return b.MaxHealth
	case AttrMaxResource:
		return b.MaxResource
	case AttrAttackPower:
		return b.AttackPower
	case AttrSpellPower:
		return b.SpellPower
	case AttrArmor:
		return b.Armor
	case AttrCritChance:
		return b.CritChance
	case AttrDodgeChance:
		return b.DodgeChance
	case AttrBlockChance:
		return b.BlockChance
	case AttrHaste:
		return b.Haste
	default:
		return 0
	}
}

func (b *Block) set(a Attribute, v float64) {
	switch a {
	case AttrMaxHealth:
		b.MaxHealth = v
	case AttrMaxResource:
		b.MaxResource = v
	case AttrAttackPower:
		b.AttackPower = v
	case AttrSpellPower:
		b.SpellPower = v
	case AttrArmor:
		b.Armor = v
	case AttrCritChance:
		b.CritChance = v
	case AttrDodgeChance:
		b.DodgeChance = v
	case AttrBlockChance:
		b.BlockChance = v
	case AttrHaste:
		b.Haste = v
	}
}

// Validate checks template-level invariants on a base block.
//
// Postcondition: Returns nil iff MaxHealth >= 1, MaxResource >= 0, power and
// armor values are non-negative, all chance fields are in [0, 1], and every
// resistance entry uses a known school with a non-negative rating.
func (b Block) Validate() error {
	if b.MaxHealth < 1 {
		return fmt.Errorf("stats: max_health must be >= 1, got %v", b.MaxHealth)
	}
	if b.MaxResource < 0 {
		return fmt.Errorf("stats: max_resource must be >= 0, got %v", b.MaxResource)
	}
	if b.AttackPower < 0 || b.SpellPower < 0 || b.Armor < 0 {
		return fmt.Errorf("stats: power and armor values must be >= 0")
	}
	for name, v := range map[string]float64{
		"crit_chance":  b.CritChance,
		"dodge_chance": b.DodgeChance,
		"block_chance": b.BlockChance,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("stats: %s must be in [0, 1], got %v", name, v)
		}
	}
	for school, v := range b.Resistances {
		if !KnownSchool(school) {
			return fmt.Errorf("stats: unknown resistance school %q", school)
		}
		if v < 0 {
			return fmt.Errorf("stats: resistance %q must be >= 0, got %v", school, v)
		}
	}
	return nil
}
