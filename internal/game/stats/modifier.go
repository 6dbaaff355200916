package stats

// Modifier is the stat contribution of one status effect: additive attribute
// deltas plus multiplicative damage scalars. The zero value is NOT neutral —
// use NewModifier or Neutral to get unit multipliers.
type Modifier struct {
	Add             map[Attribute]float64
	DamageTakenMult float64
	DamageDealtMult float64
}

// NewModifier returns a neutral modifier (no additive deltas, unit
// multipliers).
func NewModifier() Modifier {
	return Modifier{
		Add:             make(map[Attribute]float64),
		DamageTakenMult: 1,
		DamageDealtMult: 1,
	}
}

// Neutral reports whether m contributes nothing.
func (m Modifier) Neutral() bool {
	if m.DamageTakenMult != 1 || m.DamageDealtMult != 1 {
		return false
	}
	for _, v := range m.Add {
		if v != 0 {
			return false
		}
	}
	return true
}

// Scaled returns m applied stacks times: additive deltas multiply by the
// stack count, damage multipliers compound.
//
// Precondition: stacks >= 1.
func (m Modifier) Scaled(stacks int) Modifier {
	if stacks <= 1 {
		return m.clone()
	}
	out := NewModifier()
	for k, v := range m.Add {
		out.Add[k] = v * float64(stacks)
	}
	out.DamageTakenMult = pow(m.DamageTakenMult, stacks)
	out.DamageDealtMult = pow(m.DamageDealtMult, stacks)
	return out
}

func (m Modifier) clone() Modifier {
	out := NewModifier()
	for k, v := range m.Add {
		out.Add[k] = v
	}
	out.DamageTakenMult = m.DamageTakenMult
	out.DamageDealtMult = m.DamageDealtMult
	return out
}

func pow(base float64, n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= base
	}
	return out
}

// Merge folds all modifiers into one: additive deltas sum, multipliers
// compound.
func Merge(mods ...Modifier) Modifier {
	out := NewModifier()
	for _, m := range mods {
		for k, v := range m.Add {
			out.Add[k] += v
		}
		if m.DamageTakenMult != 0 {
			out.DamageTakenMult *= m.DamageTakenMult
		}
		if m.DamageDealtMult != 0 {
			out.DamageDealtMult *= m.DamageDealtMult
		}
	}
	return out
}

// Derive applies a merged modifier to a base block and returns the current
// block, enforcing the derived-value invariants: chance fields clamp to
// [0, 1], pools and ratings floor at zero, and haste floors at -0.9 so the
// action interval can never invert.
func Derive(base Block, m Modifier) Block {
	out := base.Clone()
	for attr, delta := range m.Add {
		out.set(attr, out.Get(attr)+delta)
	}

	out.CritChance = clamp01(out.CritChance)
	out.DodgeChance = clamp01(out.DodgeChance)
	out.BlockChance = clamp01(out.BlockChance)
	if out.MaxHealth < 1 {
		out.MaxHealth = 1
	}
	if out.MaxResource < 0 {
		out.MaxResource = 0
	}
	if out.AttackPower < 0 {
		out.AttackPower = 0
	}
	if out.SpellPower < 0 {
		out.SpellPower = 0
	}
	if out.Armor < 0 {
		out.Armor = 0
	}
	for school, v := range out.Resistances {
		if v < 0 {
			out.Resistances[school] = 0
		}
	}
	if out.Haste < -0.9 {
		out.Haste = -0.9
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
