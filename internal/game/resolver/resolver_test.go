package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/rng"
	"github.com/marchaven/roadband/internal/game/stats"
	"github.com/marchaven/roadband/internal/game/status"
)

// scriptedSource returns queued Float64 values in order; once exhausted,
// every further roll fails its chance check.
type scriptedSource struct {
	floats []float64
	idx    int
}

func (s *scriptedSource) Intn(n int) int { return 0 }

func (s *scriptedSource) Float64() float64 {
	if s.idx >= len(s.floats) {
		return 0.999999
	}
	v := s.floats[s.idx]
	s.idx++
	return v
}

// panicSource fails the test if any randomness is drawn.
type panicSource struct{}

func (panicSource) Intn(n int) int   { panic("unexpected Intn draw") }
func (panicSource) Float64() float64 { panic("unexpected Float64 draw") }

func newResolver(t *testing.T, floats ...float64) *Resolver {
	t.Helper()
	r, err := New(DefaultTuning(), &scriptedSource{floats: floats})
	require.NoError(t, err)
	return r
}

func testCombatant(t *testing.T, id string, side combatant.Side, base stats.Block) *combatant.Combatant {
	t.Helper()
	role := combatant.RoleDPS
	c, err := combatant.New(combatant.Config{
		ID:        id,
		Name:      id,
		Side:      side,
		Role:      role,
		Base:      base,
		Abilities: []*ability.Definition{ability.Basic()},
	})
	require.NoError(t, err)
	return c
}

func attacker(t *testing.T, attackPower, critChance float64) *combatant.Combatant {
	return testCombatant(t, "attacker", combatant.SideParty, stats.Block{
		MaxHealth:   100,
		AttackPower: attackPower,
		CritChance:  critChance,
	})
}

func defender(t *testing.T, base stats.Block) *combatant.Combatant {
	if base.MaxHealth == 0 {
		base.MaxHealth = 100
	}
	return testCombatant(t, "defender", combatant.SideEnemy, base)
}

func strike(multiplier float64) *ability.Definition {
	return &ability.Definition{
		ID:         "strike",
		Name:       "Strike",
		Kind:       ability.KindAttack,
		School:     stats.SchoolPhysical,
		Multiplier: multiplier,
	}
}

func TestTuningValidate(t *testing.T) {
	assert.NoError(t, DefaultTuning().Validate())

	bad := DefaultTuning()
	bad.CritMultiplier = 0.5
	assert.Error(t, bad.Validate())

	bad = DefaultTuning()
	bad.BlockReduction = 1.2
	assert.Error(t, bad.Validate())

	bad = DefaultTuning()
	bad.ResistScale = 0
	assert.Error(t, bad.Validate())

	bad = DefaultTuning()
	bad.MaxMitigation = 1
	assert.Error(t, bad.Validate())
}

func TestMitigationCap(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{Armor: 100000})

	result := r.ResolveDamage(src, tgt, strike(1))
	assert.InDelta(t, 2.5, result.Amount, 1e-9, "mitigation caps at 75%")
}

func TestNewRejectsNilSource(t *testing.T) {
	_, err := New(DefaultTuning(), nil)
	require.Error(t, err)
}

func TestResolveDamagePlainHit(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.InDelta(t, 15.0, result.Amount, 1e-9)
	assert.False(t, result.Critical)
	assert.False(t, result.Dodged)
	assert.False(t, result.Blocked)
	assert.Zero(t, result.Absorbed)
}

func TestResolveDamageCritical(t *testing.T) {
	r := newResolver(t, 0.2)
	src := attacker(t, 10, 0.5)
	tgt := defender(t, stats.Block{})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.True(t, result.Critical)
	assert.InDelta(t, 30.0, result.Amount, 1e-9, "default crit multiplier doubles")
}

func TestResolveDamageArmorMitigation(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{Armor: 100})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.InDelta(t, 7.5, result.Amount, 1e-9, "100 armor against scale 100 halves physical damage")
}

func TestResolveDamageSchoolResistance(t *testing.T) {
	r := newResolver(t)
	src := testCombatant(t, "mage", combatant.SideParty, stats.Block{MaxHealth: 100, SpellPower: 20})
	tgt := defender(t, stats.Block{
		Armor:       500,
		Resistances: map[stats.School]float64{stats.SchoolFire: 100},
	})
	fireball := &ability.Definition{
		ID:         "fireball",
		Name:       "Fireball",
		Kind:       ability.KindAttack,
		School:     stats.SchoolFire,
		Multiplier: 1,
	}

	result := r.ResolveDamage(src, tgt, fireball)
	assert.InDelta(t, 10.0, result.Amount, 1e-9, "fire checks fire resistance, not armor")
}

func TestResolveDamageDodgeNegates(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{DodgeChance: 1})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.True(t, result.Dodged)
	assert.Zero(t, result.Amount)
	assert.Zero(t, result.Absorbed)
}

func TestResolveDamageBlockReduces(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{BlockChance: 1})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.True(t, result.Blocked)
	assert.False(t, result.Critical)
	assert.InDelta(t, 10.5, result.Amount, 1e-9, "block removes 30% by default")
}

func TestResolveDamageDodgeTakesPriorityOverBlock(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{DodgeChance: 1, BlockChance: 1})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.True(t, result.Dodged)
	assert.False(t, result.Blocked)
	assert.Zero(t, result.Amount)
}

func TestResolveDamageAppliesTakenMultiplier(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{})

	mods := stats.NewModifier()
	mods.DamageTakenMult = 1.5
	tgt.Effects.Apply(&status.Effect{
		AbilityID: "expose",
		Name:      "Expose",
		Kind:      status.KindDebuff,
		SourceID:  "attacker",
		Duration:  10,
		Policy:    status.PolicyRefresh,
		Mods:      mods,
	})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.InDelta(t, 22.5, result.Amount, 1e-9)
}

func TestResolveDamageAppliesDealtMultiplier(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{})

	mods := stats.NewModifier()
	mods.DamageDealtMult = 1.2
	src.Effects.Apply(&status.Effect{
		AbilityID: "rage",
		Name:      "Rage",
		Kind:      status.KindBuff,
		SourceID:  "attacker",
		Duration:  10,
		Policy:    status.PolicyRefresh,
		Mods:      mods,
	})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.InDelta(t, 18.0, result.Amount, 1e-9)
}

func TestResolveDamageShieldAbsorbs(t *testing.T) {
	r := newResolver(t)
	src := attacker(t, 10, 0)
	tgt := defender(t, stats.Block{})
	tgt.Effects.Apply(&status.Effect{
		AbilityID: "barrier",
		Name:      "Barrier",
		Kind:      status.KindShield,
		SourceID:  "healer",
		Magnitude: 10,
		Duration:  10,
		Policy:    status.PolicyRefresh,
		Mods:      stats.NewModifier(),
	})

	result := r.ResolveDamage(src, tgt, strike(1.5))
	assert.InDelta(t, 10.0, result.Absorbed, 1e-9)
	assert.InDelta(t, 5.0, result.Amount, 1e-9)
	assert.InDelta(t, 15.0, result.Threatworthy(), 1e-9, "absorbed damage still counts for threat")
}

func TestResolveHealing(t *testing.T) {
	r := newResolver(t, 0.2)
	healer := testCombatant(t, "healer", combatant.SideParty, stats.Block{
		MaxHealth:  100,
		SpellPower: 30,
		CritChance: 0.5,
	})
	mend := &ability.Definition{
		ID:         "mend",
		Name:       "Mend",
		Kind:       ability.KindHeal,
		School:     stats.SchoolHoly,
		Multiplier: 1.5,
	}

	result := r.ResolveHealing(healer, mend)
	assert.True(t, result.Critical)
	assert.InDelta(t, 90.0, result.Amount, 1e-9)
	assert.False(t, result.Dodged, "healing cannot be dodged")
}

func TestResolvePeriodicDamageIsDeterministic(t *testing.T) {
	r, err := New(DefaultTuning(), panicSource{})
	require.NoError(t, err)
	tgt := defender(t, stats.Block{
		DodgeChance: 1,
		BlockChance: 1,
		Resistances: map[stats.School]float64{stats.SchoolNature: 100},
	})

	pulse := status.Pulse{
		Effect: &status.Effect{
			AbilityID: "venom",
			Kind:      status.KindPoison,
			School:    stats.SchoolNature,
			SourceID:  "spider",
		},
		Amount: 10,
	}
	result := r.ResolvePeriodic(tgt, pulse)
	assert.InDelta(t, 5.0, result.Amount, 1e-9, "mitigated but never dodged or blocked")
	assert.False(t, result.Critical)
}

func TestResolvePeriodicDamageHitsShields(t *testing.T) {
	r, err := New(DefaultTuning(), panicSource{})
	require.NoError(t, err)
	tgt := defender(t, stats.Block{})
	tgt.Effects.Apply(&status.Effect{
		AbilityID: "barrier",
		Name:      "Barrier",
		Kind:      status.KindShield,
		SourceID:  "healer",
		Magnitude: 4,
		Duration:  10,
		Policy:    status.PolicyRefresh,
		Mods:      stats.NewModifier(),
	})

	pulse := status.Pulse{
		Effect: &status.Effect{AbilityID: "rend", Kind: status.KindBleed, School: stats.SchoolPhysical, SourceID: "wolf"},
		Amount: 5,
	}
	result := r.ResolvePeriodic(tgt, pulse)
	assert.InDelta(t, 4.0, result.Absorbed, 1e-9)
	assert.InDelta(t, 1.0, result.Amount, 1e-9)
}

func TestResolvePeriodicHealingIsFlat(t *testing.T) {
	r, err := New(DefaultTuning(), panicSource{})
	require.NoError(t, err)
	tgt := defender(t, stats.Block{Armor: 500})

	pulse := status.Pulse{
		Effect: &status.Effect{AbilityID: "mend", Kind: status.KindHoT, School: stats.SchoolHoly, SourceID: "healer"},
		Amount: 6,
	}
	result := r.ResolvePeriodic(tgt, pulse)
	assert.InDelta(t, 6.0, result.Amount, 1e-9)
}

func TestResolveDamageBoundsAndDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		power := float64(rapid.IntRange(1, 500).Draw(t, "power"))
		mult := float64(rapid.IntRange(1, 16).Draw(t, "multQuarters")) / 4
		armor := float64(rapid.IntRange(0, 300).Draw(t, "armor"))
		extraArmor := float64(rapid.IntRange(0, 300).Draw(t, "extraArmor"))
		crit := float64(rapid.IntRange(0, 100).Draw(t, "critPct")) / 100
		dodge := float64(rapid.IntRange(0, 100).Draw(t, "dodgePct")) / 100
		block := float64(rapid.IntRange(0, 100).Draw(t, "blockPct")) / 100
		shieldMag := float64(rapid.IntRange(1, 50).Draw(t, "shieldMag"))

		newTarget := func(id string, armor float64) *combatant.Combatant {
			c, err := combatant.New(combatant.Config{
				ID: id, Name: id, Side: combatant.SideEnemy, Role: combatant.RoleDPS,
				Base: stats.Block{
					MaxHealth:   100,
					Armor:       armor,
					CritChance:  crit,
					DodgeChance: dodge,
					BlockChance: block,
				},
				Abilities: []*ability.Definition{ability.Basic()},
			})
			if err != nil {
				t.Fatalf("building target: %v", err)
			}
			return c
		}
		resolve := func(target *combatant.Combatant) Result {
			r, err := New(DefaultTuning(), rng.NewSeededSource(seed))
			if err != nil {
				t.Fatalf("building resolver: %v", err)
			}
			src, err := combatant.New(combatant.Config{
				ID: "src", Name: "src", Side: combatant.SideParty, Role: combatant.RoleDPS,
				Base:      stats.Block{MaxHealth: 100, AttackPower: power, CritChance: crit},
				Abilities: []*ability.Definition{ability.Basic()},
			})
			if err != nil {
				t.Fatalf("building source: %v", err)
			}
			return r.ResolveDamage(src, target, strike(mult))
		}

		plain := resolve(newTarget("plain", armor))
		if plain.Amount < 0 || plain.Absorbed < 0 {
			t.Fatalf("negative outcome: %+v", plain)
		}
		if plain.Absorbed != 0 {
			t.Fatalf("absorb without a shield: %+v", plain)
		}
		if plain.Dodged && plain.Amount != 0 {
			t.Fatalf("dodge left damage standing: %+v", plain)
		}
		ceiling := power * mult * DefaultTuning().CritMultiplier
		if plain.Amount > ceiling+1e-9 {
			t.Fatalf("amount %v exceeds crit ceiling %v", plain.Amount, ceiling)
		}

		// Same seed and inputs replay to the identical outcome.
		replay := resolve(newTarget("plain", armor))
		if replay != plain {
			t.Fatalf("replay diverged: %+v vs %+v", replay, plain)
		}

		// Raising armor never raises the damage taken.
		tougher := resolve(newTarget("tougher", armor+extraArmor))
		if tougher.Amount > plain.Amount+1e-9 {
			t.Fatalf("armor %v took %v, armor %v took %v", armor+extraArmor, tougher.Amount, armor, plain.Amount)
		}

		// A shield moves damage into Absorbed without changing the total.
		shielded := newTarget("shielded", armor)
		shielded.Effects.Apply(&status.Effect{
			AbilityID: "barrier", Name: "Barrier", Kind: status.KindShield,
			SourceID: "healer", Magnitude: shieldMag, Duration: 10,
			Policy: status.PolicyRefresh, Mods: stats.NewModifier(),
		})
		absorbed := resolve(shielded)
		total := absorbed.Amount + absorbed.Absorbed
		if diff := total - plain.Amount; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("shield changed the total: %v vs %v", total, plain.Amount)
		}
		if absorbed.Absorbed > shieldMag+1e-9 {
			t.Fatalf("absorbed %v beyond shield magnitude %v", absorbed.Absorbed, shieldMag)
		}
	})
}
