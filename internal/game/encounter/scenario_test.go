package encounter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/enemy"
	"github.com/marchaven/roadband/internal/game/resolver"
	"github.com/marchaven/roadband/internal/game/rng"
	"github.com/marchaven/roadband/internal/game/stats"
	"github.com/marchaven/roadband/internal/game/status"
)

type battleResult struct {
	state   State
	events  []Event
	states  []combatant.State
	summary Summary
}

// runBattle plays a full five-hero encounter against a wolf pack to its
// terminal state. Every stat block carries crit, dodge, and block chance,
// so the outcome depends on the seeded roll stream end to end.
func runBattle(t *testing.T, seed int64) battleResult {
	t.Helper()

	jab := attackDef("jab", 1, 0)
	maul := attackDef("maul", 2, 3)
	rend := dotDef("rend", 4, 6, 1.5)
	rend.Cost = 15
	mend := &ability.Definition{
		ID: "mend", Name: "Mend", Kind: ability.KindHeal, School: stats.SchoolHoly,
		Multiplier: 1.5, Priority: 3, Cost: 10,
	}
	cleave := &ability.Definition{
		ID: "cleave", Name: "Cleave", Kind: ability.KindAOE, School: stats.SchoolPhysical,
		Multiplier: 0.8, Priority: 4, MaxTargets: 2, Cost: 20, Cooldown: 5,
	}
	challenge := &ability.Definition{
		ID: "challenge", Name: "Challenge", Kind: ability.KindDebuff, School: stats.SchoolPhysical,
		Cooldown: 8, Cost: 10, Taunt: true, TauntTicks: 3,
		Effect: &ability.EffectSpec{Kind: status.KindDebuff, Duration: 4, DamageTakenMult: 1.1},
	}
	reg := registry(t, jab, maul, rend, mend, cleave, challenge, attackDef("bite", 1, 0))

	mkHero := func(id string, role combatant.Role, slot int, base stats.Block, defs ...*ability.Definition) *combatant.Combatant {
		c, err := combatant.New(combatant.Config{
			ID: id, Name: id, Side: combatant.SideParty, Role: role, Slot: slot,
			Base: base, Abilities: defs, ResourceRegen: 2,
		})
		require.NoError(t, err)
		return c
	}
	heroes := []*combatant.Combatant{
		mkHero("tank", combatant.RoleTank, 0, stats.Block{
			MaxHealth: 220, MaxResource: 100, AttackPower: 10, Armor: 30,
			DodgeChance: 0.1, BlockChance: 0.25,
		}, challenge, jab),
		mkHero("healer", combatant.RoleHealer, 1, stats.Block{
			MaxHealth: 140, MaxResource: 120, SpellPower: 18, CritChance: 0.1,
		}, mend),
		mkHero("rogue", combatant.RoleDPS, 2, stats.Block{
			MaxHealth: 150, MaxResource: 100, AttackPower: 14, CritChance: 0.3, DodgeChance: 0.15,
		}, rend, jab),
		mkHero("mage", combatant.RoleDPS, 3, stats.Block{
			MaxHealth: 130, MaxResource: 100, AttackPower: 12, SpellPower: 12, CritChance: 0.2,
		}, cleave, jab),
		mkHero("archer", combatant.RoleDPS, 4, stats.Block{
			MaxHealth: 145, MaxResource: 100, AttackPower: 13, CritChance: 0.25, DodgeChance: 0.05,
		}, jab),
	}
	pack := &enemy.Template{
		ID: "dire_wolf", Name: "Dire Wolf", Role: combatant.RoleDPS,
		Base: stats.Block{
			MaxHealth: 90, MaxResource: 50, AttackPower: 9, Armor: 10,
			CritChance: 0.15, DodgeChance: 0.05,
		},
		Abilities: []string{"bite", "maul"}, XP: 40,
	}

	res, err := resolver.New(resolver.DefaultTuning(), rng.NewSeededSource(seed))
	require.NoError(t, err)
	rec := &recorder{}
	enc, err := New(Config{Tuning: DefaultTuning(), Resolver: res, Abilities: reg, Sinks: []Sink{rec}})
	require.NoError(t, err)
	require.NoError(t, enc.Start(heroes, []*enemy.Template{pack, pack}))

	for i := 0; i < 600 && enc.State() == StateActive; i++ {
		require.NoError(t, enc.Tick(0.5))
	}
	require.True(t, enc.State().Terminal(), "battle did not finish within the tick budget")
	require.Len(t, rec.ofType(EventEncounterEnded), 1)

	return battleResult{state: enc.State(), events: rec.events, states: enc.States(), summary: enc.Stats()}
}

// stripHandles blanks the per-run uuid so two replays can be compared
// field for field.
func stripHandles(events []Event) []Event {
	out := make([]Event, len(events))
	for i, ev := range events {
		ev.EncounterID = ""
		out[i] = ev
	}
	return out
}

func TestSeededBattleReplaysIdentically(t *testing.T) {
	first := runBattle(t, 42)
	second := runBattle(t, 42)

	assert.Equal(t, first.state, second.state)
	assert.Equal(t, stripHandles(first.events), stripHandles(second.events))
	assert.Equal(t, first.states, second.states)
	assert.Equal(t, first.summary, second.summary)
}

func TestBattleAggregatesAreConsistent(t *testing.T) {
	result := runBattle(t, 7)

	assert.Positive(t, result.summary.DamageDealt)
	assert.Positive(t, result.summary.Ticks)
	if result.state == StateVictory {
		assert.Equal(t, 2, result.summary.EnemiesKilled)
		assert.Equal(t, 80, result.summary.XPEarned)
	} else {
		assert.Equal(t, 5, result.summary.HeroesDown)
	}

	// Defeat events must match the summary's casualty counts.
	var downed int
	for _, ev := range result.events {
		if ev.Type == EventCombatantDefeated {
			downed++
		}
	}
	assert.Equal(t, result.summary.EnemiesKilled+result.summary.HeroesDown, downed)
}
