// Package main provides a headless batch simulator: it marches a party down
// one road many times with consecutive seeds and reports aggregate outcomes,
// for balancing content without a server or database.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/config"
	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/encounter"
	"github.com/marchaven/roadband/internal/game/enemy"
	"github.com/marchaven/roadband/internal/game/party"
	"github.com/marchaven/roadband/internal/game/resolver"
	"github.com/marchaven/roadband/internal/game/rng"
	"github.com/marchaven/roadband/internal/game/road"
	"github.com/marchaven/roadband/internal/scripting"
)

// maxWaveTicks aborts a wave that cannot end, such as a lineup that heals
// faster than the enemies damage it.
const maxWaveTicks = 200_000

type runResult struct {
	victory    bool
	failedWave int
	stalled    bool
	ticks      uint64
	damage     int
	taken      int
	healing    int
	xp         int
}

type aggregate struct {
	runs     int
	wins     int
	stalls   int
	failures map[int]int
	ticks    uint64
	damage   int
	taken    int
	healing  int
	xp       int
}

func main() {
	configPath := flag.String("config", "", "optional configuration file; built-in defaults when empty")
	contentDir := flag.String("content", "content", "content root holding abilities/, heroes/, enemies/, roads/")
	scriptsDir := flag.String("scripts", "content/scripts", "Lua script directory; empty = scripting disabled")
	roadID := flag.String("road", "", "road id to simulate")
	lineup := flag.String("lineup", "warrior,cleric,rogue,mage,ranger", "comma-separated hero archetype ids, five required")
	level := flag.Int("level", 0, "party level; 0 = the road's recommended level")
	runs := flag.Int("runs", 100, "number of marches to simulate")
	seed := flag.Int64("seed", 1, "first seed; run i uses seed+i")
	tick := flag.Float64("tick", 0.2, "simulated seconds per tick")
	verbose := flag.Bool("v", false, "print one line per run")
	flag.Parse()

	if *roadID == "" {
		fmt.Fprintln(os.Stderr, "usage: roadsim -road <id> [-content <dir>] [-runs <n>] [-seed <n>] [-lineup a,b,c,d,e]")
		os.Exit(1)
	}
	if *runs < 1 || *tick <= 0 {
		fmt.Fprintln(os.Stderr, "runs must be >= 1 and tick must be positive")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatalf("loading config: %v", err)
		}
		cfg = loaded
	}

	content := config.ContentConfig{Dir: *contentDir, ScriptsDir: *scriptsDir}
	abilities, err := ability.LoadDirectory(content.AbilitiesDir())
	if err != nil {
		fatalf("loading abilities: %v", err)
	}
	heroes, err := party.LoadDirectory(content.HeroesDir())
	if err != nil {
		fatalf("loading hero archetypes: %v", err)
	}
	enemies, err := enemy.LoadDirectory(content.EnemiesDir())
	if err != nil {
		fatalf("loading enemy templates: %v", err)
	}
	roads, err := road.LoadDirectory(content.RoadsDir())
	if err != nil {
		fatalf("loading roads: %v", err)
	}

	tpl, err := roads.Get(*roadID)
	if err != nil {
		fatalf("%v (known: %s)", err, strings.Join(roads.IDs(), ", "))
	}
	waves, err := tpl.Resolve(enemies)
	if err != nil {
		fatalf("resolving road: %v", err)
	}

	archetypes := strings.Split(*lineup, ",")
	if len(archetypes) != party.Size {
		fatalf("lineup needs exactly %d archetypes, got %d", party.Size, len(archetypes))
	}
	partyLevel := *level
	if partyLevel < 1 {
		partyLevel = tpl.Level
	}

	tuning := encounter.Tuning{
		BaseActionInterval:  cfg.Sim.BaseActionInterval,
		ThreatPerDamage:     cfg.Sim.ThreatPerDamage,
		HealingThreatFactor: cfg.Sim.HealingThreatFactor,
		HealerThreshold:     cfg.Sim.HealerThreshold,
		EventLogSize:        cfg.Sim.EventLogSize,
	}
	combat := resolver.Tuning{
		CritMultiplier: cfg.Combat.CritMultiplier,
		BlockReduction: cfg.Combat.BlockReduction,
		ResistScale:    cfg.Combat.ResistScale,
		MaxMitigation:  cfg.Combat.MaxMitigation,
	}

	// One shared script VM set serves every run; its callbacks follow the
	// encounter currently being ticked.
	var current *encounter.Encounter
	var hooks encounter.Hooks
	if *scriptsDir != "" {
		if info, statErr := os.Stat(*scriptsDir); statErr == nil && info.IsDir() {
			mgr := scripting.NewManager(rng.NewSeededSource(*seed), zap.NewNop())
			defer mgr.Close()
			if err := mgr.LoadGlobal(*scriptsDir, scripting.DefaultInstructionLimit); err != nil {
				fatalf("loading scripts: %v", err)
			}
			roadScripts := filepath.Join(*scriptsDir, tpl.ID)
			if info, statErr := os.Stat(roadScripts); statErr == nil && info.IsDir() {
				if err := mgr.LoadRoad(tpl.ID, roadScripts, scripting.DefaultInstructionLimit); err != nil {
					fatalf("loading road scripts: %v", err)
				}
			}
			mgr.GetCombatant = func(id string) *scripting.CombatantInfo {
				if current == nil {
					return nil
				}
				st, err := current.CombatantState(id)
				if err != nil {
					return nil
				}
				return infoFromState(st)
			}
			mgr.Combatants = func() []*scripting.CombatantInfo {
				if current == nil {
					return nil
				}
				states := current.States()
				out := make([]*scripting.CombatantInfo, 0, len(states))
				for _, st := range states {
					out = append(out, infoFromState(st))
				}
				return out
			}
			if *verbose {
				mgr.Announce = func(msg string) { fmt.Printf("  announce: %s\n", msg) }
			}
			hooks = scripting.NewEncounterHooks(mgr, tpl.ID)
		}
	}

	start := time.Now()
	agg := aggregate{failures: make(map[int]int)}
	for i := 0; i < *runs; i++ {
		runSeed := *seed + int64(i)
		result, err := simulate(simUnit{
			seed:       runSeed,
			tick:       *tick,
			level:      partyLevel,
			archetypes: archetypes,
			tpl:        tpl,
			waves:      waves,
			tuning:     tuning,
			combat:     combat,
			recovery:   cfg.Sim.RecoveryFraction,
			heroes:     heroes,
			abilities:  abilities,
			hooks:      hooks,
			current:    &current,
		})
		if err != nil {
			fatalf("run %d (seed %d): %v", i, runSeed, err)
		}
		agg.add(result)
		if *verbose {
			outcome := "win"
			switch {
			case result.stalled:
				outcome = fmt.Sprintf("stall at wave %d", result.failedWave)
			case !result.victory:
				outcome = fmt.Sprintf("loss at wave %d", result.failedWave)
			}
			fmt.Printf("seed %-6d %-18s ticks %-7d dealt %-7d taken %-7d xp %d\n",
				runSeed, outcome, result.ticks, result.damage, result.taken, result.xp)
		}
	}

	printSummary(tpl, partyLevel, archetypes, agg, time.Since(start))
}

// simUnit carries one run's inputs.
type simUnit struct {
	seed       int64
	tick       float64
	level      int
	archetypes []string
	tpl        *road.Template
	waves      [][]*enemy.Template
	tuning     encounter.Tuning
	combat     resolver.Tuning
	recovery   float64
	heroes     *party.Registry
	abilities  *ability.Registry
	hooks      encounter.Hooks
	current    **encounter.Encounter
}

// simulate walks every wave of the road once with a fresh party and a fresh
// seeded roll stream.
func simulate(u simUnit) (runResult, error) {
	specs := make([]party.MemberSpec, 0, party.Size)
	for i, id := range u.archetypes {
		tpl, err := u.heroes.Get(strings.TrimSpace(id))
		if err != nil {
			return runResult{}, err
		}
		specs = append(specs, party.MemberSpec{
			HeroID:    fmt.Sprintf("hero-%d", i+1),
			Name:      tpl.Name,
			Archetype: tpl.ID,
			Level:     u.level,
		})
	}
	p, err := party.Assemble(specs, u.heroes, u.abilities)
	if err != nil {
		return runResult{}, err
	}
	res, err := resolver.New(u.combat, rng.NewSeededSource(u.seed))
	if err != nil {
		return runResult{}, err
	}

	result := runResult{victory: true}
	for idx, wave := range u.waves {
		enc, err := encounter.New(encounter.Config{
			Tuning:    u.tuning,
			Resolver:  res,
			Abilities: u.abilities,
			Hooks:     u.hooks,
		})
		if err != nil {
			return runResult{}, err
		}
		*u.current = enc
		if err := enc.Start(p.Combatants(), wave); err != nil {
			*u.current = nil
			return runResult{}, fmt.Errorf("wave %d: %w", idx, err)
		}
		for enc.State() == encounter.StateActive {
			if err := enc.Tick(u.tick); err != nil {
				*u.current = nil
				return runResult{}, fmt.Errorf("wave %d: %w", idx, err)
			}
			if enc.TickCount() > maxWaveTicks {
				_ = enc.Abort()
				result.stalled = true
				break
			}
		}
		*u.current = nil

		sum := enc.Stats()
		result.ticks += sum.Ticks
		result.damage += sum.DamageDealt
		result.taken += sum.DamageTaken
		result.healing += sum.HealingDone

		if enc.State() != encounter.StateVictory {
			result.victory = false
			result.failedWave = idx
			return result, nil
		}
		xp := sum.XPEarned
		if idx == len(u.waves)-1 {
			xp += u.tpl.BonusXP
		}
		p.AwardExperience(xp)
		result.xp += xp
		p.Revive(u.recovery)
	}
	return result, nil
}

func (a *aggregate) add(r runResult) {
	a.runs++
	a.ticks += r.ticks
	a.damage += r.damage
	a.taken += r.taken
	a.healing += r.healing
	a.xp += r.xp
	switch {
	case r.stalled:
		a.stalls++
	case r.victory:
		a.wins++
	default:
		a.failures[r.failedWave]++
	}
}

func printSummary(tpl *road.Template, level int, archetypes []string, agg aggregate, elapsed time.Duration) {
	fmt.Printf("road %s (%q, %d waves), party level %d: %s\n",
		tpl.ID, tpl.Name, len(tpl.Encounters), level, strings.Join(archetypes, "/"))
	winRate := 100 * float64(agg.wins) / float64(agg.runs)
	fmt.Printf("  %d runs in %s: %d wins (%.1f%%), %d losses, %d stalls\n",
		agg.runs, elapsed.Round(time.Millisecond), agg.wins, winRate, agg.runs-agg.wins-agg.stalls, agg.stalls)

	if len(agg.failures) > 0 {
		waves := make([]int, 0, len(agg.failures))
		for w := range agg.failures {
			waves = append(waves, w)
		}
		sort.Ints(waves)
		parts := make([]string, 0, len(waves))
		for _, w := range waves {
			parts = append(parts, fmt.Sprintf("wave %d x%d", w, agg.failures[w]))
		}
		fmt.Printf("  failed at: %s\n", strings.Join(parts, ", "))
	}

	n := float64(agg.runs)
	fmt.Printf("  per run: %.0f ticks, %.0f damage dealt, %.0f taken, %.0f healed, %.1f xp\n",
		float64(agg.ticks)/n, float64(agg.damage)/n, float64(agg.taken)/n, float64(agg.healing)/n, float64(agg.xp)/n)
}

func infoFromState(st combatant.State) *scripting.CombatantInfo {
	effects := make([]string, 0, len(st.Effects))
	for _, v := range st.Effects {
		effects = append(effects, string(v.Kind))
	}
	return &scripting.CombatantInfo{
		ID:          st.ID,
		Name:        st.Name,
		Side:        string(st.Side),
		Health:      st.Health,
		MaxHealth:   st.MaxHealth,
		Resource:    st.Resource,
		MaxResource: st.MaxResource,
		Defeated:    st.Defeated,
		Effects:     effects,
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
