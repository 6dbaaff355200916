package party

import (
	"fmt"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/stats"
)

// Size is the fixed party width. The road is always walked by five heroes.
const Size = 5

// Hero is one persistent party member: the runtime combatant plus the
// progression state the save boundary cares about.
type Hero struct {
	*combatant.Combatant
	Template   *Template
	Level      int
	Experience int
	// Equipment is the permanent gear bonus folded into the base block.
	// nil means unequipped.
	Equipment *stats.Modifier
}

// MemberSpec seeds one party slot, typically hydrated from a save.
// Health and Resource are optional; nil means start full.
type MemberSpec struct {
	HeroID     string
	Name       string
	Archetype  string
	Level      int
	Experience int
	Health     *float64
	Resource   *float64
	Equipment  *stats.Modifier
}

// baseBlock derives a hero's base stats: the archetype block at the given
// level with any equipment bonus folded in.
func baseBlock(tpl *Template, level int, equipment *stats.Modifier) stats.Block {
	base := tpl.StatsAt(level)
	if equipment != nil {
		base = stats.Derive(base, *equipment)
	}
	return base
}

// Party is the five-hero roster in slot order. Heroes persist across
// encounters; their pools are only reset by out-of-combat recovery or a
// fresh assembly.
type Party struct {
	heroes [Size]*Hero
}

// Assemble builds a party from member specs, resolving archetypes and
// ability ids against the registries. Exactly Size members are required.
func Assemble(specs []MemberSpec, templates *Registry, abilities *ability.Registry) (*Party, error) {
	if len(specs) != Size {
		return nil, fmt.Errorf("party: need exactly %d members, got %d", Size, len(specs))
	}
	p := &Party{}
	seen := make(map[string]struct{}, Size)
	for slot, spec := range specs {
		if _, dup := seen[spec.HeroID]; dup {
			return nil, fmt.Errorf("party: duplicate hero id %q", spec.HeroID)
		}
		seen[spec.HeroID] = struct{}{}

		tpl, err := templates.Get(spec.Archetype)
		if err != nil {
			return nil, fmt.Errorf("party slot %d: %w", slot, err)
		}
		level := spec.Level
		if level < 1 {
			level = 1
		}
		defs, err := abilities.Resolve(tpl.Abilities)
		if err != nil {
			return nil, fmt.Errorf("party slot %d (%s): %w", slot, tpl.ID, err)
		}
		c, err := combatant.New(combatant.Config{
			ID:            spec.HeroID,
			Name:          spec.Name,
			Side:          combatant.SideParty,
			Role:          tpl.Role,
			ArchetypeID:   tpl.ID,
			Slot:          slot,
			Base:          baseBlock(tpl, level, spec.Equipment),
			Abilities:     defs,
			ResourceRegen: tpl.ResourceRegen,
		})
		if err != nil {
			return nil, fmt.Errorf("party slot %d: %w", slot, err)
		}
		if spec.Health != nil || spec.Resource != nil {
			health := c.Health
			resource := c.Resource
			if spec.Health != nil {
				health = *spec.Health
			}
			if spec.Resource != nil {
				resource = *spec.Resource
			}
			c.RestorePools(health, resource)
		}
		p.heroes[slot] = &Hero{
			Combatant:  c,
			Template:   tpl,
			Level:      level,
			Experience: spec.Experience,
			Equipment:  spec.Equipment,
		}
	}
	return p, nil
}

// Heroes returns the party in slot order.
func (p *Party) Heroes() []*Hero {
	out := make([]*Hero, 0, Size)
	for _, hero := range p.heroes {
		out = append(out, hero)
	}
	return out
}

// Combatants returns the underlying combatants in slot order, as the
// encounter consumes them.
func (p *Party) Combatants() []*combatant.Combatant {
	out := make([]*combatant.Combatant, 0, Size)
	for _, hero := range p.heroes {
		out = append(out, hero.Combatant)
	}
	return out
}

// Hero returns the member with the given id.
func (p *Party) Hero(id string) (*Hero, error) {
	for _, hero := range p.heroes {
		if hero.ID == id {
			return hero, nil
		}
	}
	return nil, fmt.Errorf("party: no hero %q", id)
}

// LivingCount reports how many heroes still stand.
func (p *Party) LivingCount() int {
	var n int
	for _, hero := range p.heroes {
		if !hero.Defeated() {
			n++
		}
	}
	return n
}

// Wiped reports whether every hero is down.
func (p *Party) Wiped() bool {
	return p.LivingCount() == 0
}

// xpToNext is the experience required to go from level to level+1.
func xpToNext(level int) int {
	return 100 * level
}

// LevelUp describes one hero gaining a level.
type LevelUp struct {
	HeroID   string `json:"heroId"`
	NewLevel int    `json:"newLevel"`
}

// AwardExperience grants xp to every surviving hero and applies any level
// gains: the base block is re-derived from the archetype at the new level
// and pools refill, the traditional level-up heal. Downed heroes earn
// nothing.
func (p *Party) AwardExperience(xp int) []LevelUp {
	if xp <= 0 {
		return nil
	}
	var ups []LevelUp
	for _, hero := range p.heroes {
		if hero.Defeated() {
			continue
		}
		hero.Experience += xp
		leveled := false
		for hero.Experience >= xpToNext(hero.Level) {
			hero.Experience -= xpToNext(hero.Level)
			hero.Level++
			leveled = true
			ups = append(ups, LevelUp{HeroID: hero.ID, NewLevel: hero.Level})
		}
		if leveled {
			hero.Base = baseBlock(hero.Template, hero.Level, hero.Equipment)
			hero.Recompute()
			hero.RestorePools(hero.Current.MaxHealth, hero.Current.MaxResource)
		}
	}
	return ups
}

// Revive brings every downed hero back at the given health fraction and
// clears lingering combat effects. Used by out-of-combat recovery between
// road encounters.
func (p *Party) Revive(healthFraction float64) {
	if healthFraction <= 0 {
		healthFraction = 1
	}
	if healthFraction > 1 {
		healthFraction = 1
	}
	for _, hero := range p.heroes {
		hero.Effects.Clear()
		hero.Recompute()
		if hero.Defeated() {
			hero.RestorePools(hero.Current.MaxHealth*healthFraction, hero.Resource)
		}
	}
}

// SaveState is the persistence view of one hero. The core itself persists
// nothing; the storage layer consumes this between encounters.
type SaveState struct {
	HeroID     string
	Name       string
	Archetype  string
	Slot       int
	Level      int
	Experience int
	Health     float64
	Resource   float64
	Equipment  *stats.Modifier
}

// SaveStates returns the party's persistence view in slot order.
func (p *Party) SaveStates() []SaveState {
	out := make([]SaveState, 0, Size)
	for _, hero := range p.heroes {
		out = append(out, SaveState{
			HeroID:     hero.ID,
			Name:       hero.Name,
			Archetype:  hero.ArchetypeID,
			Slot:       hero.Slot,
			Level:      hero.Level,
			Experience: hero.Experience,
			Health:     hero.Health,
			Resource:   hero.Resource,
			Equipment:  hero.Equipment,
		})
	}
	return out
}
