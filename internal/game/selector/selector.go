// Package selector decides, for one ready actor, which ability to use and
// against whom. Policies are role-driven and fully deterministic: identical
// encounter state always yields the same decision, which keeps seeded
// simulations replayable.
package selector

import (
	"errors"
	"fmt"
	"sort"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/threat"
)

// ErrNoTarget indicates no living combatant could satisfy the chosen
// ability's targeting.
var ErrNoTarget = errors.New("no eligible target")

// Decision is the selected ability and its primary target. For area
// abilities the encounter expands additional targets in spawn order
// starting after the primary.
type Decision struct {
	Ability *ability.Definition
	Target  *combatant.Combatant
}

// Context is the actor's view of the encounter at selection time. Allies
// and Enemies are relative to the actor's side, contain only living
// combatants, and are ordered by slot (party) or spawn index (enemies).
// Allies includes the actor itself.
type Context struct {
	Actor   *combatant.Combatant
	Allies  []*combatant.Combatant
	Enemies []*combatant.Combatant
	Threat  *threat.Table
}

// Selector owns the role policies. healThreshold is the health fraction
// below which healers consider an ally wounded; individual abilities may
// override it.
type Selector struct {
	healThreshold float64
}

// New validates the configured heal threshold and returns a selector.
func New(healThreshold float64) (*Selector, error) {
	if healThreshold <= 0 || healThreshold > 1 {
		return nil, fmt.Errorf("selector: healThreshold must be in (0, 1], got %v", healThreshold)
	}
	return &Selector{healThreshold: healThreshold}, nil
}

// Choose picks the actor's action for this tick. It never returns an
// ability the actor cannot pay for; when nothing else is usable it falls
// back to the basic attack so the simulation always makes progress.
func (s *Selector) Choose(ctx Context) (Decision, error) {
	if ctx.Actor == nil {
		return Decision{}, fmt.Errorf("selector: nil actor")
	}
	if ctx.Actor.Side == combatant.SideEnemy {
		return s.chooseEnemy(ctx)
	}
	switch ctx.Actor.Role {
	case combatant.RoleTank:
		return s.chooseTank(ctx)
	case combatant.RoleHealer:
		return s.chooseHealer(ctx)
	default:
		return s.chooseDPS(ctx)
	}
}

// chooseTank favors picking up loose enemies with a taunt, then the
// highest-threat-generating ability against whichever enemy is on the tank.
func (s *Selector) chooseTank(ctx Context) (Decision, error) {
	actor := ctx.Actor
	pool := usablePool(actor)

	if loose := s.looseEnemy(ctx); loose != nil {
		if taunt := firstTaunt(pool); taunt != nil {
			return Decision{Ability: taunt, Target: loose}, nil
		}
	}

	target := s.enemyAttacking(ctx, actor.ID)
	if target == nil {
		target = firstOf(ctx.Enemies)
	}
	if target == nil {
		return Decision{}, fmt.Errorf("%w: no living enemies for %s", ErrNoTarget, actor.ID)
	}

	offensive := filterOffensive(pool)
	sort.SliceStable(offensive, func(i, j int) bool {
		a, b := offensive[i], offensive[j]
		if a.Threat(1) != b.Threat(1) {
			return a.Threat(1) > b.Threat(1)
		}
		return lessEligible(actor, a, b)
	})
	if len(offensive) > 0 {
		return Decision{Ability: offensive[0], Target: target}, nil
	}
	if self := bestSelfBuff(actor, pool); self != nil {
		return Decision{Ability: self, Target: actor}, nil
	}
	return Decision{Ability: ability.Basic(), Target: target}, nil
}

// chooseHealer heals the most wounded ally under the threshold, hands out
// buffs next, and otherwise falls back to offense so it never idles.
func (s *Selector) chooseHealer(ctx Context) (Decision, error) {
	actor := ctx.Actor
	pool := usablePool(actor)

	weakest := lowestHealth(ctx.Allies)
	if weakest != nil {
		restorative := filterRestorative(pool)
		sortEligible(actor, restorative)
		for _, def := range restorative {
			threshold := s.healThreshold
			if def.HealThreshold > 0 {
				threshold = def.HealThreshold
			}
			if weakest.HealthPercent() < threshold {
				return Decision{Ability: def, Target: weakest}, nil
			}
		}
		if buff := firstOfKind(pool, ability.KindBuff); buff != nil {
			return Decision{Ability: buff, Target: weakest}, nil
		}
	}

	target := s.enemyAttacking(ctx, actor.ID)
	if target == nil {
		target = firstOf(ctx.Enemies)
	}
	if target == nil {
		return Decision{}, fmt.Errorf("%w: no living enemies for %s", ErrNoTarget, actor.ID)
	}
	offensive := filterOffensive(pool)
	sortEligible(actor, offensive)
	if len(offensive) > 0 {
		return Decision{Ability: offensive[0], Target: target}, nil
	}
	return Decision{Ability: ability.Basic(), Target: target}, nil
}

// chooseDPS burns the highest-priority offensive ability on the focus-fire
// target.
func (s *Selector) chooseDPS(ctx Context) (Decision, error) {
	actor := ctx.Actor
	target := s.focusTarget(ctx)
	if target == nil {
		return Decision{}, fmt.Errorf("%w: no living enemies for %s", ErrNoTarget, actor.ID)
	}

	pool := usablePool(actor)
	offensive := filterOffensive(pool)
	sortEligible(actor, offensive)
	if len(offensive) > 0 {
		return Decision{Ability: offensive[0], Target: target}, nil
	}
	if self := bestSelfBuff(actor, pool); self != nil {
		return Decision{Ability: self, Target: actor}, nil
	}
	return Decision{Ability: ability.Basic(), Target: target}, nil
}

// chooseEnemy mirrors the party policies. The mandatory target comes from
// the threat table; healers tend their own side first.
func (s *Selector) chooseEnemy(ctx Context) (Decision, error) {
	actor := ctx.Actor
	pool := usablePool(actor)

	if actor.Role == combatant.RoleHealer {
		weakest := lowestHealth(ctx.Allies)
		if weakest != nil {
			restorative := filterRestorative(pool)
			sortEligible(actor, restorative)
			for _, def := range restorative {
				threshold := s.healThreshold
				if def.HealThreshold > 0 {
					threshold = def.HealThreshold
				}
				if weakest.HealthPercent() < threshold {
					return Decision{Ability: def, Target: weakest}, nil
				}
			}
		}
	}

	target := s.threatTarget(ctx)
	if target == nil {
		return Decision{}, fmt.Errorf("%w: no living heroes for %s", ErrNoTarget, actor.ID)
	}
	offensive := filterOffensive(pool)
	sortEligible(actor, offensive)
	if len(offensive) > 0 {
		return Decision{Ability: offensive[0], Target: target}, nil
	}
	if self := bestSelfBuff(actor, pool); self != nil {
		return Decision{Ability: self, Target: actor}, nil
	}
	return Decision{Ability: ability.Basic(), Target: target}, nil
}

// threatTarget resolves the enemy actor's forced target from the threat
// table.
func (s *Selector) threatTarget(ctx Context) *combatant.Combatant {
	if ctx.Threat == nil {
		return firstOf(ctx.Enemies)
	}
	id, ok := ctx.Threat.TopTarget(ctx.Actor.ID, candidates(ctx.Enemies))
	if !ok {
		return nil
	}
	return byID(ctx.Enemies, id)
}

// focusTarget implements DPS focus fire: every living DPS ally votes for
// the living enemy with the lowest health fraction; a strict majority locks
// that target. Without a majority the actor attacks whoever is attacking
// it, then the first enemy in spawn order.
func (s *Selector) focusTarget(ctx Context) *combatant.Combatant {
	votes := make(map[string]int)
	var voters int
	for _, ally := range ctx.Allies {
		if ally.Role != combatant.RoleDPS {
			continue
		}
		voters++
		if pref := lowestHealth(ctx.Enemies); pref != nil {
			votes[pref.ID]++
		}
	}
	for id, count := range votes {
		if 2*count > voters {
			if enemy := byID(ctx.Enemies, id); enemy != nil {
				return enemy
			}
		}
	}
	if attacker := s.enemyAttacking(ctx, ctx.Actor.ID); attacker != nil {
		return attacker
	}
	return firstOf(ctx.Enemies)
}

// looseEnemy returns the first living enemy whose threat target is not the
// actor, or nil when the actor already holds every enemy.
func (s *Selector) looseEnemy(ctx Context) *combatant.Combatant {
	if ctx.Threat == nil {
		return nil
	}
	heroes := candidates(ctx.Allies)
	for _, enemy := range ctx.Enemies {
		id, ok := ctx.Threat.TopTarget(enemy.ID, heroes)
		if ok && id != ctx.Actor.ID {
			return enemy
		}
	}
	return nil
}

// enemyAttacking returns the first living enemy currently targeting the
// given hero, or nil.
func (s *Selector) enemyAttacking(ctx Context, heroID string) *combatant.Combatant {
	if ctx.Threat == nil {
		return nil
	}
	heroes := candidates(ctx.Allies)
	for _, enemy := range ctx.Enemies {
		id, ok := ctx.Threat.TopTarget(enemy.ID, heroes)
		if ok && id == heroID {
			return enemy
		}
	}
	return nil
}

// usablePool returns the actor's currently affordable, off-cooldown
// abilities. The basic attack is not part of the pool; it is the fallback
// when the pool yields nothing.
func usablePool(actor *combatant.Combatant) []*ability.Definition {
	pool := make([]*ability.Definition, 0, len(actor.Abilities))
	for _, def := range actor.Abilities {
		if actor.Usable(def) {
			pool = append(pool, def)
		}
	}
	return pool
}

// lessEligible is the shared tie-break chain: higher priority first, then
// lowest remaining cooldown at selection time, then lowest configured
// cooldown so short-cycle abilities are never starved, then authored order
// via stable sort.
func lessEligible(actor *combatant.Combatant, a, b *ability.Definition) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	ra, rb := actor.CooldownRemaining(a.ID), actor.CooldownRemaining(b.ID)
	if ra != rb {
		return ra < rb
	}
	if a.Cooldown != b.Cooldown {
		return a.Cooldown < b.Cooldown
	}
	return false
}

func sortEligible(actor *combatant.Combatant, defs []*ability.Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		return lessEligible(actor, defs[i], defs[j])
	})
}

func filterOffensive(pool []*ability.Definition) []*ability.Definition {
	var out []*ability.Definition
	for _, def := range pool {
		if def.Kind.Offensive() {
			out = append(out, def)
		}
	}
	return out
}

func filterRestorative(pool []*ability.Definition) []*ability.Definition {
	var out []*ability.Definition
	for _, def := range pool {
		switch def.Kind {
		case ability.KindHeal, ability.KindHoT, ability.KindShield:
			out = append(out, def)
		}
	}
	return out
}

func firstTaunt(pool []*ability.Definition) *ability.Definition {
	for _, def := range pool {
		if def.Taunt {
			return def
		}
	}
	return nil
}

func firstOfKind(pool []*ability.Definition, kind ability.Kind) *ability.Definition {
	for _, def := range pool {
		if def.Kind == kind {
			return def
		}
	}
	return nil
}

func bestSelfBuff(actor *combatant.Combatant, pool []*ability.Definition) *ability.Definition {
	var out []*ability.Definition
	for _, def := range pool {
		if def.Kind == ability.KindBuff || def.Kind == ability.KindShield {
			out = append(out, def)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sortEligible(actor, out)
	return out[0]
}

// lowestHealth returns the living combatant with the smallest health
// fraction, ties broken by slot order.
func lowestHealth(list []*combatant.Combatant) *combatant.Combatant {
	var best *combatant.Combatant
	for _, c := range list {
		if best == nil {
			best = c
			continue
		}
		pct, bestPct := c.HealthPercent(), best.HealthPercent()
		if pct < bestPct || (pct == bestPct && c.Slot < best.Slot) {
			best = c
		}
	}
	return best
}

func firstOf(list []*combatant.Combatant) *combatant.Combatant {
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

func byID(list []*combatant.Combatant, id string) *combatant.Combatant {
	for _, c := range list {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func candidates(list []*combatant.Combatant) []threat.Candidate {
	out := make([]threat.Candidate, 0, len(list))
	for _, c := range list {
		out = append(out, threat.Candidate{ID: c.ID, Slot: c.Slot})
	}
	return out
}
