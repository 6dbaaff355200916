package encounter

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/selector"
	"github.com/marchaven/roadband/internal/game/status"
)

// Tick advances the simulation by delta seconds of combat time. The call
// is atomic: all four phases resolve before it returns, and termination is
// only judged after every actor has had its turn. A zero delta is a
// strict no-op: no timer, pool, or effect changes, no events.
//
// Phase order within a tick:
//  1. timers and regeneration for every living combatant
//  2. status effects advance, pulse, and expire
//  3. ready actors act, heroes in slot order then enemies in spawn order
//  4. taunt durations tick down and the termination check runs
func (e *Encounter) Tick(delta float64) error {
	if e.state != StateActive {
		return fmt.Errorf("%w: state %s", ErrNotActive, e.state)
	}
	if delta < 0 {
		return fmt.Errorf("encounter: negative tick delta %v", delta)
	}
	if delta == 0 {
		return nil
	}
	e.tick++
	e.elapsed += delta

	e.advanceTimers(delta)
	e.advanceEffects(delta)
	e.runActions()
	e.table.TickTaunts()
	e.checkTermination()
	return nil
}

func (e *Encounter) advanceTimers(delta float64) {
	for _, c := range e.roster {
		if c.Defeated() {
			continue
		}
		c.AdvanceTimers(delta)
		c.Regenerate(delta)
	}
}

// advanceEffects moves every living combatant's status clock forward and
// applies the resulting pulses. A pulse that kills its owner voids the
// owner's remaining pulses for this tick; the effects themselves stay
// frozen on the corpse.
func (e *Encounter) advanceEffects(delta float64) {
	for _, owner := range e.roster {
		if owner.Defeated() {
			continue
		}
		pulses, expired := owner.Effects.Advance(delta)
		for _, p := range pulses {
			if owner.Defeated() {
				break
			}
			e.applyPulse(owner, p)
		}
		e.expireEffects(owner, expired)
	}
}

func (e *Encounter) applyPulse(owner *combatant.Combatant, p status.Pulse) {
	res := e.cfg.Resolver.ResolvePeriodic(owner, p)
	source := e.byID[p.Effect.SourceID]
	if p.Healing() {
		applied, overheal := owner.ApplyHealing(res.Amount)
		if source != nil && source.Side == combatant.SideParty {
			e.summary.HealingDone += applied
			e.table.RecordHealing(source.ID, float64(applied), e.cfg.Tuning.HealingThreatFactor)
		}
		e.emit(Event{
			Type: EventHealingApplied, ActorID: p.Effect.SourceID, TargetID: owner.ID,
			AbilityID: p.Effect.AbilityID, EffectKind: p.Effect.Kind,
			Amount: applied, Overheal: overheal,
		})
		return
	}
	var absorbed float64
	var depleted []*status.Effect
	if res.Absorbed > 0 {
		absorbed, depleted = owner.Effects.ConsumeShield(res.Absorbed)
	}
	applied, overkill := owner.ApplyDamage(res.Amount)
	e.trackDamage(source, owner, applied)
	e.emit(Event{
		Type: EventDamageDealt, ActorID: p.Effect.SourceID, TargetID: owner.ID,
		AbilityID: p.Effect.AbilityID, EffectKind: p.Effect.Kind,
		Amount: applied, Absorbed: int(math.Round(absorbed)), Overkill: overkill,
	})
	var def *ability.Definition
	if d, err := e.cfg.Abilities.Get(p.Effect.AbilityID); err == nil {
		def = d
	}
	e.recordThreat(source, owner, def, res.Amount+absorbed)
	e.expireEffects(owner, depleted)
	e.afterDamage(owner)
}

// expireEffects emits expiry events and refreshes derived stats after any
// batch of effect removals.
func (e *Encounter) expireEffects(owner *combatant.Combatant, expired []*status.Effect) {
	if len(expired) == 0 {
		return
	}
	owner.Recompute()
	for _, eff := range expired {
		e.emit(Event{
			Type: EventStatusExpired, TargetID: owner.ID,
			AbilityID: eff.AbilityID, EffectKind: eff.Kind,
		})
	}
}

// runActions gives every ready, unstunned combatant one action. The order
// is fixed for the whole encounter, so a stun landed by an early actor
// suppresses later actors on the same tick.
func (e *Encounter) runActions() {
	for _, actor := range e.roster {
		if actor.Defeated() || !actor.Ready() {
			continue
		}
		if actor.Effects.Stunned() {
			continue
		}
		allies := e.living(actor.Side)
		opposing := combatant.SideEnemy
		if actor.Side == combatant.SideEnemy {
			opposing = combatant.SideParty
		}
		enemies := e.living(opposing)
		if len(enemies) == 0 {
			// One side is already gone; the termination check settles it.
			break
		}
		e.act(actor, allies, enemies)
	}
}

func (e *Encounter) act(actor *combatant.Combatant, allies, enemies []*combatant.Combatant) {
	dec, err := e.sel.Choose(selector.Context{
		Actor:   actor,
		Allies:  allies,
		Enemies: enemies,
		Threat:  e.table,
	})
	if err != nil {
		if !errors.Is(err, selector.ErrNoTarget) {
			e.cfg.Logger.Warn("action selection failed",
				zap.String("encounterId", e.id),
				zap.String("combatantId", actor.ID),
				zap.Error(err),
			)
		}
		return
	}
	def, target := dec.Ability, dec.Target
	if !actor.SpendResource(def.Cost) {
		e.cfg.Logger.Warn("selected ability is unaffordable",
			zap.String("encounterId", e.id),
			zap.String("combatantId", actor.ID),
			zap.String("abilityId", def.ID),
		)
		return
	}
	e.emit(Event{Type: EventActionExecuted, ActorID: actor.ID, TargetID: target.ID, AbilityID: def.ID})

	switch def.Kind {
	case ability.KindAttack:
		e.performHit(actor, target, def)
	case ability.KindAOE:
		for _, t := range spread(target, enemies, def.MaxTargets) {
			e.performHit(actor, t, def)
		}
	case ability.KindHeal:
		e.performHeal(actor, target, def)
	default:
		e.applyEffect(actor, target, def)
	}

	if def.Taunt && actor.Side == combatant.SideParty && target.Side == combatant.SideEnemy && !target.Defeated() {
		e.table.ApplyTaunt(target.ID, actor.ID, def.TauntTicks)
	}
	actor.TriggerGlobal(e.cfg.Tuning.BaseActionInterval)
	actor.StartCooldown(def.ID, def.Cooldown)
}

// performHit resolves one direct damage application, including shield
// absorption, the ability's rider effect, threat, and defeat handling.
func (e *Encounter) performHit(actor, target *combatant.Combatant, def *ability.Definition) {
	res := e.cfg.Resolver.ResolveDamage(actor, target, def)
	var absorbed float64
	var depleted []*status.Effect
	if res.Absorbed > 0 {
		absorbed, depleted = target.Effects.ConsumeShield(res.Absorbed)
	}
	applied, overkill := target.ApplyDamage(res.Amount)
	e.trackDamage(actor, target, applied)
	e.emit(Event{
		Type: EventDamageDealt, ActorID: actor.ID, TargetID: target.ID, AbilityID: def.ID,
		Amount: applied, Absorbed: int(math.Round(absorbed)), Overkill: overkill,
		Critical: res.Critical, Dodged: res.Dodged, Blocked: res.Blocked,
	})
	e.recordThreat(actor, target, def, res.Amount+absorbed)
	if def.Effect != nil && !res.Dodged && !target.Defeated() {
		e.applyEffect(actor, target, def)
	}
	e.expireEffects(target, depleted)
	e.afterDamage(target)
}

func (e *Encounter) performHeal(actor, target *combatant.Combatant, def *ability.Definition) {
	res := e.cfg.Resolver.ResolveHealing(actor, def)
	applied, overheal := target.ApplyHealing(res.Amount)
	if actor.Side == combatant.SideParty {
		e.summary.HealingDone += applied
		e.table.RecordHealing(actor.ID, float64(applied), e.cfg.Tuning.HealingThreatFactor)
	}
	e.emit(Event{
		Type: EventHealingApplied, ActorID: actor.ID, TargetID: target.ID, AbilityID: def.ID,
		Amount: applied, Overheal: overheal, Critical: res.Critical,
	})
	if def.Effect != nil {
		e.applyEffect(actor, target, def)
	}
}

func (e *Encounter) applyEffect(actor, target *combatant.Combatant, def *ability.Definition) {
	eff := def.BuildEffect(actor.ID)
	if eff == nil {
		return
	}
	_, outcome := target.Effects.Apply(eff)
	if outcome == status.OutcomeImmune {
		e.cfg.Logger.Debug("target immune",
			zap.String("encounterId", e.id),
			zap.String("targetId", target.ID),
			zap.String("abilityId", def.ID),
			zap.String("kind", string(eff.Kind)),
		)
		return
	}
	target.Recompute()
	e.emit(Event{Type: EventStatusApplied, ActorID: actor.ID, TargetID: target.ID, AbilityID: def.ID, EffectKind: eff.Kind})
}

// recordThreat credits the hero of a damage pair on the paired enemy's
// table. Both directions build aggro: a hero striking an enemy and an
// enemy striking a hero each raise that hero's standing with that enemy.
func (e *Encounter) recordThreat(source, target *combatant.Combatant, def *ability.Definition, worth float64) {
	if source == nil || worth <= 0 {
		return
	}
	amount := worth * e.cfg.Tuning.ThreatPerDamage
	if def != nil {
		amount = def.Threat(amount)
	}
	switch {
	case source.Side == combatant.SideParty && target.Side == combatant.SideEnemy:
		e.table.Record(target.ID, source.ID, amount)
	case source.Side == combatant.SideEnemy && target.Side == combatant.SideParty:
		e.table.Record(source.ID, target.ID, amount)
	}
}

func (e *Encounter) trackDamage(source, target *combatant.Combatant, applied int) {
	if source != nil && source.Side == combatant.SideParty {
		e.summary.DamageDealt += applied
	}
	if target.Side == combatant.SideParty {
		e.summary.DamageTaken += applied
	}
}

// afterDamage handles the consequences of a health drop: defeat, or for a
// still-standing boss, a possible phase transition.
func (e *Encounter) afterDamage(target *combatant.Combatant) {
	if target.Defeated() {
		e.handleDefeat(target)
		return
	}
	if target.Side == combatant.SideEnemy {
		e.checkPhase(target)
	}
}

func (e *Encounter) handleDefeat(c *combatant.Combatant) {
	e.emit(Event{Type: EventCombatantDefeated, TargetID: c.ID})
	if c.Side == combatant.SideEnemy {
		e.table.Disengage(c.ID)
		e.summary.EnemiesKilled++
		e.summary.XPEarned += e.xp[c.ID]
	} else {
		e.summary.HeroesDown++
	}
	e.cfg.Logger.Debug("combatant defeated",
		zap.String("encounterId", e.id),
		zap.String("combatantId", c.ID),
	)
}

// checkPhase walks a boss's phase table after damage. On a transition the
// new phase's ability pool replaces the old one and its immunities replace
// the previous phase's, dispelling any active effects of the now-immune
// kinds. A hit that crosses several thresholds lands in the deepest phase.
func (e *Encounter) checkPhase(c *combatant.Combatant) {
	pe := e.phased[c.ID]
	if pe == nil {
		return
	}
	phase, entered := pe.tracker.Advance(c.HealthPercent())
	if !entered {
		return
	}
	c.Abilities = pe.pools[phase]
	for _, kind := range pe.immunity {
		c.Effects.SetImmune(kind, false)
	}
	pe.immunity = phase.Immunities
	var removed []*status.Effect
	for _, kind := range phase.Immunities {
		c.Effects.SetImmune(kind, true)
		removed = append(removed, c.Effects.Dispel(kind)...)
	}
	e.expireEffects(c, removed)
	e.emit(Event{Type: EventPhaseChanged, TargetID: c.ID, Phase: phase.Name})
	e.cfg.Logger.Info("boss phase entered",
		zap.String("encounterId", e.id),
		zap.String("enemyId", c.ID),
		zap.String("phase", phase.Name),
	)
	if phase.Script != "" {
		e.cfg.Hooks.PhaseEntered(e.id, c.ID, phase.Script)
	}
}

// checkTermination runs once per tick after all actors have acted. Defeat
// is checked before victory: when the last hero and the last enemy fall
// on the same tick, the party loses.
func (e *Encounter) checkTermination() {
	if len(e.living(combatant.SideParty)) == 0 {
		e.end(false)
		return
	}
	if len(e.living(combatant.SideEnemy)) == 0 {
		e.end(true)
	}
}

func (e *Encounter) living(side combatant.Side) []*combatant.Combatant {
	src := e.heroes
	if side == combatant.SideEnemy {
		src = e.enemies
	}
	out := make([]*combatant.Combatant, 0, len(src))
	for _, c := range src {
		if !c.Defeated() {
			out = append(out, c)
		}
	}
	return out
}

// spread expands an area ability to at most max targets: the primary
// first, then the remaining living opponents in roster order.
func spread(primary *combatant.Combatant, pool []*combatant.Combatant, max int) []*combatant.Combatant {
	if max < 1 {
		max = 1
	}
	out := make([]*combatant.Combatant, 0, max)
	out = append(out, primary)
	for _, c := range pool {
		if len(out) == max {
			break
		}
		if c == primary {
			continue
		}
		out = append(out, c)
	}
	return out
}
