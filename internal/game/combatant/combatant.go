// Package combatant holds the runtime representation of a hero or enemy
// inside an encounter: identity, stat block, health and resource pools,
// cooldown timers, and the active status-effect set. Pools are tracked as
// floats but every applied delta is rounded to a whole number at the point
// of application, so chained multipliers never compound rounding error.
package combatant

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/stats"
	"github.com/marchaven/roadband/internal/game/status"
)

// Side distinguishes the party from the enemy roster.
type Side string

const (
	SideParty Side = "party"
	SideEnemy Side = "enemy"
)

// KnownSide reports whether s is a defined side.
func KnownSide(s Side) bool {
	return s == SideParty || s == SideEnemy
}

// Role drives action selection policy.
type Role string

const (
	RoleTank   Role = "tank"
	RoleHealer Role = "healer"
	RoleDPS    Role = "dps"
)

// KnownRole reports whether r is a defined role.
func KnownRole(r Role) bool {
	switch r {
	case RoleTank, RoleHealer, RoleDPS:
		return true
	}
	return false
}

// Config carries everything needed to construct a combatant.
type Config struct {
	ID          string
	Name        string
	Side        Side
	Role        Role
	ArchetypeID string
	Slot        int
	Base        stats.Block
	Abilities   []*ability.Definition
	// ResourceRegen is the passive resource gain per second while the
	// encounter runs.
	ResourceRegen float64
}

// Combatant is one actor in an encounter. Heroes persist across encounters;
// enemies are built fresh each time. All mutation happens on the encounter
// tick, so no locking is needed.
type Combatant struct {
	ID          string
	Name        string
	Side        Side
	Role        Role
	ArchetypeID string
	Slot        int

	Base    stats.Block
	Current stats.Block

	Health   float64
	Resource float64

	Abilities []*ability.Definition
	Effects   *status.Set
	RegenRate float64

	cooldowns  map[string]float64
	readyIn    float64
	regenCarry float64
}

// New validates the config and returns a combatant with full pools and
// derived stats computed from the base block.
func New(cfg Config) (*Combatant, error) {
	var violations []error
	if strings.TrimSpace(cfg.ID) == "" {
		violations = append(violations, fmt.Errorf("combatant is missing an id"))
	}
	if strings.TrimSpace(cfg.Name) == "" {
		violations = append(violations, fmt.Errorf("combatant %q is missing a name", cfg.ID))
	}
	if !KnownSide(cfg.Side) {
		violations = append(violations, fmt.Errorf("combatant %q has unknown side %q", cfg.ID, cfg.Side))
	}
	if !KnownRole(cfg.Role) {
		violations = append(violations, fmt.Errorf("combatant %q has unknown role %q", cfg.ID, cfg.Role))
	}
	if cfg.Slot < 0 {
		violations = append(violations, fmt.Errorf("combatant %q has negative slot %d", cfg.ID, cfg.Slot))
	}
	if cfg.ResourceRegen < 0 {
		violations = append(violations, fmt.Errorf("combatant %q has negative resource regen %v", cfg.ID, cfg.ResourceRegen))
	}
	if err := cfg.Base.Validate(); err != nil {
		violations = append(violations, err)
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("invalid combatant %q: %w", cfg.ID, errors.Join(violations...))
	}

	c := &Combatant{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Side:        cfg.Side,
		Role:        cfg.Role,
		ArchetypeID: cfg.ArchetypeID,
		Slot:        cfg.Slot,
		Base:        cfg.Base.Clone(),
		Abilities:   cfg.Abilities,
		Effects:     status.NewSet(),
		RegenRate:   cfg.ResourceRegen,
		cooldowns:   make(map[string]float64),
	}
	c.Recompute()
	c.Health = c.Current.MaxHealth
	c.Resource = c.Current.MaxResource
	return c, nil
}

// Defeated reports whether the combatant has been reduced to zero health.
// Defeated combatants stay in the roster but are excluded from targeting
// and action selection.
func (c *Combatant) Defeated() bool {
	return c.Health <= 0
}

// HealthPercent returns current health as a fraction of max in [0,1].
func (c *Combatant) HealthPercent() float64 {
	if c.Current.MaxHealth <= 0 {
		return 0
	}
	return c.Health / c.Current.MaxHealth
}

// ApplyDamage subtracts a rounded amount from health, clamped at zero, and
// returns the applied delta plus any overkill beyond remaining health.
// Precondition: amount >= 0.
func (c *Combatant) ApplyDamage(amount float64) (applied, overkill int) {
	if amount < 0 {
		panic(fmt.Sprintf("combatant: ApplyDamage called with negative amount %v on %s", amount, c.ID))
	}
	delta := math.Round(amount)
	before := c.Health
	after := before - delta
	if after < 0 {
		after = 0
	}
	c.Health = after
	applied = int(math.Round(before - after))
	overkill = int(delta) - applied
	return applied, overkill
}

// ApplyHealing adds a rounded amount to health, clamped at max, and returns
// the applied delta plus the overheal beyond missing health. Healing a
// defeated combatant is allowed only through revival paths; ordinary heals
// on the defeated are the caller's responsibility to prevent.
// Precondition: amount >= 0.
func (c *Combatant) ApplyHealing(amount float64) (applied, overheal int) {
	if amount < 0 {
		panic(fmt.Sprintf("combatant: ApplyHealing called with negative amount %v on %s", amount, c.ID))
	}
	delta := math.Round(amount)
	before := c.Health
	after := before + delta
	if after > c.Current.MaxHealth {
		after = c.Current.MaxHealth
	}
	c.Health = after
	applied = int(math.Round(after - before))
	overheal = int(delta) - applied
	return applied, overheal
}

// CanAfford reports whether the combatant's resource covers the ability's
// cost after rounding.
func (c *Combatant) CanAfford(cost float64) bool {
	return c.Resource >= math.Round(cost)
}

// SpendResource deducts a rounded cost from the resource pool. It returns
// false without deducting when the pool cannot cover it.
func (c *Combatant) SpendResource(cost float64) bool {
	if cost < 0 {
		panic(fmt.Sprintf("combatant: SpendResource called with negative cost %v on %s", cost, c.ID))
	}
	delta := math.Round(cost)
	if c.Resource < delta {
		return false
	}
	c.Resource -= delta
	return true
}

// GainResource adds a rounded amount to the resource pool, clamped at max.
func (c *Combatant) GainResource(amount float64) {
	if amount < 0 {
		panic(fmt.Sprintf("combatant: GainResource called with negative amount %v on %s", amount, c.ID))
	}
	c.Resource += math.Round(amount)
	if c.Resource > c.Current.MaxResource {
		c.Resource = c.Current.MaxResource
	}
}

// Regenerate accrues passive resource for delta seconds. Fractional gains
// carry over between ticks so small deltas are never rounded into nothing.
func (c *Combatant) Regenerate(delta float64) {
	if delta <= 0 || c.RegenRate <= 0 {
		return
	}
	c.regenCarry += c.RegenRate * delta
	whole := math.Floor(c.regenCarry)
	if whole < 1 {
		return
	}
	c.regenCarry -= whole
	c.GainResource(whole)
}

// RestorePools sets health and resource directly, clamped to the current
// maxes. Used when hydrating persisted heroes between encounters.
func (c *Combatant) RestorePools(health, resource float64) {
	c.Health = clamp(health, 0, c.Current.MaxHealth)
	c.Resource = clamp(resource, 0, c.Current.MaxResource)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Ready reports whether the global action timer has elapsed.
func (c *Combatant) Ready() bool {
	return c.readyIn <= 0
}

// TriggerGlobal starts the global action timer from the base interval,
// shortened by haste. Haste is floored so the interval never inverts.
func (c *Combatant) TriggerGlobal(baseInterval float64) {
	haste := c.Current.Haste
	if haste < -0.9 {
		haste = -0.9
	}
	c.readyIn = baseInterval / (1 + haste)
}

// ReadyIn returns the seconds until the combatant may act again.
func (c *Combatant) ReadyIn() float64 {
	if c.readyIn < 0 {
		return 0
	}
	return c.readyIn
}

// StartCooldown begins an ability's own cooldown.
func (c *Combatant) StartCooldown(abilityID string, seconds float64) {
	if seconds <= 0 {
		return
	}
	c.cooldowns[abilityID] = seconds
}

// CooldownRemaining returns the seconds left on an ability's cooldown, zero
// when it is ready.
func (c *Combatant) CooldownRemaining(abilityID string) float64 {
	return c.cooldowns[abilityID]
}

// OnCooldown reports whether the ability is still cooling down.
func (c *Combatant) OnCooldown(abilityID string) bool {
	return c.cooldowns[abilityID] > 0
}

// Usable reports whether the ability could be executed right now: off
// cooldown and affordable.
func (c *Combatant) Usable(def *ability.Definition) bool {
	return !c.OnCooldown(def.ID) && c.CanAfford(def.Cost)
}

// AdvanceTimers moves the global action timer and every ability cooldown
// forward by delta seconds. Expired cooldowns are dropped from the map.
func (c *Combatant) AdvanceTimers(delta float64) {
	if delta <= 0 {
		return
	}
	c.readyIn -= delta
	if c.readyIn < 0 {
		c.readyIn = 0
	}
	for id, remaining := range c.cooldowns {
		remaining -= delta
		if remaining <= 0 {
			delete(c.cooldowns, id)
			continue
		}
		c.cooldowns[id] = remaining
	}
}

// Recompute rebuilds the current stat block from the base block plus every
// active effect's modifiers, then re-clamps pools against the new maxes.
// Called after effects are applied, expire, or are dispelled.
func (c *Combatant) Recompute() {
	c.Current = stats.Derive(c.Base, c.Effects.Modifier())
	c.Health = clamp(c.Health, 0, c.Current.MaxHealth)
	c.Resource = clamp(c.Resource, 0, c.Current.MaxResource)
}

// Cooldowns returns a copy of the active cooldown map.
func (c *Combatant) Cooldowns() map[string]float64 {
	out := make(map[string]float64, len(c.cooldowns))
	for id, remaining := range c.cooldowns {
		out[id] = remaining
	}
	return out
}
