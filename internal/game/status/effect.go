package status

import (
	"github.com/marchaven/roadband/internal/game/stats"
)

const timeEpsilon = 1e-9

// Effect is one active status effect on a combatant. Magnitude is the
// per-pulse amount for periodic kinds and the absorption capacity for
// shields. Mods is the per-stack stat contribution for buffs and debuffs.
type Effect struct {
	AbilityID string
	Name      string
	Kind      Kind
	School    stats.School
	SourceID  string
	Magnitude float64
	Duration  float64
	Interval  float64
	Stacks    int
	StackCap  int
	Policy    StackPolicy
	Mods      stats.Modifier
	Capacity  float64

	elapsed     float64
	pulsesFired int
	sequence    uint64
}

// Remaining returns the seconds left before the effect expires.
func (e *Effect) Remaining() float64 {
	left := e.Duration - e.elapsed
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the effect has run its full duration.
func (e *Effect) Expired() bool {
	return e.elapsed+timeEpsilon >= e.Duration
}

// Amount returns the per-pulse amount scaled by the current stack count.
func (e *Effect) Amount() float64 {
	stacks := e.Stacks
	if stacks < 1 {
		stacks = 1
	}
	return e.Magnitude * float64(stacks)
}

// Modifier returns the effect's stat contribution scaled by stacks.
func (e *Effect) Modifier() stats.Modifier {
	return e.Mods.Scaled(e.Stacks)
}

// refresh restarts the effect using the newly applied instance's numbers.
// The pulse cadence restarts with the duration.
func (e *Effect) refresh(incoming *Effect) {
	e.Duration = incoming.Duration
	e.Magnitude = incoming.Magnitude
	e.Mods = incoming.Mods
	if incoming.Kind == KindShield {
		e.Capacity = incoming.Magnitude
	}
	e.elapsed = 0
	e.pulsesFired = 0
}

// addStack raises the stack count by one up to the cap and refreshes the
// duration.
func (e *Effect) addStack(incoming *Effect) {
	e.refresh(incoming)
	if e.Stacks < e.StackCap {
		e.Stacks++
	}
}

// advance moves the effect's clock forward by delta seconds, capped at the
// effect's own lifetime, and returns the number of periodic pulses that
// became due. Pulses are counted against total elapsed time rather than a
// per-step remainder so that many small deltas and one large delta produce
// the same pulse count.
func (e *Effect) advance(delta float64) int {
	step := delta
	if left := e.Duration - e.elapsed; step > left {
		step = left
	}
	if step < 0 {
		step = 0
	}
	e.elapsed += step
	if !e.Kind.Periodic() || e.Interval <= 0 {
		return 0
	}
	due := int((e.elapsed + timeEpsilon) / e.Interval)
	fired := due - e.pulsesFired
	if fired < 0 {
		fired = 0
	}
	e.pulsesFired = due
	return fired
}

// Pulse is one periodic activation of a damage- or healing-over-time
// effect. Amount is already scaled by stacks.
type Pulse struct {
	Effect *Effect
	Amount float64
}

// Healing reports whether the pulse restores health rather than dealing
// damage.
func (p Pulse) Healing() bool {
	return p.Effect.Kind == KindHoT
}

// View is a read-only snapshot of an active effect for state queries and
// events.
type View struct {
	AbilityID string  `json:"abilityId"`
	Name      string  `json:"name"`
	Kind      Kind    `json:"kind"`
	SourceID  string  `json:"sourceId"`
	Remaining float64 `json:"remaining"`
	Stacks    int     `json:"stacks"`
	Capacity  float64 `json:"capacity,omitempty"`
}

// Snapshot returns the effect's externally visible state.
func (e *Effect) Snapshot() View {
	return View{
		AbilityID: e.AbilityID,
		Name:      e.Name,
		Kind:      e.Kind,
		SourceID:  e.SourceID,
		Remaining: e.Remaining(),
		Stacks:    e.Stacks,
		Capacity:  e.Capacity,
	}
}
