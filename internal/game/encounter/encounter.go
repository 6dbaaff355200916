package encounter

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/game/ability"
	"github.com/marchaven/roadband/internal/game/combatant"
	"github.com/marchaven/roadband/internal/game/enemy"
	"github.com/marchaven/roadband/internal/game/resolver"
	"github.com/marchaven/roadband/internal/game/selector"
	"github.com/marchaven/roadband/internal/game/status"
	"github.com/marchaven/roadband/internal/game/threat"
)

// State is the encounter lifecycle position.
type State string

const (
	StateIdle    State = "idle"
	StateActive  State = "active"
	StateVictory State = "ended_victory"
	StateDefeat  State = "ended_defeat"
	StateAborted State = "aborted"
)

// Terminal reports whether the encounter has finished. A terminal
// encounter is discarded; it never restarts.
func (s State) Terminal() bool {
	switch s {
	case StateVictory, StateDefeat, StateAborted:
		return true
	}
	return false
}

var (
	// ErrNotActive indicates a tick or abort against an encounter that is
	// not running.
	ErrNotActive = errors.New("encounter is not active")
	// ErrAlreadyStarted indicates Start on an encounter that already left
	// the idle state. Encounters never nest; the caller must finish or
	// abort the current one first.
	ErrAlreadyStarted = errors.New("encounter already started")
	// ErrEmptyParty indicates Start without a living hero.
	ErrEmptyParty = errors.New("no living heroes")
	// ErrEmptyRoster indicates Start with an empty enemy roster.
	ErrEmptyRoster = errors.New("empty enemy roster")
	// ErrUnknownCombatant indicates a query for an id not in the
	// encounter.
	ErrUnknownCombatant = errors.New("unknown combatant")
)

// Hooks receive lifecycle notifications for the scripting layer. All
// methods are synchronous and must not fail the encounter.
type Hooks interface {
	EncounterStarted(encounterID string, enemyIDs []string)
	EncounterEnded(encounterID string, victory bool)
	PhaseEntered(encounterID, enemyID, script string)
}

type noopHooks struct{}

func (noopHooks) EncounterStarted(string, []string)   {}
func (noopHooks) EncounterEnded(string, bool)         {}
func (noopHooks) PhaseEntered(string, string, string) {}

// Config wires an encounter's collaborators. Resolver and Abilities are
// required; everything else has a usable default.
type Config struct {
	Tuning    Tuning
	Resolver  *resolver.Resolver
	Abilities *ability.Registry
	Logger    *zap.Logger
	Hooks     Hooks
	Sinks     []Sink
}

// phasedEnemy is the per-instance boss state: the phase tracker plus the
// ability pool for each phase, resolved up front so a bad phase table
// fails at Start instead of mid-fight. immunity holds the kinds granted
// by the current phase; each transition replaces them wholesale.
type phasedEnemy struct {
	tracker  *enemy.Tracker
	pools    map[*enemy.Phase][]*ability.Definition
	immunity []status.Kind
}

// Encounter is one combat from start to victory, defeat, or abort. It is
// single-threaded by contract: the host loop owns it and calls Tick at
// whatever real-time rate it runs, so no internal locking exists.
type Encounter struct {
	id  string
	cfg Config
	sel *selector.Selector

	state   State
	tick    uint64
	elapsed float64

	heroes  []*combatant.Combatant
	enemies []*combatant.Combatant
	roster  []*combatant.Combatant
	byID    map[string]*combatant.Combatant
	xp      map[string]int
	phased  map[string]*phasedEnemy

	table   *threat.Table
	log     *Log
	summary Summary
}

// New builds an idle encounter.
func New(cfg Config) (*Encounter, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("encounter: %w", err)
	}
	if cfg.Resolver == nil {
		return nil, errors.New("encounter: resolver is required")
	}
	if cfg.Abilities == nil {
		return nil, errors.New("encounter: ability registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Hooks == nil {
		cfg.Hooks = noopHooks{}
	}
	sel, err := selector.New(cfg.Tuning.HealerThreshold)
	if err != nil {
		return nil, fmt.Errorf("encounter: %w", err)
	}
	return &Encounter{
		id:     uuid.NewString(),
		cfg:    cfg,
		sel:    sel,
		state:  StateIdle,
		byID:   make(map[string]*combatant.Combatant),
		xp:     make(map[string]int),
		phased: make(map[string]*phasedEnemy),
		table:  threat.NewTable(),
		log:    NewLog(cfg.Tuning.EventLogSize),
	}, nil
}

// ID returns the encounter's handle.
func (e *Encounter) ID() string {
	return e.id
}

// State returns the lifecycle position.
func (e *Encounter) State() State {
	return e.state
}

// TickCount returns how many non-zero ticks have been processed.
func (e *Encounter) TickCount() uint64 {
	return e.tick
}

// Elapsed returns the simulated seconds processed so far.
func (e *Encounter) Elapsed() float64 {
	return e.elapsed
}

// Start transitions idle → active. Heroes are taken as-is: health and
// resources persist from whatever came before, which is how attrition
// across a road's encounters works. Enemies are spawned fresh from their
// templates and engaged on the threat table.
//
// Precondition: the encounter is idle. Starting twice is a programming
// error in the caller and fails fast.
func (e *Encounter) Start(heroes []*combatant.Combatant, templates []*enemy.Template) error {
	if e.state != StateIdle {
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, e.state)
	}
	living := 0
	for _, h := range heroes {
		if h == nil || h.Side != combatant.SideParty {
			return fmt.Errorf("encounter: roster entry is not a party combatant")
		}
		if !h.Defeated() {
			living++
		}
	}
	if living == 0 {
		return ErrEmptyParty
	}
	if len(templates) == 0 {
		return ErrEmptyRoster
	}

	enemies := make([]*combatant.Combatant, 0, len(templates))
	for i, tpl := range templates {
		c, err := enemy.Spawn(tpl, i, e.cfg.Abilities)
		if err != nil {
			return fmt.Errorf("encounter: spawn %q: %w", tpl.ID, err)
		}
		enemies = append(enemies, c)
		e.xp[c.ID] = tpl.XP
		if tpl.Boss && len(tpl.Phases) > 0 {
			pe := &phasedEnemy{
				tracker: enemy.NewTracker(tpl),
				pools:   make(map[*enemy.Phase][]*ability.Definition, len(tpl.Phases)),
			}
			for pi := range tpl.Phases {
				phase := &tpl.Phases[pi]
				pool, err := e.cfg.Abilities.Resolve(phase.Abilities)
				if err != nil {
					return fmt.Errorf("encounter: phase %q of %q: %w", phase.Name, tpl.ID, err)
				}
				pe.pools[phase] = pool
			}
			e.phased[c.ID] = pe
		}
	}

	e.heroes = append([]*combatant.Combatant(nil), heroes...)
	e.enemies = enemies
	e.roster = make([]*combatant.Combatant, 0, len(e.heroes)+len(e.enemies))
	e.roster = append(e.roster, e.heroes...)
	e.roster = append(e.roster, e.enemies...)
	for _, c := range e.roster {
		e.byID[c.ID] = c
	}

	e.table.Reset()
	enemyIDs := make([]string, 0, len(e.enemies))
	for _, c := range e.enemies {
		e.table.Engage(c.ID)
		enemyIDs = append(enemyIDs, c.ID)
	}

	e.state = StateActive
	e.tick = 0
	e.elapsed = 0
	e.summary = Summary{}
	e.cfg.Logger.Info("encounter started",
		zap.String("encounterId", e.id),
		zap.Int("heroes", len(e.heroes)),
		zap.Int("enemies", len(e.enemies)),
	)
	e.emit(Event{Type: EventEncounterStarted})
	e.cfg.Hooks.EncounterStarted(e.id, enemyIDs)
	return nil
}

// Abort tears the encounter down without a combat result: effects are
// cleared and the threat table wiped, but no victory/defeat event fires.
// Used when the host leaves combat out of band (road abandoned, shutdown).
func (e *Encounter) Abort() error {
	if e.state != StateActive {
		return fmt.Errorf("%w: state %s", ErrNotActive, e.state)
	}
	e.state = StateAborted
	e.cleanup()
	e.cfg.Logger.Info("encounter aborted", zap.String("encounterId", e.id), zap.Uint64("ticks", e.tick))
	e.emit(Event{Type: EventEncounterAborted})
	return nil
}

// CombatantState returns a read-only snapshot of any combatant in the
// encounter, defeated ones included.
func (e *Encounter) CombatantState(id string) (combatant.State, error) {
	c, ok := e.byID[id]
	if !ok {
		return combatant.State{}, fmt.Errorf("%w: %q", ErrUnknownCombatant, id)
	}
	return c.Snapshot(), nil
}

// States returns snapshots for the full roster, heroes first in slot
// order, then enemies in spawn order.
func (e *Encounter) States() []combatant.State {
	out := make([]combatant.State, 0, len(e.roster))
	for _, c := range e.roster {
		out = append(out, c.Snapshot())
	}
	return out
}

// ThreatSnapshot returns the given enemy's threat rows ordered by
// descending score.
//
// Precondition: id names an enemy in this encounter.
func (e *Encounter) ThreatSnapshot(enemyID string) ([]threat.Entry, error) {
	c, ok := e.byID[enemyID]
	if !ok || c.Side != combatant.SideEnemy {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCombatant, enemyID)
	}
	return e.table.Snapshot(enemyID), nil
}

// Events returns the retained combat log, oldest first.
func (e *Encounter) Events() []Event {
	return e.log.Recent()
}

// Stats returns the running aggregate totals. They are final once the
// encounter has ended, but safe to read at any time.
func (e *Encounter) Stats() Summary {
	return e.summary
}

// emit stamps, logs, and fans an event out to every sink synchronously.
func (e *Encounter) emit(ev Event) {
	ev.EncounterID = e.id
	ev.Tick = e.tick
	e.log.Append(ev)
	for _, s := range e.cfg.Sinks {
		s.HandleEvent(ev)
	}
}

// cleanup sheds every remaining combat effect on both sides and wipes the
// threat table. Heroes keep their health and resource pools.
func (e *Encounter) cleanup() {
	for _, c := range e.roster {
		if len(c.Effects.Clear()) > 0 {
			c.Recompute()
		}
	}
	e.table.Reset()
}

// end finishes the encounter. Defeat and victory share the same path;
// exactly one terminal event is emitted either way.
func (e *Encounter) end(victory bool) {
	if victory {
		e.state = StateVictory
	} else {
		e.state = StateDefeat
	}
	e.summary.Victory = victory
	e.summary.Ticks = e.tick
	e.summary.Elapsed = e.elapsed
	e.cleanup()
	summary := e.summary
	e.cfg.Logger.Info("encounter ended",
		zap.String("encounterId", e.id),
		zap.Bool("victory", victory),
		zap.Uint64("ticks", summary.Ticks),
		zap.Int("damageDealt", summary.DamageDealt),
		zap.Int("healingDone", summary.HealingDone),
		zap.Int("xpEarned", summary.XPEarned),
	)
	e.emit(Event{Type: EventEncounterEnded, Victory: victory, Summary: &summary})
	e.cfg.Hooks.EncounterEnded(e.id, victory)
}
