// Package encounter owns the combat state machine: it starts from a party
// and an enemy roster, advances on the host loop's tick, routes every
// resolver outcome into events and the threat table, and terminates with
// exactly one victory or defeat. One encounter runs at a time; a tick is
// atomic from the caller's perspective.
package encounter

import (
	"github.com/marchaven/roadband/internal/game/status"
)

// EventType enumerates everything the core reports outward.
type EventType string

const (
	EventEncounterStarted  EventType = "encounter_started"
	EventActionExecuted    EventType = "action_executed"
	EventDamageDealt       EventType = "damage_dealt"
	EventHealingApplied    EventType = "healing_applied"
	EventStatusApplied     EventType = "status_effect_applied"
	EventStatusExpired     EventType = "status_effect_expired"
	EventCombatantDefeated EventType = "combatant_defeated"
	EventPhaseChanged      EventType = "phase_changed"
	EventEncounterEnded    EventType = "encounter_ended"
	EventEncounterAborted  EventType = "encounter_aborted"
)

// Event is the single outward record type. Consumers (rendering, audio,
// combat log, websocket feed) receive it synchronously and must not block.
type Event struct {
	Type        EventType   `json:"type"`
	EncounterID string      `json:"encounterId"`
	Tick        uint64      `json:"tick"`
	ActorID     string      `json:"actorId,omitempty"`
	TargetID    string      `json:"targetId,omitempty"`
	AbilityID   string      `json:"abilityId,omitempty"`
	EffectKind  status.Kind `json:"effectKind,omitempty"`
	Amount      int         `json:"amount,omitempty"`
	Absorbed    int         `json:"absorbed,omitempty"`
	Overkill    int         `json:"overkill,omitempty"`
	Overheal    int         `json:"overheal,omitempty"`
	Critical    bool        `json:"critical,omitempty"`
	Dodged      bool        `json:"dodged,omitempty"`
	Blocked     bool        `json:"blocked,omitempty"`
	Phase       string      `json:"phase,omitempty"`
	Victory     bool        `json:"victory,omitempty"`
	Summary     *Summary    `json:"summary,omitempty"`
}

// Summary is the aggregate a terminal event carries for the external
// reward and loot systems. The core computes it but grants nothing itself.
type Summary struct {
	Victory       bool    `json:"victory"`
	DamageDealt   int     `json:"damageDealt"`
	DamageTaken   int     `json:"damageTaken"`
	HealingDone   int     `json:"healingDone"`
	EnemiesKilled int     `json:"enemiesKilled"`
	HeroesDown    int     `json:"heroesDown"`
	Ticks         uint64  `json:"ticks"`
	Elapsed       float64 `json:"elapsed"`
	XPEarned      int     `json:"xpEarned"`
}

// Sink consumes events as they are emitted. Implementations must return
// quickly; the tick blocks on them.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// HandleEvent calls f.
func (f SinkFunc) HandleEvent(ev Event) {
	f(ev)
}

// Log is a bounded ring of the most recent events, kept for UI combat-log
// consumption.
type Log struct {
	entries []Event
	start   int
	count   int
}

// NewLog returns a log retaining up to capacity events.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{entries: make([]Event, capacity)}
}

// Append records an event, evicting the oldest once full.
func (l *Log) Append(ev Event) {
	idx := (l.start + l.count) % len(l.entries)
	l.entries[idx] = ev
	if l.count < len(l.entries) {
		l.count++
		return
	}
	l.start = (l.start + 1) % len(l.entries)
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	return l.count
}

// Recent returns the retained events oldest-first.
func (l *Log) Recent() []Event {
	out := make([]Event, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(l.start+i)%len(l.entries)])
	}
	return out
}
