// Package threat tracks per-enemy aggro scores for the party. Each engaged
// enemy holds a score per hero; the enemy's current target is the living
// hero with the highest score unless a taunt override is active. Scores
// only ever grow during an encounter and are wiped when it ends.
package threat

import (
	"fmt"
	"sort"
)

// Candidate is a living hero eligible for targeting. Callers pass only
// heroes with health > 0; slot drives the deterministic tie-break.
type Candidate struct {
	ID   string
	Slot int
}

// Entry is one row of an enemy's threat snapshot.
type Entry struct {
	HeroID string  `json:"heroId"`
	Score  float64 `json:"score"`
}

type tauntState struct {
	heroID string
	ticks  int
}

// Table is the encounter's aggro state. Owned by a single encounter and
// mutated only on its tick, so no locking.
type Table struct {
	scores map[string]map[string]float64
	taunts map[string]tauntState
}

// NewTable returns an empty threat table.
func NewTable() *Table {
	return &Table{
		scores: make(map[string]map[string]float64),
		taunts: make(map[string]tauntState),
	}
}

// Engage registers an enemy with the table. Engaged enemies share healing
// threat and keep a score row even before taking damage.
func (t *Table) Engage(enemyID string) {
	if _, ok := t.scores[enemyID]; !ok {
		t.scores[enemyID] = make(map[string]float64)
	}
}

// Disengage drops a defeated enemy's row and any taunt on it. Healing
// threat stops splitting toward it from this point on.
func (t *Table) Disengage(enemyID string) {
	delete(t.scores, enemyID)
	delete(t.taunts, enemyID)
}

// Engaged reports whether the enemy currently holds a row.
func (t *Table) Engaged(enemyID string) bool {
	_, ok := t.scores[enemyID]
	return ok
}

// EngagedCount returns the number of enemies currently engaged.
func (t *Table) EngagedCount() int {
	return len(t.scores)
}

// Record adds threat from a damage event to the (enemy, hero) entry,
// creating it at zero first. Threat is monotonically increasing.
// Precondition: amount >= 0.
func (t *Table) Record(enemyID, heroID string, amount float64) {
	if amount < 0 {
		panic(fmt.Sprintf("threat: Record called with negative amount %v for enemy %s", amount, enemyID))
	}
	t.Engage(enemyID)
	t.scores[enemyID][heroID] += amount
}

// RecordHealing splits healing threat across every engaged enemy: each
// enemy credits the healer multiplier*amount/engaged. A single large heal
// therefore never pulls full aggro on any one enemy, while sustained
// healing still climbs every table.
// Precondition: amount >= 0 and multiplier >= 0.
func (t *Table) RecordHealing(healerID string, amount, multiplier float64) float64 {
	if amount < 0 || multiplier < 0 {
		panic(fmt.Sprintf("threat: RecordHealing called with negative inputs (amount %v, multiplier %v)", amount, multiplier))
	}
	engaged := len(t.scores)
	if engaged == 0 {
		return 0
	}
	share := multiplier * amount / float64(engaged)
	for enemyID := range t.scores {
		t.scores[enemyID][healerID] += share
	}
	return share
}

// Score returns the current threat the hero holds on the enemy.
func (t *Table) Score(enemyID, heroID string) float64 {
	return t.scores[enemyID][heroID]
}

// ApplyTaunt forces the enemy to target the hero for the given number of
// ticks. The underlying scores are untouched; taunt only overrides
// selection.
// Precondition: ticks >= 1.
func (t *Table) ApplyTaunt(enemyID, heroID string, ticks int) {
	if ticks < 1 {
		panic(fmt.Sprintf("threat: ApplyTaunt called with ticks %d for enemy %s", ticks, enemyID))
	}
	t.taunts[enemyID] = tauntState{heroID: heroID, ticks: ticks}
}

// Taunted returns the forced target for the enemy, if a taunt is active.
func (t *Table) Taunted(enemyID string) (string, bool) {
	taunt, ok := t.taunts[enemyID]
	if !ok {
		return "", false
	}
	return taunt.heroID, true
}

// TickTaunts burns one tick from every active taunt and drops the expired
// ones. The encounter calls this once at the end of each non-zero tick.
func (t *Table) TickTaunts() {
	for enemyID, taunt := range t.taunts {
		taunt.ticks--
		if taunt.ticks <= 0 {
			delete(t.taunts, enemyID)
			continue
		}
		t.taunts[enemyID] = taunt
	}
}

// TopTarget returns the hero the enemy attacks this tick: the active taunt
// target when it is still alive, otherwise the living hero with the highest
// score. Ties break toward the lowest slot. ok is false when no living
// candidates remain.
func (t *Table) TopTarget(enemyID string, living []Candidate) (string, bool) {
	if len(living) == 0 {
		return "", false
	}
	if taunt, ok := t.taunts[enemyID]; ok {
		for _, hero := range living {
			if hero.ID == taunt.heroID {
				return hero.ID, true
			}
		}
	}
	row := t.scores[enemyID]
	best := living[0]
	bestScore := row[best.ID]
	for _, hero := range living[1:] {
		score := row[hero.ID]
		if score > bestScore || (score == bestScore && hero.Slot < best.Slot) {
			best = hero
			bestScore = score
		}
	}
	return best.ID, true
}

// Snapshot returns the enemy's threat rows ordered by descending score,
// ties by hero id, for the UI threat overlay.
func (t *Table) Snapshot(enemyID string) []Entry {
	row, ok := t.scores[enemyID]
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, len(row))
	for heroID, score := range row {
		entries = append(entries, Entry{HeroID: heroID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].HeroID < entries[j].HeroID
	})
	return entries
}

// Reset wipes every score and taunt. Called when the encounter ends;
// threat never persists across encounters.
func (t *Table) Reset() {
	t.scores = make(map[string]map[string]float64)
	t.taunts = make(map[string]tauntState)
}
