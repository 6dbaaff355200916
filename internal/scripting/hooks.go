package scripting

import (
	lua "github.com/yuin/gopher-lua"
)

// Well-known lifecycle hook names. Scripts define these as global functions;
// missing hooks are silently skipped.
const (
	HookEncounterStarted = "on_encounter_started"
	HookEncounterEnded   = "on_encounter_ended"
)

// EncounterHooks dispatches encounter lifecycle notifications into the road's
// Lua VM. It satisfies the combat core's Hooks interface.
//
// Phase transitions call the script named by the phase definition directly,
// passing (encounter_id, enemy_id).
type EncounterHooks struct {
	mgr  *Manager
	road string
}

// NewEncounterHooks creates a hook dispatcher bound to roadID's VM.
//
// Precondition: mgr must be non-nil.
func NewEncounterHooks(mgr *Manager, roadID string) *EncounterHooks {
	if mgr == nil {
		panic("scripting: nil manager")
	}
	return &EncounterHooks{mgr: mgr, road: roadID}
}

// EncounterStarted calls on_encounter_started(encounter_id, enemy_id...).
func (h *EncounterHooks) EncounterStarted(encounterID string, enemyIDs []string) {
	args := make([]lua.LValue, 0, len(enemyIDs)+1)
	args = append(args, lua.LString(encounterID))
	for _, id := range enemyIDs {
		args = append(args, lua.LString(id))
	}
	h.mgr.CallHook(h.road, HookEncounterStarted, args...) //nolint:errcheck
}

// EncounterEnded calls on_encounter_ended(encounter_id, victory).
func (h *EncounterHooks) EncounterEnded(encounterID string, victory bool) {
	h.mgr.CallHook(h.road, HookEncounterEnded, lua.LString(encounterID), lua.LBool(victory)) //nolint:errcheck
}

// PhaseEntered calls the phase's named script as script(encounter_id, enemy_id).
func (h *EncounterHooks) PhaseEntered(encounterID, enemyID, script string) {
	if script == "" {
		return
	}
	h.mgr.CallHook(h.road, script, lua.LString(encounterID), lua.LString(enemyID)) //nolint:errcheck
}
