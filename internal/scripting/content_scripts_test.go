package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/scripting"
)

// repoRoot walks up from the test's working directory to find the module root.
func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root
		}
		parent := filepath.Dir(root)
		if parent == root {
			t.Fatalf("could not find repo root from %s", wd)
		}
		root = parent
	}
}

// loadShippedScripts loads the repo's content/scripts into the __global__ VM.
func loadShippedScripts(t *testing.T, mgr *scripting.Manager) {
	t.Helper()
	dir := filepath.Join(repoRoot(t), "content", "scripts")
	require.NoError(t, mgr.LoadGlobal(dir, 0))
}

// --- lifecycle.lua ---

func TestLifecycle_EncounterEnded_Victory_Announces(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadShippedScripts(t, mgr)
	var got string
	mgr.Announce = func(msg string) { got = msg }

	_, err := mgr.CallHook("__global__", "on_encounter_ended", lua.LString("enc-1"), lua.LTrue)
	require.NoError(t, err)
	assert.Equal(t, "The party stands victorious.", got)
}

func TestLifecycle_EncounterEnded_Defeat_Announces(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadShippedScripts(t, mgr)
	var got string
	mgr.Announce = func(msg string) { got = msg }

	_, err := mgr.CallHook("__global__", "on_encounter_ended", lua.LString("enc-1"), lua.LFalse)
	require.NoError(t, err)
	assert.Equal(t, "The party has fallen.", got)
}

func TestLifecycle_EncounterStarted_LogsEnemyCount(t *testing.T) {
	mgr, logs := newTestManager(t)
	loadShippedScripts(t, mgr)

	_, err := mgr.CallHook("__global__", "on_encounter_started",
		lua.LString("enc-1"), lua.LString("wolf-1"), lua.LString("wolf-2"))
	require.NoError(t, err)

	found := false
	for _, e := range logs.All() {
		if e.Level == zap.InfoLevel && e.Message == "lua: encounter enc-1 started against 2 enemies" {
			found = true
			break
		}
	}
	assert.True(t, found, "expected Info log with enemy count")
}

// --- boss_phases.lua ---

func TestBossPhases_OgreEnrage_AnnouncesAFlavorLine(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadShippedScripts(t, mgr)
	var got string
	mgr.Announce = func(msg string) { got = msg }

	_, err := mgr.CallHook("__global__", "ogre_enrage", lua.LString("enc-1"), lua.LString("ogre-1"))
	require.NoError(t, err)

	lines := []string{
		"The ogre bellows and slams the ground!",
		"Froth drips from the ogre's tusks!",
		"The ogre's eyes burn red with fury!",
	}
	assert.Contains(t, lines, got)
}

func TestBossPhases_OgreLastStand_AliveBoss_Announces(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadShippedScripts(t, mgr)
	mgr.GetCombatant = func(id string) *scripting.CombatantInfo {
		return &scripting.CombatantInfo{ID: id, Health: 12, MaxHealth: 400}
	}
	var got string
	mgr.Announce = func(msg string) { got = msg }

	_, err := mgr.CallHook("__global__", "ogre_last_stand", lua.LString("enc-1"), lua.LString("ogre-1"))
	require.NoError(t, err)
	assert.Equal(t, "Bleeding and cornered, the ogre fights with desperate fury!", got)
}

func TestBossPhases_OgreLastStand_NoCombatantLookup_Silent(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadShippedScripts(t, mgr)
	called := false
	mgr.Announce = func(msg string) { called = true }

	_, err := mgr.CallHook("__global__", "ogre_last_stand", lua.LString("enc-1"), lua.LString("ogre-1"))
	require.NoError(t, err)
	assert.False(t, called, "expected no announcement without combatant lookup")
}

// --- kings_road/patrol.lua ---

func loadKingsRoadScripts(t *testing.T, mgr *scripting.Manager) {
	t.Helper()
	dir := filepath.Join(repoRoot(t), "content", "scripts", "kings_road")
	require.NoError(t, mgr.LoadRoad("kings_road", dir, 0))
}

func TestPatrol_EncounterStarted_AnnouncesAnAmbushLine(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadKingsRoadScripts(t, mgr)
	var got string
	mgr.Announce = func(msg string) { got = msg }

	_, err := mgr.CallHook("kings_road", "on_encounter_started",
		lua.LString("enc-1"), lua.LString("wolf-1"))
	require.NoError(t, err)

	lines := []string{
		"Shapes slink out of the hedgerows.",
		"A low growl rolls across the road.",
		"Steel glints in the treeline ahead.",
	}
	assert.Contains(t, lines, got)
}

func TestPatrol_EncounterEnded_AnnouncesPerOutcome(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadKingsRoadScripts(t, mgr)
	var got string
	mgr.Announce = func(msg string) { got = msg }

	_, err := mgr.CallHook("kings_road", "on_encounter_ended", lua.LString("enc-1"), lua.LTrue)
	require.NoError(t, err)
	assert.Equal(t, "The road is clear, for now.", got)

	_, err = mgr.CallHook("kings_road", "on_encounter_ended", lua.LString("enc-1"), lua.LFalse)
	require.NoError(t, err)
	assert.Equal(t, "The King's Road claims another band.", got)
}

// The road VM replaces the global one wholesale: a road with its own script
// directory never sees global hooks it does not redefine.
func TestRoadVMDoesNotFallBackPerHook(t *testing.T) {
	mgr, _ := newTestManager(t)
	loadShippedScripts(t, mgr)
	loadKingsRoadScripts(t, mgr)

	ret, err := mgr.CallHook("kings_road", "ogre_enrage", lua.LString("enc-1"), lua.LString("ogre-1"))
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret, "global-only hooks are invisible from a road VM")
}
