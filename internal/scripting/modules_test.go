package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/marchaven/roadband/internal/game/rng"
	"github.com/marchaven/roadband/internal/scripting"
)

func runScript(t *testing.T, mgr *scripting.Manager, luaSrc, hook string, args ...lua.LValue) lua.LValue {
	t.Helper()
	dir := writeTempLua(t, "test.lua", luaSrc)
	// Use a unique road per test to avoid collisions
	roadID := "modtest_" + t.Name()
	require.NoError(t, mgr.LoadRoad(roadID, dir, 0))
	ret, err := mgr.CallHook(roadID, hook, args...)
	require.NoError(t, err)
	return ret
}

func TestEngineLog_WritesToLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	mgr := scripting.NewManager(rng.NewSeededSource(1), logger)

	runScript(t, mgr, `
		function do_log()
			engine.log.info("hello from lua")
		end
	`, "do_log")

	found := false
	for _, e := range logs.All() {
		if e.Level == zap.InfoLevel {
			found = true
			break
		}
	}
	assert.True(t, found, "expected Info log entry")
}

func TestEngineLog_AllLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	mgr := scripting.NewManager(rng.NewSeededSource(1), logger)

	runScript(t, mgr, `
		function do_all_logs()
			engine.log.debug("d")
			engine.log.info("i")
			engine.log.warn("w")
			engine.log.error("e")
		end
	`, "do_all_logs")

	levels := map[string]bool{}
	for _, e := range logs.All() {
		levels[e.Level.String()] = true
	}
	assert.True(t, levels["debug"], "expected debug log")
	assert.True(t, levels["info"], "expected info log")
	assert.True(t, levels["warn"], "expected warn log")
	assert.True(t, levels["error"], "expected error log")
}

func TestEngineRoll_Chance_Certainties(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `
		function do_roll()
			if engine.roll.chance(0) then return "zero fired" end
			if not engine.roll.chance(1) then return "one missed" end
			return "ok"
		end
	`, "do_roll")
	assert.Equal(t, lua.LString("ok"), ret)
}

func TestEngineRoll_Pick_InRange(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `
		function do_pick()
			local i = engine.roll.pick(6)
			if i < 1 or i > 6 then return -1 end
			return i
		end
	`, "do_pick")
	n, ok := ret.(lua.LNumber)
	require.True(t, ok, "expected LNumber, got %T", ret)
	assert.GreaterOrEqual(t, int(n), 1)
	assert.LessOrEqual(t, int(n), 6)
}

func TestProperty_Pick_AlwaysInRange(t *testing.T) {
	mgr, _ := newTestManager(t)
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(rt, "n")
		ret := runScript(t, mgr, `
			function check_pick(n)
				local i = engine.roll.pick(n)
				return i >= 1 and i <= n
			end
		`, "check_pick", lua.LNumber(n))
		assert.Equal(t, lua.LTrue, ret, "pick(%d) out of range", n)
	})
}

func TestEngineCombatant_Get_NilCallback_ReturnsNil(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `
		function get_it() return engine.combatant.get("h1") end
	`, "get_it")
	assert.Equal(t, lua.LNil, ret)
}

func TestEngineCombatant_Get_WithCallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.GetCombatant = func(id string) *scripting.CombatantInfo {
		return &scripting.CombatantInfo{ID: id, Name: "Brakka", Side: "enemy", Health: 42, MaxHealth: 100}
	}
	ret := runScript(t, mgr, `
		function get_it()
			local c = engine.combatant.get("ogre-1")
			return c.name .. ":" .. c.health .. ":" .. c.side
		end
	`, "get_it")
	assert.Equal(t, lua.LString("Brakka:42:enemy"), ret)
}

func TestEngineCombatant_Health_WithCallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.GetCombatant = func(id string) *scripting.CombatantInfo {
		return &scripting.CombatantInfo{ID: id, Health: 77}
	}
	ret := runScript(t, mgr, `
		function get_it() return engine.combatant.health("h1") end
	`, "get_it")
	assert.Equal(t, lua.LNumber(77), ret)
}

func TestEngineCombatant_Health_UnknownID_ReturnsNil(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.GetCombatant = func(id string) *scripting.CombatantInfo { return nil }
	ret := runScript(t, mgr, `
		function get_it() return engine.combatant.health("ghost") end
	`, "get_it")
	assert.Equal(t, lua.LNil, ret)
}

func TestEngineCombatant_Effects_WithCallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.GetCombatant = func(id string) *scripting.CombatantInfo {
		return &scripting.CombatantInfo{ID: id, Effects: []string{"burn", "stun"}}
	}
	ret := runScript(t, mgr, `
		function get_it()
			local fx = engine.combatant.effects("h1")
			return #fx .. ":" .. fx[1] .. ":" .. fx[2]
		end
	`, "get_it")
	assert.Equal(t, lua.LString("2:burn:stun"), ret)
}

func wireEncounter(mgr *scripting.Manager, combatants []*scripting.CombatantInfo) {
	mgr.GetCombatant = func(id string) *scripting.CombatantInfo {
		for _, c := range combatants {
			if c.ID == id {
				return c
			}
		}
		return nil
	}
	mgr.Combatants = func() []*scripting.CombatantInfo { return combatants }
}

func TestEngineEncounter_EnemyCount_WithCallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	wireEncounter(mgr, []*scripting.CombatantInfo{
		{ID: "ogre-1", Side: "enemy", Health: 50, MaxHealth: 50},
		{ID: "h1", Side: "party", Health: 100, MaxHealth: 100},
		{ID: "h2", Side: "party", Health: 100, MaxHealth: 100},
	})
	ret := runScript(t, mgr, `
		function get_it() return engine.encounter.enemy_count("ogre-1") end
	`, "get_it")
	assert.Equal(t, lua.LNumber(2), ret)
}

func TestEngineEncounter_AllyCount_ExcludesSelfAndDefeated(t *testing.T) {
	mgr, _ := newTestManager(t)
	wireEncounter(mgr, []*scripting.CombatantInfo{
		{ID: "wolf-1", Side: "enemy", Health: 30, MaxHealth: 30},
		{ID: "wolf-2", Side: "enemy", Health: 30, MaxHealth: 30},
		{ID: "wolf-3", Side: "enemy", Defeated: true},
		{ID: "h1", Side: "party", Health: 100, MaxHealth: 100},
	})
	ret := runScript(t, mgr, `
		function get_it() return engine.encounter.ally_count("wolf-1") end
	`, "get_it")
	assert.Equal(t, lua.LNumber(1), ret)
}

func TestEngineEncounter_EnemyCount_NilCallback_ReturnsZero(t *testing.T) {
	mgr, _ := newTestManager(t)
	ret := runScript(t, mgr, `
		function get_it() return engine.encounter.enemy_count("wolf-1") end
	`, "get_it")
	assert.Equal(t, lua.LNumber(0), ret)
}

func TestEngineWorld_Announce_CallsCallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	var got string
	mgr.Announce = func(msg string) { got = msg }
	runScript(t, mgr, `
		function do_announce()
			engine.world.announce("the bridge trembles")
		end
	`, "do_announce")
	assert.Equal(t, "the bridge trembles", got)
}

func TestEngineWorld_Announce_NilCallback_NoPanic(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.NotPanics(t, func() {
		runScript(t, mgr, `
			function do_announce() engine.world.announce("nobody listens") end
		`, "do_announce")
	})
}

func TestProperty_CountsSumToLivingOthers(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mgr, _ := newTestManager(t)
		nEnemies := rapid.IntRange(1, 5).Draw(rt, "enemies")
		nHeroes := rapid.IntRange(0, 5).Draw(rt, "heroes")

		combatants := make([]*scripting.CombatantInfo, 0, nEnemies+nHeroes)
		for i := 0; i < nEnemies; i++ {
			combatants = append(combatants, &scripting.CombatantInfo{
				ID: "e" + string(rune('0'+i)), Side: "enemy", Health: 10, MaxHealth: 10,
			})
		}
		for i := 0; i < nHeroes; i++ {
			combatants = append(combatants, &scripting.CombatantInfo{
				ID: "h" + string(rune('0'+i)), Side: "party", Health: 10, MaxHealth: 10,
			})
		}
		wireEncounter(mgr, combatants)

		ret := runScript(t, mgr, `
			function get_it(id)
				return engine.encounter.enemy_count(id) + engine.encounter.ally_count(id)
			end
		`, "get_it", lua.LString("e0"))
		total, ok := ret.(lua.LNumber)
		if !ok {
			rt.Fatalf("expected LNumber, got %T: %v", ret, ret)
		}
		// enemy(nHeroes) + ally(nEnemies-1) = nEnemies + nHeroes - 1
		expected := lua.LNumber(nEnemies + nHeroes - 1)
		if total != expected {
			rt.Fatalf("expected %v, got %v (enemies=%d heroes=%d)", expected, total, nEnemies, nHeroes)
		}
	})
}
