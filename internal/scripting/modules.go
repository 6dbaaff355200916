package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/game/rng"
)

// RegisterModules registers all engine.* Lua tables into L.
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L with log, roll, combatant,
// encounter, and world submodules.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetGlobal("engine", engine)

	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "roll", m.rollModule(L))
	L.SetField(engine, "combatant", m.combatantModule(L))
	L.SetField(engine, "encounter", m.encounterModule(L))
	L.SetField(engine, "world", m.worldModule(L))
}

func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	levels := map[string]func(string, ...zap.Field){
		"debug": m.logger.Debug,
		"info":  m.logger.Info,
		"warn":  m.logger.Warn,
		"error": m.logger.Error,
	}
	for name, logFn := range levels {
		fn := logFn
		L.SetField(tbl, name, L.NewFunction(func(l *lua.LState) int {
			msg := l.CheckString(1)
			fn("lua: "+msg, zap.String("source", "script"))
			return 0
		}))
	}
	return tbl
}

func (m *Manager) rollModule(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "chance", L.NewFunction(func(l *lua.LState) int {
		p := float64(l.CheckNumber(1))
		l.Push(lua.LBool(rng.Chance(m.src, p)))
		return 1
	}))
	// pick(n) returns a 1-based index for table selection.
	L.SetField(tbl, "pick", L.NewFunction(func(l *lua.LState) int {
		n := l.CheckInt(1)
		if n < 1 {
			l.ArgError(1, "pick requires n >= 1")
			return 0
		}
		l.Push(lua.LNumber(m.src.Intn(n) + 1))
		return 1
	}))
	return tbl
}

func (m *Manager) combatantModule(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "get", L.NewFunction(func(l *lua.LState) int {
		id := l.CheckString(1)
		if m.GetCombatant == nil {
			l.Push(lua.LNil)
			return 1
		}
		c := m.GetCombatant(id)
		if c == nil {
			l.Push(lua.LNil)
			return 1
		}
		l.Push(combatantToTable(l, c))
		return 1
	}))
	L.SetField(tbl, "health", L.NewFunction(func(l *lua.LState) int {
		id := l.CheckString(1)
		if m.GetCombatant == nil {
			l.Push(lua.LNil)
			return 1
		}
		c := m.GetCombatant(id)
		if c == nil {
			l.Push(lua.LNil)
			return 1
		}
		l.Push(lua.LNumber(c.Health))
		return 1
	}))
	L.SetField(tbl, "effects", L.NewFunction(func(l *lua.LState) int {
		id := l.CheckString(1)
		if m.GetCombatant == nil {
			l.Push(lua.LNil)
			return 1
		}
		c := m.GetCombatant(id)
		if c == nil {
			l.Push(lua.LNil)
			return 1
		}
		out := l.NewTable()
		for _, kind := range c.Effects {
			out.Append(lua.LString(kind))
		}
		l.Push(out)
		return 1
	}))
	return tbl
}

func (m *Manager) encounterModule(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "enemy_count", L.NewFunction(func(l *lua.LState) int {
		id := l.CheckString(1)
		l.Push(lua.LNumber(m.countSides(id, false)))
		return 1
	}))
	L.SetField(tbl, "ally_count", L.NewFunction(func(l *lua.LState) int {
		id := l.CheckString(1)
		l.Push(lua.LNumber(m.countSides(id, true)))
		return 1
	}))
	return tbl
}

// countSides counts living combatants on the same (allies, excluding self)
// or opposite (enemies) side as id. Returns 0 when callbacks are unwired or
// id is unknown.
func (m *Manager) countSides(id string, sameSide bool) int {
	if m.GetCombatant == nil || m.Combatants == nil {
		return 0
	}
	self := m.GetCombatant(id)
	if self == nil {
		return 0
	}
	count := 0
	for _, c := range m.Combatants() {
		if c.Defeated || c.ID == id {
			continue
		}
		if sameSide == (c.Side == self.Side) {
			count++
		}
	}
	return count
}

func (m *Manager) worldModule(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "announce", L.NewFunction(func(l *lua.LState) int {
		msg := l.CheckString(1)
		if m.Announce != nil {
			m.Announce(msg)
		}
		return 0
	}))
	return tbl
}

func combatantToTable(L *lua.LState, c *CombatantInfo) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LString(c.ID))
	L.SetField(tbl, "name", lua.LString(c.Name))
	L.SetField(tbl, "side", lua.LString(c.Side))
	L.SetField(tbl, "health", lua.LNumber(c.Health))
	L.SetField(tbl, "max_health", lua.LNumber(c.MaxHealth))
	L.SetField(tbl, "resource", lua.LNumber(c.Resource))
	L.SetField(tbl, "max_resource", lua.LNumber(c.MaxResource))
	L.SetField(tbl, "defeated", lua.LBool(c.Defeated))
	return tbl
}
