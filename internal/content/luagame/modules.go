package luagame

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/protocol"
)

// registerEngineModule defines the engine global that command functions run
// against. Every function resolves the current call's state through p.cur;
// calling one outside a command raises a Lua error.
func (p *Provider) registerEngineModule() {
	engine := p.L.NewTable()
	p.L.SetGlobal("engine", engine)

	register := func(name string, fn lua.LGFunction) {
		p.L.SetField(engine, name, p.L.NewFunction(fn))
	}

	// Output.
	register("narrate", func(L *lua.LState) int {
		c := p.call(L)
		c.responses = append(c.responses, game.Narrate(L.CheckString(1)))
		return 0
	})
	register("narrate_all", func(L *lua.LState) int {
		c := p.call(L)
		c.responses = append(c.responses, game.NarrateAll(L.CheckString(1)))
		return 0
	})
	register("speak", func(L *lua.LState) int {
		c := p.call(L)
		c.responses = append(c.responses, game.Speak(L.CheckString(1), L.CheckString(2)))
		return 0
	})
	register("fail", func(L *lua.LState) int {
		c := p.call(L)
		code := protocol.ErrorCode(L.CheckInt(1))
		if !code.Valid() {
			L.RaiseError("engine.fail: unknown error code %d", int(code))
		}
		c.responses = append(c.responses, game.Unicast(protocol.NewError(code)))
		return 0
	})

	// Flags.
	register("has_flag", func(L *lua.LState) int {
		c := p.call(L)
		L.Push(lua.LBool(c.state.HasFlag(game.Flag(L.CheckString(1)))))
		return 1
	})
	register("set_flag", func(L *lua.LState) int {
		c := p.call(L)
		c.state.AddFlag(game.Flag(L.CheckString(1)))
		return 0
	})
	register("clear_flag", func(L *lua.LState) int {
		c := p.call(L)
		c.state.RemoveFlag(game.Flag(L.CheckString(1)))
		return 0
	})

	// The acting character.
	register("actor", func(L *lua.LState) int {
		c := p.call(L)
		L.Push(lua.LString(c.actor.Name))
		return 1
	})
	register("actor_display", func(L *lua.LState) int {
		c := p.call(L)
		L.Push(lua.LString(c.actor.DisplayName))
		return 1
	})
	register("actor_room", func(L *lua.LState) int {
		c := p.call(L)
		L.Push(lua.LString(c.actor.Room().Name))
		return 1
	})
	register("room_narration", func(L *lua.LState) int {
		c := p.call(L)
		L.Push(lua.LString(c.actor.Room().LongDescription))
		return 1
	})

	// Movement. engine.exit resolves a direction from the actor's room to
	// "open", "locked", or nil when there is no exit.
	register("exit", func(L *lua.LState) int {
		c := p.call(L)
		dir := L.CheckString(1)
		room := c.actor.Room()
		if room.Exit(dir) == nil {
			L.Push(lua.LNil)
			return 1
		}
		if !room.ExitUnlocked(dir, c.state.Flags()) {
			L.Push(lua.LString("locked"))
			return 1
		}
		L.Push(lua.LString("open"))
		return 1
	})
	register("move", func(L *lua.LState) int {
		c := p.call(L)
		dir := L.CheckString(1)
		next := c.actor.Room().Exit(dir)
		if next == nil {
			L.RaiseError("engine.move: no exit %q from %q", dir, c.actor.Room().Name)
		}
		c.actor.MoveTo(next)
		L.Push(lua.LString(next.DisplayName))
		return 1
	})

	// Items.
	register("item_here", func(L *lua.LState) int {
		c := p.call(L)
		name := L.CheckString(1)
		room := c.actor.Room()
		if !room.ItemVisible(name, c.state.Flags()) {
			L.Push(lua.LNil)
			return 1
		}
		item, _ := room.Item(name)
		L.Push(lua.LString(item.DisplayName))
		return 1
	})
	register("take_item", func(L *lua.LState) int {
		c := p.call(L)
		name := L.CheckString(1)
		room := c.actor.Room()
		if !room.ItemVisible(name, c.state.Flags()) {
			L.Push(lua.LFalse)
			return 1
		}
		item, _ := room.Item(name)
		c.actor.AddItem(item)
		L.Push(lua.LTrue)
		return 1
	})
	register("has_item", func(L *lua.LState) int {
		c := p.call(L)
		L.Push(lua.LBool(c.actor.HasItem(L.CheckString(1))))
		return 1
	})
	register("drop_item", func(L *lua.LState) int {
		c := p.call(L)
		L.Push(lua.LBool(c.actor.RemoveItem(L.CheckString(1))))
		return 1
	})
	register("inventory", func(L *lua.LState) int {
		c := p.call(L)
		tbl := L.NewTable()
		for _, item := range c.actor.Items() {
			tbl.Append(lua.LString(item.DisplayName))
		}
		L.Push(tbl)
		return 1
	})

	// Company in the actor's room, actor excluded.
	register("company", func(L *lua.LState) int {
		c := p.call(L)
		tbl := L.NewTable()
		for _, ch := range c.state.Characters() {
			if ch.Name != c.actor.Name && ch.Room() == c.actor.Room() {
				tbl.Append(lua.LString(ch.DisplayName))
			}
		}
		for _, n := range c.state.NPCs() {
			if n.Room() == c.actor.Room() {
				tbl.Append(lua.LString(n.DisplayName))
			}
		}
		L.Push(tbl)
		return 1
	})
	register("npc_here", func(L *lua.LState) int {
		c := p.call(L)
		npc := c.state.NPC(L.CheckString(1))
		L.Push(lua.LBool(npc != nil && npc.Room() == c.actor.Room()))
		return 1
	})
}

// call returns the current call context or raises a Lua error when an
// engine.* function runs outside a command.
func (p *Provider) call(L *lua.LState) *callContext {
	if p.cur == nil {
		L.RaiseError("engine functions are only available inside commands")
	}
	return p.cur
}
