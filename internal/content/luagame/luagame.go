// Package luagame loads a game definition from a sandboxed Lua script. The
// script declares the map, the starting roster, and the intro prose, and
// implements its verbs as Lua functions against the engine.* module.
package luagame

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/protocol"
	"github.com/ghostline/ghostline/internal/scripting"
)

// callContext is the game state visible to engine.* functions for the
// duration of one command call.
type callContext struct {
	desc      *game.Description
	state     *game.State
	actor     *game.Character
	responses []game.Response
}

// Provider runs one Lua script as a content provider. The script executes
// once at load; afterwards only its command functions are called.
//
// All rooms created from one provider share the script's LState, so command
// calls from different rooms serialize on the provider mutex.
type Provider struct {
	path   string
	logger *zap.Logger

	mu  sync.Mutex
	L   *lua.LState
	cur *callContext
}

// New loads and executes the script at path inside a sandboxed VM.
//
// Postcondition: Returns an error when the script does not run or does not
// declare a game table.
func New(path string, logger *zap.Logger) (*Provider, error) {
	p := &Provider{
		path:   path,
		logger: logger,
		L:      scripting.NewSandboxedState(0),
	}
	p.registerEngineModule()

	if err := p.L.DoFile(path); err != nil {
		p.L.Close()
		return nil, fmt.Errorf("loading game script %s: %w", path, err)
	}
	if _, ok := p.L.GetGlobal("game").(*lua.LTable); !ok {
		p.L.Close()
		return nil, fmt.Errorf("game script %s declares no game table", path)
	}

	logger.Info("game script loaded", zap.String("path", path))
	return p, nil
}

// Close releases the script VM.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
}

// Describe builds the map and verb table from the script's game table.
func (p *Provider) Describe() (*game.Description, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	root := p.gameTable()
	name, err := tableString(root, "name")
	if err != nil {
		return nil, err
	}

	gameMap := game.NewGameMap()
	if err := eachEntry(root, "rooms", func(entry *lua.LTable) error {
		roomName, err := tableString(entry, "name")
		if err != nil {
			return err
		}
		display, _ := tableString(entry, "display_name")
		desc, _ := tableString(entry, "description")
		long, _ := tableString(entry, "long_description")
		gameMap.AddRoom(game.NewRoom(roomName, display, desc, long))
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachEntry(root, "connections", func(entry *lua.LTable) error {
		from, to, err := roomPair(gameMap, entry, "from", "to")
		if err != nil {
			return err
		}
		exit, err := tableString(entry, "exit")
		if err != nil {
			return err
		}
		back, err := tableString(entry, "back")
		if err != nil {
			return err
		}
		if lock, _ := tableString(entry, "lock_flag"); lock != "" {
			from.ConnectLocked(exit, back, to, game.Flag(lock))
		} else {
			from.Connect(exit, back, to)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachEntry(root, "items", func(entry *lua.LTable) error {
		roomName, err := tableString(entry, "room")
		if err != nil {
			return err
		}
		room := gameMap.Room(roomName)
		if room == nil {
			return fmt.Errorf("game script %s: item in unknown room %q", p.path, roomName)
		}
		itemName, err := tableString(entry, "name")
		if err != nil {
			return err
		}
		display, _ := tableString(entry, "display_name")
		desc, _ := tableString(entry, "description")
		item := game.Item{Name: itemName, DisplayName: display, Description: desc}
		if hidden, _ := tableString(entry, "hidden_flag"); hidden != "" {
			room.AddHiddenItem(item, game.Flag(hidden))
		} else {
			room.AddItem(item)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	commands := make(map[string]game.CommandHandler)
	if tbl, ok := root.RawGetString("commands").(*lua.LTable); ok {
		var err error
		tbl.ForEach(func(key, value lua.LValue) {
			verb, kok := key.(lua.LString)
			fn, vok := value.(*lua.LFunction)
			if !kok || !vok {
				err = fmt.Errorf("game script %s: commands entries must map verbs to functions", p.path)
				return
			}
			commands[string(verb)] = p.handler(string(verb), fn)
		})
		if err != nil {
			return nil, err
		}
	}
	if len(commands) == 0 {
		return nil, fmt.Errorf("game script %s declares no commands", p.path)
	}

	return &game.Description{GameName: name, Map: gameMap, Commands: commands}, nil
}

// DefaultState places the script's characters and NPCs in their starting
// rooms.
func (p *Provider) DefaultState(desc *game.Description) (*game.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	root := p.gameTable()
	state := game.NewState()

	if err := eachEntry(root, "characters", func(entry *lua.LTable) error {
		name, display, room, err := rosterEntry(desc, entry)
		if err != nil {
			return err
		}
		state.AddCharacter(game.NewCharacter(name, display, room))
		return nil
	}); err != nil {
		return nil, err
	}
	if err := eachEntry(root, "npcs", func(entry *lua.LTable) error {
		name, display, room, err := rosterEntry(desc, entry)
		if err != nil {
			return err
		}
		state.AddNPC(game.NewNPC(name, display, room))
		return nil
	}); err != nil {
		return nil, err
	}

	if len(state.Characters()) == 0 {
		return nil, fmt.Errorf("game script %s declares no characters", p.path)
	}
	return state, nil
}

// Intro returns the script's opening prose.
func (p *Provider) Intro() []protocol.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []protocol.Envelope
	if tbl, ok := p.gameTable().RawGetString("intro").(*lua.LTable); ok {
		for i := 1; ; i++ {
			v := tbl.RawGetInt(i)
			if v == lua.LNil {
				break
			}
			if s, ok := v.(lua.LString); ok {
				out = append(out, &protocol.Narrator{Message: string(s)})
			}
		}
	}
	return out
}

// handler adapts one Lua command function to the engine's handler shape.
// Command words are passed to the function as string arguments; the
// function emits its output through engine.* calls.
func (p *Provider) handler(verb string, fn *lua.LFunction) game.CommandHandler {
	return game.CommandFunc(func(actor *game.Character, desc *game.Description, state *game.State, args []string) []game.Response {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.cur = &callContext{desc: desc, state: state, actor: actor}
		defer func() { p.cur = nil }()

		scripting.ResetInstructionLimit(p.L, 0)
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = lua.LString(a)
		}
		if err := p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, largs...); err != nil {
			p.logger.Warn("game script command failed",
				zap.String("verb", verb),
				zap.Error(err),
			)
			return []game.Response{game.Unicast(protocol.NewError(protocol.ErrCommandUnavailable))}
		}
		return p.cur.responses
	})
}

func (p *Provider) gameTable() *lua.LTable {
	tbl, _ := p.L.GetGlobal("game").(*lua.LTable)
	return tbl
}

/* ------------------------------ lua helpers ------------------------------ */

func tableString(tbl *lua.LTable, key string) (string, error) {
	if tbl == nil {
		return "", fmt.Errorf("missing table for %q", key)
	}
	v := tbl.RawGetString(key)
	if v == lua.LNil {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(lua.LString)
	if !ok {
		return "", fmt.Errorf("field %q is not a string", key)
	}
	return string(s), nil
}

// eachEntry calls fn for every element of the named array field. A missing
// field is treated as an empty array.
func eachEntry(root *lua.LTable, field string, fn func(*lua.LTable) error) error {
	if root == nil {
		return nil
	}
	tbl, ok := root.RawGetString(field).(*lua.LTable)
	if !ok {
		return nil
	}
	for i := 1; ; i++ {
		v := tbl.RawGetInt(i)
		if v == lua.LNil {
			return nil
		}
		entry, ok := v.(*lua.LTable)
		if !ok {
			return fmt.Errorf("%s[%d] is not a table", field, i)
		}
		if err := fn(entry); err != nil {
			return fmt.Errorf("%s[%d]: %w", field, i, err)
		}
	}
}

func roomPair(m *game.GameMap, entry *lua.LTable, fromKey, toKey string) (*game.Room, *game.Room, error) {
	fromName, err := tableString(entry, fromKey)
	if err != nil {
		return nil, nil, err
	}
	toName, err := tableString(entry, toKey)
	if err != nil {
		return nil, nil, err
	}
	from, to := m.Room(fromName), m.Room(toName)
	if from == nil || to == nil {
		return nil, nil, fmt.Errorf("connection references unknown room %q or %q", fromName, toName)
	}
	return from, to, nil
}

func rosterEntry(desc *game.Description, entry *lua.LTable) (name, display string, room *game.Room, err error) {
	if name, err = tableString(entry, "name"); err != nil {
		return "", "", nil, err
	}
	display, _ = tableString(entry, "display_name")
	roomName, err := tableString(entry, "room")
	if err != nil {
		return "", "", nil, err
	}
	if room = desc.Map.Room(roomName); room == nil {
		return "", "", nil, fmt.Errorf("starting room %q is not on the map", roomName)
	}
	return name, display, room, nil
}
