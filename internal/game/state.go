package game

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Character is a playable figure of the game: a display name, a current
// room, and an inventory. Characters form a fixed roster per content
// provider; players bind to them at runtime.
type Character struct {
	Name        string
	DisplayName string

	room      *Room
	inventory map[string]Item
}

// NewCharacter creates a character standing in startingRoom with an empty
// inventory.
func NewCharacter(name, displayName string, startingRoom *Room) *Character {
	return &Character{
		Name:        name,
		DisplayName: displayName,
		room:        startingRoom,
		inventory:   make(map[string]Item),
	}
}

// Room returns the character's current room.
func (c *Character) Room() *Room { return c.room }

// MoveTo places the character in next.
func (c *Character) MoveTo(next *Room) { c.room = next }

// AddItem puts an item into the inventory.
func (c *Character) AddItem(item Item) {
	c.inventory[strings.ToLower(item.Name)] = item
}

// RemoveItem drops the named item and reports whether it was carried.
func (c *Character) RemoveItem(name string) bool {
	key := strings.ToLower(name)
	_, ok := c.inventory[key]
	delete(c.inventory, key)
	return ok
}

// HasItem reports whether the named item is carried, case-insensitively.
func (c *Character) HasItem(name string) bool {
	_, ok := c.inventory[strings.ToLower(name)]
	return ok
}

// TransferItemTo moves the named item to target's inventory. Reports false
// when the item is not carried.
func (c *Character) TransferItemTo(name string, target *Character) bool {
	key := strings.ToLower(name)
	item, ok := c.inventory[key]
	if !ok {
		return false
	}
	delete(c.inventory, key)
	target.AddItem(item)
	return true
}

// Items returns the inventory sorted by item name.
func (c *Character) Items() []Item {
	out := make([]Item, 0, len(c.inventory))
	for _, item := range c.inventory {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NPC is a non-player figure with a display name and a current room.
type NPC struct {
	Name        string
	DisplayName string

	room *Room
}

// NewNPC creates an NPC standing in startingRoom.
func NewNPC(name, displayName string, startingRoom *Room) *NPC {
	return &NPC{Name: name, DisplayName: displayName, room: startingRoom}
}

// Room returns the NPC's current room.
func (n *NPC) Room() *Room { return n.room }

// MoveTo places the NPC in next.
func (n *NPC) MoveTo(next *Room) { n.room = next }

// State is the mutable game-state graph of one multiplayer room: active
// flags, characters, and NPCs. The UUID is the stable persistence key.
//
// State carries no locking. All mutation happens under the owning room
// coordinator's exclusive execution slot, so command handlers never
// observe interleaved writes.
type State struct {
	UUID uuid.UUID

	flags      FlagSet
	characters map[string]*Character
	npcs       map[string]*NPC
}

// NewState creates an empty state under a fresh UUID.
func NewState() *State {
	return NewStateWithID(uuid.New())
}

// NewStateWithID creates an empty state under the given persistence key.
func NewStateWithID(id uuid.UUID) *State {
	return &State{
		UUID:       id,
		flags:      make(FlagSet),
		characters: make(map[string]*Character),
		npcs:       make(map[string]*NPC),
	}
}

// Flags returns the active flag set.
func (s *State) Flags() FlagSet { return s.flags }

// HasFlag reports whether f is active.
func (s *State) HasFlag(f Flag) bool { return s.flags.Has(f) }

// HasFlags reports whether every given flag is active.
func (s *State) HasFlags(flags ...Flag) bool { return s.flags.HasAll(flags...) }

// AddFlag activates the given flags.
func (s *State) AddFlag(flags ...Flag) { s.flags.Add(flags...) }

// RemoveFlag deactivates f and reports whether it was active.
func (s *State) RemoveFlag(f Flag) bool { return s.flags.Remove(f) }

// AddCharacter registers c under its name.
func (s *State) AddCharacter(c *Character) { s.characters[c.Name] = c }

// Character resolves a character by name, or returns nil.
func (s *State) Character(name string) *Character { return s.characters[name] }

// HasCharacter reports whether a character with the given name exists.
func (s *State) HasCharacter(name string) bool {
	_, ok := s.characters[name]
	return ok
}

// Characters returns all characters sorted by name.
func (s *State) Characters() []*Character {
	out := make([]*Character, 0, len(s.characters))
	for _, c := range s.characters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddNPC registers n under its name.
func (s *State) AddNPC(n *NPC) { s.npcs[n.Name] = n }

// NPC resolves an NPC by name, or returns nil.
func (s *State) NPC(name string) *NPC { return s.npcs[name] }

// HasNPC reports whether an NPC with the given name exists.
func (s *State) HasNPC(name string) bool {
	_, ok := s.npcs[name]
	return ok
}

// NPCs returns all NPCs sorted by name.
func (s *State) NPCs() []*NPC {
	out := make([]*NPC, 0, len(s.npcs))
	for _, n := range s.npcs {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Equal reports whether two states carry the same UUID, flags, characters
// (including room references and inventories), and NPCs.
func (s *State) Equal(other *State) bool {
	if s.UUID != other.UUID {
		return false
	}
	if len(s.flags) != len(other.flags) {
		return false
	}
	for f := range s.flags {
		if !other.flags.Has(f) {
			return false
		}
	}
	if len(s.characters) != len(other.characters) {
		return false
	}
	for name, c := range s.characters {
		o := other.characters[name]
		if o == nil || c.DisplayName != o.DisplayName || roomName(c.room) != roomName(o.room) {
			return false
		}
		if len(c.inventory) != len(o.inventory) {
			return false
		}
		for key, item := range c.inventory {
			if o.inventory[key] != item {
				return false
			}
		}
	}
	if len(s.npcs) != len(other.npcs) {
		return false
	}
	for name, n := range s.npcs {
		o := other.npcs[name]
		if o == nil || n.DisplayName != o.DisplayName || roomName(n.room) != roomName(o.room) {
			return false
		}
	}
	return true
}

func roomName(r *Room) string {
	if r == nil {
		return ""
	}
	return r.Name
}
