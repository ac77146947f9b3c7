// Package game holds the game-state model, the content-provider contract,
// and the command engine that executes player commands against a room's
// state. Nothing in this package performs I/O: content is supplied by a
// Provider and durability is someone else's job.
package game

import (
	"sort"
	"strings"
)

// Flag is a sparse boolean fact gating content: a door unlocked, an event
// seen, an item collected. The flag universe is closed per content
// provider.
type Flag string

// FlagSet is a set of active flags with efficient membership tests.
type FlagSet map[Flag]struct{}

// NewFlagSet builds a set from the given flags.
func NewFlagSet(flags ...Flag) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s[f] = struct{}{}
	}
	return s
}

// Has reports whether f is active.
func (s FlagSet) Has(f Flag) bool {
	_, ok := s[f]
	return ok
}

// HasAll reports whether every given flag is active. An empty argument
// list is trivially satisfied.
func (s FlagSet) HasAll(flags ...Flag) bool {
	for _, f := range flags {
		if !s.Has(f) {
			return false
		}
	}
	return true
}

// Add activates the given flags.
func (s FlagSet) Add(flags ...Flag) {
	for _, f := range flags {
		s[f] = struct{}{}
	}
}

// Remove deactivates f and reports whether it was active.
func (s FlagSet) Remove(f Flag) bool {
	_, ok := s[f]
	delete(s, f)
	return ok
}

// All returns the active flags in sorted order.
func (s FlagSet) All() []Flag {
	out := make([]Flag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Item is an inert game object that characters carry and rooms contain.
type Item struct {
	Name        string
	DisplayName string
	Description string
}

// Room is one location of the game map. Connections and items may be
// gated behind flags: a gated exit or item is invisible until every
// required flag is active.
type Room struct {
	Name            string
	DisplayName     string
	Description     string
	LongDescription string

	connections map[string]*Room
	exitFlags   map[string][]Flag
	items       map[string]Item
	itemFlags   map[string][]Flag
}

// NewRoom creates a room with no connections or items.
func NewRoom(name, displayName, description, longDescription string) *Room {
	return &Room{
		Name:            name,
		DisplayName:     displayName,
		Description:     description,
		LongDescription: longDescription,
		connections:     make(map[string]*Room),
		exitFlags:       make(map[string][]Flag),
		items:           make(map[string]Item),
		itemFlags:       make(map[string][]Flag),
	}
}

// Connect links this room to other through dir, and other back to this
// room through oppositeDir.
func (r *Room) Connect(dir, oppositeDir string, other *Room) *Room {
	r.connections[strings.ToLower(dir)] = other
	other.connections[strings.ToLower(oppositeDir)] = r
	return r
}

// ConnectLocked is Connect plus flag requirements on the forward direction.
func (r *Room) ConnectLocked(dir, oppositeDir string, other *Room, flags ...Flag) *Room {
	r.Connect(dir, oppositeDir, other)
	r.exitFlags[strings.ToLower(dir)] = append(r.exitFlags[strings.ToLower(dir)], flags...)
	return r
}

// Exit returns the room behind dir, or nil if there is no connection.
func (r *Room) Exit(dir string) *Room {
	return r.connections[strings.ToLower(dir)]
}

// ExitUnlocked reports whether the exit through dir is passable given the
// active flags. Ungated exits are always passable.
func (r *Room) ExitUnlocked(dir string, active FlagSet) bool {
	return active.HasAll(r.exitFlags[strings.ToLower(dir)]...)
}

// AddItem places an item in the room.
func (r *Room) AddItem(item Item) *Room {
	r.items[strings.ToLower(item.Name)] = item
	return r
}

// AddHiddenItem places an item that only becomes visible once every given
// flag is active.
func (r *Room) AddHiddenItem(item Item, flags ...Flag) *Room {
	r.AddItem(item)
	r.itemFlags[strings.ToLower(item.Name)] = append(r.itemFlags[strings.ToLower(item.Name)], flags...)
	return r
}

// Item looks up an item by name, case-insensitively.
func (r *Room) Item(name string) (Item, bool) {
	item, ok := r.items[strings.ToLower(name)]
	return item, ok
}

// ItemVisible reports whether the named item is present and not hidden
// behind missing flags.
func (r *Room) ItemVisible(name string, active FlagSet) bool {
	key := strings.ToLower(name)
	if _, ok := r.items[key]; !ok {
		return false
	}
	return active.HasAll(r.itemFlags[key]...)
}

// GameMap is the room topology of one game, keyed by room name.
type GameMap struct {
	rooms map[string]*Room
}

// NewGameMap creates an empty map.
func NewGameMap() *GameMap {
	return &GameMap{rooms: make(map[string]*Room)}
}

// AddRoom registers a room under its (lowercased) name.
func (m *GameMap) AddRoom(r *Room) {
	m.rooms[strings.ToLower(r.Name)] = r
}

// Room resolves a room name case-insensitively, or returns nil.
func (m *GameMap) Room(name string) *Room {
	return m.rooms[strings.ToLower(name)]
}

// Rooms returns every room, sorted by name.
func (m *GameMap) Rooms() []*Room {
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
