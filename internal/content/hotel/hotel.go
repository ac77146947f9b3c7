// Package hotel is the built-in game: three investigators sweep a haunted
// hotel for a free-roaming ghost. It doubles as the reference content
// provider for tests and for servers running without Lua scripts.
package hotel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/protocol"
)

const gameName = "sedgewick"

// Game state flags.
const (
	flagStorageUnlocked game.Flag = "storage_unlocked"
	flagGhostFound      game.Flag = "ghost_found"
	flagGhostCaught     game.Flag = "ghost_caught"
)

func takenFlag(item string) game.Flag {
	return game.Flag("taken_" + strings.ToLower(item))
}

// Provider supplies the hotel game.
type Provider struct{}

// New creates the hotel content provider.
func New() *Provider { return &Provider{} }

// Describe builds the hotel map and verb table.
func (p *Provider) Describe() (*game.Description, error) {
	lobby := game.NewRoom("lobby", "Hotel Lobby",
		"The lobby of the Sedgewick Hotel.",
		"Chandeliers flicker over a deserted reception desk. The night porter pretends not to see you.")
	hallway := game.NewRoom("hallway", "Twelfth Floor Hallway",
		"A hallway on the twelfth floor.",
		"A room-service cart lies overturned. Something has been eating the hors d'oeuvres.")
	ballroom := game.NewRoom("ballroom", "Grand Ballroom",
		"The hotel's grand ballroom.",
		"Round tables are set for a banquet nobody will attend. The air is unnaturally cold.")
	storageRoom := game.NewRoom("storage", "Storage Room",
		"A cramped storage room.",
		"Stacked chairs and spare linens. A good place to keep equipment out of sight.")

	lobby.Connect("up", "down", hallway)
	lobby.Connect("east", "west", ballroom)
	hallway.ConnectLocked("north", "south", storageRoom, flagStorageUnlocked)

	lobby.AddItem(game.Item{
		Name:        "keycard",
		DisplayName: "Service Keycard",
		Description: "A master keycard stamped STAFF ONLY.",
	})
	hallway.AddItem(game.Item{
		Name:        "goggles",
		DisplayName: "Ecto Goggles",
		Description: "Bulky goggles that see what you would rather not.",
	})
	storageRoom.AddItem(game.Item{
		Name:        "trap",
		DisplayName: "Ghost Trap",
		Description: "A pedal-operated containment trap. Do not look directly into it.",
	})

	gameMap := game.NewGameMap()
	gameMap.AddRoom(lobby)
	gameMap.AddRoom(hallway)
	gameMap.AddRoom(ballroom)
	gameMap.AddRoom(storageRoom)

	return &game.Description{
		GameName: gameName,
		Map:      gameMap,
		Commands: map[string]game.CommandHandler{
			"look":      game.CommandFunc(look),
			"go":        game.CommandFunc(move),
			"take":      game.CommandFunc(take),
			"inventory": game.CommandFunc(inventory),
			"use":       game.CommandFunc(use),
			"talk":      game.CommandFunc(talk),
		},
	}, nil
}

// DefaultState places the three investigators in the lobby and the porter
// behind his desk.
func (p *Provider) DefaultState(desc *game.Description) (*game.State, error) {
	lobby := desc.Map.Room("lobby")
	if lobby == nil {
		return nil, fmt.Errorf("hotel map has no lobby")
	}

	state := game.NewState()
	state.AddCharacter(game.NewCharacter("venkman", "Dr. Venkman", lobby))
	state.AddCharacter(game.NewCharacter("spengler", "Dr. Spengler", lobby))
	state.AddCharacter(game.NewCharacter("winston", "Winston", lobby))
	state.AddNPC(game.NewNPC("porter", "The Night Porter", lobby))
	return state, nil
}

// Intro is the opening prose for a fresh room.
func (p *Provider) Intro() []protocol.Envelope {
	return []protocol.Envelope{
		&protocol.Narrator{Message: "The Sedgewick Hotel has a guest that never checked in. " +
			"Management would like it gone before breakfast."},
		&protocol.Narrator{Message: "Find the ghost, find the trap, and try not to cross the streams. " +
			"Select a character to begin."},
	}
}

func look(actor *game.Character, desc *game.Description, state *game.State, args []string) []game.Response {
	room := actor.Room()
	lines := []string{room.LongDescription}

	var items []string
	for _, it := range []string{"keycard", "goggles", "trap"} {
		if room.ItemVisible(it, state.Flags()) && !state.HasFlag(takenFlag(it)) {
			item, _ := room.Item(it)
			items = append(items, item.DisplayName)
		}
	}
	if len(items) > 0 {
		lines = append(lines, "You see: "+strings.Join(items, ", ")+".")
	}

	var others []string
	for _, c := range state.Characters() {
		if c.Name != actor.Name && c.Room() == room {
			others = append(others, c.DisplayName)
		}
	}
	for _, n := range state.NPCs() {
		if n.Room() == room {
			others = append(others, n.DisplayName)
		}
	}
	if len(others) > 0 {
		lines = append(lines, "Also here: "+strings.Join(others, ", ")+".")
	}

	lines = append(lines, "Exits: "+strings.Join(exits(room, state), ", ")+".")

	if room.Name == "ballroom" && state.HasFlag(flagGhostFound) && !state.HasFlag(flagGhostCaught) {
		lines = append(lines, "The ghost circles the chandelier, dripping on the table settings.")
	}

	return []game.Response{game.Narrate(strings.Join(lines, " "))}
}

func exits(room *game.Room, state *game.State) []string {
	var out []string
	for _, dir := range []string{"north", "south", "east", "west", "up", "down"} {
		if room.Exit(dir) != nil && room.ExitUnlocked(dir, state.Flags()) {
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}

func move(actor *game.Character, desc *game.Description, state *game.State, args []string) []game.Response {
	if len(args) == 0 {
		return []game.Response{game.Unicast(protocol.NewError(protocol.ErrCommandMissingArgs))}
	}
	dir := strings.ToLower(args[0])
	room := actor.Room()
	next := room.Exit(dir)
	if next == nil {
		return []game.Response{game.Unicast(protocol.NewError(protocol.ErrNoSuchExit))}
	}
	if !room.ExitUnlocked(dir, state.Flags()) {
		return []game.Response{game.Unicast(protocol.NewError(protocol.ErrLockedRoom))}
	}

	actor.MoveTo(next)
	responses := []game.Response{
		game.NarrateAll(actor.DisplayName + " heads " + dir + " to the " + next.DisplayName + "."),
	}

	// First entry into the hallway reveals the ghost's trail.
	if next.Name == "hallway" && !state.HasFlag(flagGhostFound) {
		state.AddFlag(flagGhostFound)
		responses = append(responses,
			game.NarrateAll("A trail of ectoplasm leads along the carpet and down toward the ballroom."))
	}
	return responses
}

func take(actor *game.Character, desc *game.Description, state *game.State, args []string) []game.Response {
	if len(args) == 0 {
		return []game.Response{game.Unicast(protocol.NewError(protocol.ErrCommandMissingArgs))}
	}
	name := strings.ToLower(args[0])
	room := actor.Room()
	if !room.ItemVisible(name, state.Flags()) || state.HasFlag(takenFlag(name)) {
		return []game.Response{game.Narrate("There is no " + name + " here to take.")}
	}

	item, _ := room.Item(name)
	state.AddFlag(takenFlag(name))
	actor.AddItem(item)
	return []game.Response{
		game.NarrateAll(actor.DisplayName + " picks up the " + item.DisplayName + "."),
	}
}

func inventory(actor *game.Character, desc *game.Description, state *game.State, args []string) []game.Response {
	items := actor.Items()
	if len(items) == 0 {
		return []game.Response{game.Narrate("You are carrying nothing.")}
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.DisplayName
	}
	return []game.Response{game.Narrate("You are carrying: " + strings.Join(names, ", ") + ".")}
}

func use(actor *game.Character, desc *game.Description, state *game.State, args []string) []game.Response {
	if len(args) == 0 {
		return []game.Response{game.Unicast(protocol.NewError(protocol.ErrCommandMissingArgs))}
	}
	name := strings.ToLower(args[0])
	if !actor.HasItem(name) {
		return []game.Response{game.Narrate("You are not carrying a " + name + ".")}
	}

	switch name {
	case "keycard":
		if actor.Room().Name != "hallway" {
			return []game.Response{game.Narrate("There is nothing here worth unlocking.")}
		}
		if state.HasFlag(flagStorageUnlocked) {
			return []game.Response{game.Narrate("The storage room is already open.")}
		}
		state.AddFlag(flagStorageUnlocked)
		return []game.Response{
			game.NarrateAll(actor.DisplayName + " swipes the keycard. The storage room door clicks open."),
		}

	case "goggles":
		if state.HasFlag(flagGhostCaught) {
			return []game.Response{game.Narrate("The goggles show nothing but dust and afterimages.")}
		}
		if actor.Room().Name == "ballroom" && state.HasFlag(flagGhostFound) {
			return []game.Response{game.Narrate("Full torso apparition, class five. It is right above you.")}
		}
		return []game.Response{game.Narrate("Faint residue everywhere. The trail is stronger toward the ballroom.")}

	case "trap":
		if actor.Room().Name != "ballroom" {
			return []game.Response{game.Narrate("Best not to open the trap without a target.")}
		}
		if !state.HasFlag(flagGhostFound) {
			return []game.Response{game.Narrate("The ballroom is cold and quiet. Nothing to trap yet.")}
		}
		if state.HasFlag(flagGhostCaught) {
			return []game.Response{game.Narrate("The trap is already full. And smoking slightly.")}
		}
		state.AddFlag(flagGhostCaught)
		return []game.Response{
			game.NarrateAll(actor.DisplayName + " stomps the pedal. Light floods the ballroom and the ghost is dragged screaming into the trap."),
			game.NarrateAll("The Sedgewick is quiet again. Management sends up a fruit basket."),
		}
	}
	return []game.Response{game.Narrate("You fiddle with the " + name + " to no effect.")}
}

func talk(actor *game.Character, desc *game.Description, state *game.State, args []string) []game.Response {
	porter := state.NPC("porter")
	if porter == nil || porter.Room() != actor.Room() {
		return []game.Response{game.Narrate("There is nobody here to talk to.")}
	}
	if state.HasFlag(flagGhostCaught) {
		return []game.Response{game.Speak("The Night Porter", "I saw nothing. I will be telling the manager I saw nothing.")}
	}
	if !state.HasFlag(flagGhostFound) {
		return []game.Response{game.Speak("The Night Porter", "Twelfth floor again. It is always the twelfth floor.")}
	}
	return []game.Response{game.Speak("The Night Porter", "It went for the ballroom. The banquet, you understand.")}
}
