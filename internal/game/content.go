package game

import (
	"github.com/ghostline/ghostline/internal/protocol"
)

// Response is one envelope produced by a command handler, addressed either
// to the issuing player alone or to every member of the room.
type Response struct {
	Env       protocol.Envelope
	Broadcast bool
}

// Unicast wraps an envelope addressed to the issuing player only.
func Unicast(env protocol.Envelope) Response {
	return Response{Env: env}
}

// BroadcastAll wraps an envelope addressed to every room member.
func BroadcastAll(env protocol.Envelope) Response {
	return Response{Env: env, Broadcast: true}
}

// Narrate is shorthand for a unicast narrator line.
func Narrate(message string) Response {
	return Unicast(&protocol.Narrator{Message: message})
}

// NarrateAll is shorthand for a broadcast narrator line.
func NarrateAll(message string) Response {
	return BroadcastAll(&protocol.Narrator{Message: message})
}

// Speak is shorthand for a broadcast dialogue line.
func Speak(speaker, message string) Response {
	return BroadcastAll(&protocol.Dialogue{Speaker: speaker, Message: message})
}

// CommandHandler executes one verb against the room's state on behalf of a
// character. Handlers run on the room's execution slot and may mutate the
// state freely.
type CommandHandler interface {
	Execute(actor *Character, desc *Description, state *State, args []string) []Response
}

// CommandFunc adapts a plain function to CommandHandler.
type CommandFunc func(actor *Character, desc *Description, state *State, args []string) []Response

func (f CommandFunc) Execute(actor *Character, desc *Description, state *State, args []string) []Response {
	return f(actor, desc, state, args)
}

// Description is the static shape of one game: its name, its map, and its
// verb table. A Description is immutable once built and may be shared by
// every room running the same game.
type Description struct {
	GameName string
	Map      *GameMap
	Commands map[string]CommandHandler
}

// Provider supplies game content. Describe and DefaultState are called
// once per room; Intro yields the opening prose shown to the first joiner.
type Provider interface {
	// Describe builds the static game description.
	Describe() (*Description, error)

	// DefaultState builds the initial state for a fresh room: the full
	// character roster placed in starting rooms, NPCs, starting flags.
	DefaultState(desc *Description) (*State, error)

	// Intro returns the envelopes that open the game for a new room.
	Intro() []protocol.Envelope
}
