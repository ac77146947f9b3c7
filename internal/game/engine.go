package game

import (
	"errors"
	"sort"
	"strings"

	"github.com/ghostline/ghostline/internal/protocol"
)

var (
	// ErrUnknownCharacter marks a bind attempt for a character the game
	// does not define.
	ErrUnknownCharacter = errors.New("game: no such character")
	// ErrCharacterBound marks a bind attempt for a character already
	// claimed by another player.
	ErrCharacterBound = errors.New("game: character already bound")
)

// Engine runs one game instance for one room: it holds the player-to-
// character bindings and turns raw command text into responses by
// dispatching to the description's verb table.
//
// Engine is not safe for concurrent use. The owning room coordinator
// funnels every call through its exclusive execution slot.
type Engine struct {
	desc  *Description
	state *State

	bindings map[string]*Character
	intro    bool
}

// NewEngine creates an engine over a fresh or restored state.
//
// Precondition: state was built from desc, so every character room
// reference resolves inside desc.Map.
func NewEngine(desc *Description, state *State) *Engine {
	return &Engine{
		desc:     desc,
		state:    state,
		bindings: make(map[string]*Character),
		intro:    true,
	}
}

// Description returns the static game description.
func (e *Engine) Description() *Description { return e.desc }

// State returns the live game state.
func (e *Engine) State() *State { return e.state }

// RestoreState swaps in a state loaded from storage. A restored game has
// already been played, so the intro is not replayed.
func (e *Engine) RestoreState(state *State) {
	e.state = state
	e.intro = false
}

// BindCharacter claims the named character for player. Fails with
// ErrUnknownCharacter when the game defines no such character and with
// ErrCharacterBound when another player already holds it. Rebinding the
// same player releases their previous character first.
func (e *Engine) BindCharacter(player, character string) error {
	c := e.state.Character(character)
	if c == nil {
		return ErrUnknownCharacter
	}
	for owner, bound := range e.bindings {
		if bound.Name == character && owner != player {
			return ErrCharacterBound
		}
	}
	e.bindings[player] = c
	return nil
}

// Bound returns the character currently bound to player, or nil.
func (e *Engine) Bound(player string) *Character { return e.bindings[player] }

// Unbind releases player's character binding, if any.
func (e *Engine) Unbind(player string) {
	delete(e.bindings, player)
}

// UnbindAll releases every binding. Used when a room empties out.
func (e *Engine) UnbindAll() {
	e.bindings = make(map[string]*Character)
}

// AvailableCharacters returns the names of characters not bound to any
// player, sorted.
func (e *Engine) AvailableCharacters() []string {
	taken := make(map[string]struct{}, len(e.bindings))
	for _, c := range e.bindings {
		taken[c.Name] = struct{}{}
	}
	var out []string
	for _, c := range e.state.Characters() {
		if _, ok := taken[c.Name]; !ok {
			out = append(out, c.Name)
		}
	}
	sort.Strings(out)
	return out
}

// IntroEnvelopes returns what a newly joined player should see: the full
// game intro while the game is untouched, afterwards a short prompt to
// pick a character.
func (e *Engine) IntroEnvelopes(provider Provider) []protocol.Envelope {
	if e.intro {
		return provider.Intro()
	}
	return []protocol.Envelope{
		&protocol.Narrator{Message: "The game is already underway. Select a character to join in."},
	}
}

// HandleCommand executes raw command text on behalf of player.
//
// The verb is the first whitespace token that matches a registered
// command key, case-insensitively; the tokens after it become arguments.
// Text with no recognizable verb yields CommandUnavailable before the
// character binding is consulted, so an unbound player learns about a
// bad verb, not about the missing binding.
func (e *Engine) HandleCommand(player, raw string) []Response {
	tokens := strings.Fields(raw)
	verbAt := -1
	for i, tok := range tokens {
		if _, ok := e.desc.Commands[strings.ToLower(tok)]; ok {
			verbAt = i
			break
		}
	}
	if verbAt < 0 {
		return []Response{Unicast(protocol.NewError(protocol.ErrCommandUnavailable))}
	}

	actor := e.bindings[player]
	if actor == nil {
		return []Response{Unicast(protocol.NewError(protocol.ErrCharacterNotFound))}
	}

	handler := e.desc.Commands[strings.ToLower(tokens[verbAt])]
	e.intro = false
	return handler.Execute(actor, e.desc, e.state, tokens[verbAt+1:])
}
