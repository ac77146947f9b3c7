package luagame_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/content/luagame"
	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/protocol"
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

func loadLighthouse(t *testing.T) *luagame.Provider {
	t.Helper()
	path := filepath.Join(repoRoot(t), "content", "scripts", "lighthouse.lua")
	p, err := luagame.New(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func loadScript(t *testing.T, src string) (*luagame.Provider, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	p, err := luagame.New(path, zap.NewNop())
	if err == nil {
		t.Cleanup(p.Close)
	}
	return p, err
}

func newEngine(t *testing.T, p *luagame.Provider) *game.Engine {
	t.Helper()
	desc, err := p.Describe()
	require.NoError(t, err)
	state, err := p.DefaultState(desc)
	require.NoError(t, err)
	return game.NewEngine(desc, state)
}

func narrations(rs []game.Response) []string {
	var out []string
	for _, r := range rs {
		if n, ok := r.Env.(*protocol.Narrator); ok {
			out = append(out, n.Message)
		}
	}
	return out
}

func errCode(t *testing.T, rs []game.Response) protocol.ErrorCode {
	t.Helper()
	require.Len(t, rs, 1)
	env, ok := rs[0].Env.(*protocol.Error)
	require.True(t, ok, "expected an error response, got %T", rs[0].Env)
	return env.Code
}

func TestNewRejectsBrokenScripts(t *testing.T) {
	_, err := loadScript(t, `this is not lua`)
	require.Error(t, err)

	_, err = loadScript(t, `local x = 1`)
	require.Error(t, err, "a script without a game table is rejected")
}

func TestDescribeBuildsMapFromScript(t *testing.T) {
	p := loadLighthouse(t)
	desc, err := p.Describe()
	require.NoError(t, err)

	assert.Equal(t, "gray-harbor", desc.GameName)
	quay := desc.Map.Room("quay")
	require.NotNil(t, quay)
	assert.Equal(t, "tower", quay.Exit("north").Name)
	assert.NotNil(t, desc.Map.Room("lamp_room"))

	for _, verb := range []string{"look", "go", "take", "inventory", "pry", "light", "talk"} {
		assert.Contains(t, desc.Commands, verb)
	}
}

func TestDefaultStateRoster(t *testing.T) {
	p := loadLighthouse(t)
	eng := newEngine(t, p)

	assert.Equal(t, []string{"edda", "tomas"}, eng.AvailableCharacters())
	state := eng.State()
	require.NotNil(t, state.NPC("gull"))
	assert.Equal(t, "quay", state.NPC("gull").Room().Name)
}

func TestIntroComesFromScript(t *testing.T) {
	p := loadLighthouse(t)
	envs := p.Intro()
	require.Len(t, envs, 2)
	n, ok := envs[0].(*protocol.Narrator)
	require.True(t, ok)
	assert.Contains(t, n.Message, "Gray Harbor")
}

func TestHatchLockedUntilPried(t *testing.T) {
	p := loadLighthouse(t)
	eng := newEngine(t, p)
	require.NoError(t, eng.BindCharacter("alice", "edda"))

	eng.HandleCommand("alice", "go north")
	rs := eng.HandleCommand("alice", "go up")
	assert.Equal(t, protocol.ErrLockedRoom, errCode(t, rs))
}

func TestWalkthrough(t *testing.T) {
	p := loadLighthouse(t)
	eng := newEngine(t, p)
	state := eng.State()
	require.NoError(t, eng.BindCharacter("alice", "edda"))

	rs := eng.HandleCommand("alice", "take crowbar")
	require.NotEmpty(t, narrations(rs))
	assert.Contains(t, narrations(rs)[0], "Rusty Crowbar")

	eng.HandleCommand("alice", "go north")
	eng.HandleCommand("alice", "pry")
	assert.True(t, state.HasFlag("hatch_open"))

	eng.HandleCommand("alice", "take matches")
	eng.HandleCommand("alice", "go up")
	require.Equal(t, "lamp_room", state.Character("edda").Room().Name)

	rs = eng.HandleCommand("alice", "light")
	require.Len(t, rs, 2)
	assert.True(t, rs[0].Broadcast)
	assert.True(t, state.HasFlag("beacon_lit"))

	rs = eng.HandleCommand("alice", "light")
	assert.Contains(t, narrations(rs)[0], "already burning")
}

func TestTakeIsExclusive(t *testing.T) {
	p := loadLighthouse(t)
	eng := newEngine(t, p)
	require.NoError(t, eng.BindCharacter("alice", "edda"))
	require.NoError(t, eng.BindCharacter("bob", "tomas"))

	eng.HandleCommand("alice", "take crowbar")
	rs := eng.HandleCommand("bob", "take crowbar")
	assert.Contains(t, narrations(rs)[0], "no crowbar here")
	assert.True(t, eng.State().Character("edda").HasItem("crowbar"))
	assert.False(t, eng.State().Character("tomas").HasItem("crowbar"))
}

func TestMissingArgumentsFail(t *testing.T) {
	p := loadLighthouse(t)
	eng := newEngine(t, p)
	require.NoError(t, eng.BindCharacter("alice", "edda"))

	rs := eng.HandleCommand("alice", "go")
	assert.Equal(t, protocol.ErrCommandMissingArgs, errCode(t, rs))
	rs = eng.HandleCommand("alice", "go sideways")
	assert.Equal(t, protocol.ErrNoSuchExit, errCode(t, rs))
}

func TestScriptRuntimeErrorMapsToCommandUnavailable(t *testing.T) {
	p, err := loadScript(t, `
game = {
  name = "broken",
  rooms = { { name = "void", display_name = "Void", description = "", long_description = "Nothing." } },
  characters = { { name = "a", display_name = "A", room = "void" } },
  commands = { boom = function() error("kaput") end },
}
`)
	require.NoError(t, err)
	eng := newEngine(t, p)
	require.NoError(t, eng.BindCharacter("alice", "a"))

	rs := eng.HandleCommand("alice", "boom")
	assert.Equal(t, protocol.ErrCommandUnavailable, errCode(t, rs))
}

func TestDescribeRejectsBadReferences(t *testing.T) {
	p, err := loadScript(t, `
game = {
  name = "bad",
  rooms = { { name = "a", display_name = "A", description = "", long_description = "" } },
  connections = { { from = "a", exit = "north", back = "south", to = "nowhere" } },
  characters = { { name = "x", display_name = "X", room = "a" } },
  commands = { look = function() engine.narrate("hi") end },
}
`)
	require.NoError(t, err)
	_, err = p.Describe()
	require.Error(t, err)
}
