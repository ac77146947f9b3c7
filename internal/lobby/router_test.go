package lobby

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/content/hotel"
	"github.com/ghostline/ghostline/internal/storage"
	"github.com/ghostline/ghostline/internal/storage/memory"
	"github.com/ghostline/ghostline/internal/transport"
)

type harness struct {
	store  *memory.Store
	router *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	router, err := NewRouter(store, hotel.New(), 3, zap.NewNop())
	require.NoError(t, err)
	return &harness{store: store, router: router}
}

// testClient is the peer end of a piped connection into the server.
type testClient struct {
	t    *testing.T
	peer net.Conn
	r    *bufio.Reader
}

func (h *harness) connect(t *testing.T) *testClient {
	t.Helper()
	server, peer := net.Pipe()
	client := transport.NewClient(transport.NewTCPConn(server, 0, 0), h.router, zap.NewNop())
	go client.Run()
	t.Cleanup(func() {
		client.Close()
		peer.Close()
	})
	return &testClient{t: t, peer: peer, r: bufio.NewReader(peer)}
}

func (c *testClient) send(format string, args ...any) {
	c.t.Helper()
	require.NoError(c.t, c.peer.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := fmt.Fprintf(c.peer, format+"\n", args...)
	require.NoError(c.t, err)
}

func (c *testClient) recv() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.r.ReadBytes('\n')
	require.NoError(c.t, err, "expected another envelope")
	var fields map[string]any
	require.NoError(c.t, json.Unmarshal(line, &fields))
	return fields
}

func (c *testClient) recvKind(kind string) map[string]any {
	c.t.Helper()
	fields := c.recv()
	require.Equal(c.t, kind, fields["type"], "envelope %v", fields)
	return fields
}

func (c *testClient) recvError(code int) map[string]any {
	c.t.Helper()
	fields := c.recvKind("error")
	require.Equal(c.t, float64(code), fields["error_code"], "envelope %v", fields)
	return fields
}

// joinFlow drives a full join and drains the join burst: confirmation,
// membership snapshot, intro prose, and the free-character list.
func (c *testClient) joinFlow(room, player, password string) {
	c.t.Helper()
	c.send(`{"type":"join_room","player_name":%q,"room_name":%q,"room_password":%q}`, player, room, password)
	c.recvKind("room_joined")
	c.recvKind("room_details")
	for {
		fields := c.recv()
		if fields["type"] == "game_available_characters" {
			return
		}
		require.Equal(c.t, "game_narrator", fields["type"], "envelope %v", fields)
	}
}

func TestCreateAndListRooms(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	c.send(`{"type":"get_rooms"}`)
	fields := c.recvKind("room_list")
	assert.Empty(t, fields["rooms"])

	c.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	created := c.recvKind("room_created")
	assert.Equal(t, "sedgewick", created["room_name"])

	c.send(`{"type":"get_rooms"}`)
	fields = c.recvKind("room_list")
	rooms := fields["rooms"].([]any)
	require.Len(t, rooms, 1)
	entry := rooms[0].(map[string]any)
	assert.Equal(t, "sedgewick", entry["room_name"])
	assert.Equal(t, float64(0), entry["user_count"])

	// The room is persisted.
	recs, err := h.store.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "sedgewick", recs[0].Name)
}

func TestCreateDuplicateRoom(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	c.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	c.recvKind("room_created")
	c.send(`{"type":"create_room","room_name":"sedgewick","room_password":"other"}`)
	c.recvError(205)
}

func TestJoinFlow(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	c.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	c.recvKind("room_created")

	c.send(`{"type":"join_room","player_name":"alice","room_name":"sedgewick","room_password":""}`)
	joined := c.recvKind("room_joined")
	assert.Equal(t, "alice", joined["player_name"])
	assert.Equal(t, "sedgewick", joined["room_name"])

	details := c.recvKind("room_details")
	assert.Equal(t, float64(1), details["user_count"])
	assert.Equal(t, []any{"alice"}, details["users"])

	c.recvKind("game_narrator")
	c.recvKind("game_narrator")
	chars := c.recvKind("game_available_characters")
	assert.Len(t, chars["characters"], 3)
}

func TestJoinValidationOrder(t *testing.T) {
	h := newHarness(t)
	owner := h.connect(t)
	owner.send(`{"type":"create_room","room_name":"sedgewick","room_password":"s3cret"}`)
	owner.recvKind("room_created")
	owner.joinFlow("sedgewick", "alice", "s3cret")

	t.Run("room not found", func(t *testing.T) {
		c := h.connect(t)
		c.send(`{"type":"join_room","player_name":"bob","room_name":"ritz","room_password":"s3cret"}`)
		c.recvError(204)
	})

	t.Run("wrong password", func(t *testing.T) {
		c := h.connect(t)
		c.send(`{"type":"join_room","player_name":"bob","room_name":"sedgewick","room_password":"wrong"}`)
		c.recvError(203)
	})

	t.Run("nickname in use", func(t *testing.T) {
		c := h.connect(t)
		c.send(`{"type":"join_room","player_name":"alice","room_name":"sedgewick","room_password":"s3cret"}`)
		c.recvError(202)
	})

	t.Run("wrong password outranks nickname", func(t *testing.T) {
		c := h.connect(t)
		c.send(`{"type":"join_room","player_name":"alice","room_name":"sedgewick","room_password":"wrong"}`)
		c.recvError(203)
	})

	t.Run("room full", func(t *testing.T) {
		b := h.connect(t)
		b.joinFlow("sedgewick", "bob", "s3cret")
		owner.recvKind("room_details")
		cl := h.connect(t)
		cl.joinFlow("sedgewick", "carol", "s3cret")
		owner.recvKind("room_details")
		b.recvKind("room_details")

		d := h.connect(t)
		d.send(`{"type":"join_room","player_name":"dave","room_name":"sedgewick","room_password":"s3cret"}`)
		d.recvError(201)
	})
}

func TestOpenRoomRejectsPasswordGuess(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)
	c.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	c.recvKind("room_created")

	c.send(`{"type":"join_room","player_name":"alice","room_name":"sedgewick","room_password":"guess"}`)
	c.recvError(203)

	c.send(`{"type":"join_room","player_name":"alice","room_name":"sedgewick","room_password":""}`)
	c.recvKind("room_joined")
}

func TestChatIsStampedAndRelayed(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	b := h.connect(t)
	b.joinFlow("sedgewick", "bob", "")
	a.recvKind("room_details")

	// The sender cannot spoof another player's name.
	b.send(`{"type":"chat_message","player_name":"alice","message":"who you gonna call"}`)
	got := a.recvKind("chat_message")
	assert.Equal(t, "bob", got["player_name"])
	assert.Equal(t, "who you gonna call", got["message"])
	got = b.recvKind("chat_message")
	assert.Equal(t, "bob", got["player_name"])
}

func TestGameCommandFlow(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	// An unrecognizable verb fails as such even before a character is
	// selected.
	a.send(`{"type":"game_command","player_name":"alice","command":"moonwalk"}`)
	a.recvError(301)

	// A real verb before selecting a character fails on the binding.
	a.send(`{"type":"game_command","player_name":"alice","command":"look"}`)
	a.recvError(304)

	a.send(`{"type":"game_select_character","player_name":"alice","character":"venkman"}`)
	chars := a.recvKind("game_available_characters")
	assert.NotContains(t, chars["characters"], "venkman")

	a.send(`{"type":"game_command","player_name":"alice","command":"look"}`)
	narr := a.recvKind("game_narrator")
	assert.Contains(t, narr["message"], "Chandeliers")

	// The verb does not have to lead the text.
	a.send(`{"type":"game_command","player_name":"alice","command":"please look"}`)
	narr = a.recvKind("game_narrator")
	assert.Contains(t, narr["message"], "Chandeliers")

	a.send(`{"type":"game_command","player_name":"alice","command":"moonwalk"}`)
	a.recvError(301)
}

func TestSelectCharacterConflict(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	b := h.connect(t)
	b.joinFlow("sedgewick", "bob", "")
	a.recvKind("room_details")

	a.send(`{"type":"game_select_character","player_name":"alice","character":"venkman"}`)
	a.recvKind("game_available_characters")
	b.recvKind("game_available_characters")

	b.send(`{"type":"game_select_character","player_name":"bob","character":"venkman"}`)
	b.recvError(303)

	b.send(`{"type":"game_select_character","player_name":"bob","character":"gozer"}`)
	b.recvError(304)
}

func TestDisconnectReturnsToLobby(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	b := h.connect(t)
	b.joinFlow("sedgewick", "bob", "")
	a.recvKind("room_details")

	b.send(`{"type":"game_select_character","player_name":"bob","character":"winston"}`)
	a.recvKind("game_available_characters")
	b.recvKind("game_available_characters")

	b.send(`{"type":"disconnect_room","room_name":"ritz"}`)
	b.recvError(206)

	b.send(`{"type":"disconnect_room","room_name":"sedgewick"}`)
	b.recvKind("room_disconnected")

	// The survivors see the new membership and winston freed.
	details := a.recvKind("room_details")
	assert.Equal(t, []any{"alice"}, details["users"])
	chars := a.recvKind("game_available_characters")
	assert.Contains(t, chars["characters"], "winston")

	// The leaver is back in the lobby on the same connection.
	b.send(`{"type":"get_rooms"}`)
	fields := b.recvKind("room_list")
	rooms := fields["rooms"].([]any)
	require.Len(t, rooms, 1)
	assert.Equal(t, float64(1), rooms[0].(map[string]any)["user_count"])
}

func TestDroppedConnectionIsImplicitLeave(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	b := h.connect(t)
	b.joinFlow("sedgewick", "bob", "")
	a.recvKind("room_details")

	require.NoError(t, b.peer.Close())

	details := a.recvKind("room_details")
	assert.Equal(t, []any{"alice"}, details["users"])
	a.recvKind("game_available_characters")
}

func TestDeleteRoomFromInside(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	b := h.connect(t)
	b.joinFlow("sedgewick", "bob", "")
	a.recvKind("room_details")

	a.send(`{"type":"delete_room","room_name":"ritz"}`)
	a.recvError(206)

	a.send(`{"type":"delete_room","room_name":"sedgewick"}`)
	a.recvKind("room_deleted")
	a.recvKind("room_disconnected")
	b.recvKind("room_deleted")
	b.recvKind("room_disconnected")

	assert.Nil(t, h.router.Room("sedgewick"))
	recs, err := h.store.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Both members are back in the lobby on their live connections.
	for _, c := range []*testClient{a, b} {
		c.send(`{"type":"get_rooms"}`)
		fields := c.recvKind("room_list")
		assert.Empty(t, fields["rooms"])
	}
}

func TestDeleteRoomFromLobby(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	c := h.connect(t)
	c.send(`{"type":"delete_room","room_name":"sedgewick"}`)
	c.recvKind("room_deleted")

	a.recvKind("room_deleted")
	a.recvKind("room_disconnected")
	assert.Nil(t, h.router.Room("sedgewick"))

	// The evicted member keeps its connection and lands in the lobby.
	a.send(`{"type":"get_rooms"}`)
	fields := a.recvKind("room_list")
	assert.Empty(t, fields["rooms"])
}

func TestLobbyGuards(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	c.send(`{"type":"chat_message","player_name":"x","message":"hello"}`)
	c.recvError(102)
	c.send(`{"type":"game_command","player_name":"x","command":"look"}`)
	c.recvError(102)
	c.send(`{"type":"get_room","room_name":"nowhere"}`)
	c.recvError(204)
	c.send(`{"type":"delete_room","room_name":"nowhere"}`)
	c.recvError(204)
}

func TestInRoomGuards(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	a.send(`{"type":"join_room","player_name":"alice2","room_name":"sedgewick","room_password":""}`)
	a.recvError(103)
	a.send(`{"type":"create_room","room_name":"ritz","room_password":""}`)
	a.recvError(103)
	a.send(`{"type":"get_room","room_name":"ritz"}`)
	a.recvError(206)
}

func TestStateSurvivesRestart(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	a.send(`{"type":"game_select_character","player_name":"alice","character":"venkman"}`)
	a.recvKind("game_available_characters")
	a.send(`{"type":"game_command","player_name":"alice","command":"take keycard"}`)
	a.recvKind("game_narrator")
	a.send(`{"type":"game_command","player_name":"alice","command":"go up"}`)
	a.recvKind("game_narrator")
	a.recvKind("game_narrator")

	// The details reply is ordered after the post-command save on the
	// room's execution slot, so the store is settled once it arrives.
	a.send(`{"type":"get_room","room_name":"sedgewick"}`)
	a.recvKind("room_details")

	// A new router over the same store stands the room back up.
	router2, err := NewRouter(h.store, hotel.New(), 3, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, router2.Bootstrap(context.Background()))

	room := router2.Room("sedgewick")
	require.NotNil(t, room)

	h2 := &harness{store: h.store, router: router2}
	b := h2.connect(t)
	b.send(`{"type":"join_room","player_name":"bob","room_name":"sedgewick","room_password":""}`)
	b.recvKind("room_joined")
	b.recvKind("room_details")
	narr := b.recvKind("game_narrator")
	assert.Contains(t, narr["message"], "already underway", "a restored game does not replay the intro")
	b.recvKind("game_available_characters")

	b.send(`{"type":"game_select_character","player_name":"bob","character":"venkman"}`)
	b.recvKind("game_available_characters")
	b.send(`{"type":"game_command","player_name":"bob","command":"inventory"}`)
	inv := b.recvKind("game_narrator")
	assert.Contains(t, inv["message"], "Service Keycard", "inventory survives the restart")
	b.send(`{"type":"game_command","player_name":"bob","command":"look"}`)
	look := b.recvKind("game_narrator")
	assert.Contains(t, look["message"], "room-service cart", "position survives the restart")
}

func TestConcurrentCommandsSerialize(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t)
	a.send(`{"type":"create_room","room_name":"sedgewick","room_password":""}`)
	a.recvKind("room_created")
	a.joinFlow("sedgewick", "alice", "")

	b := h.connect(t)
	b.joinFlow("sedgewick", "bob", "")
	a.recvKind("room_details")

	a.send(`{"type":"game_select_character","player_name":"alice","character":"venkman"}`)
	a.recvKind("game_available_characters")
	b.recvKind("game_available_characters")
	b.send(`{"type":"game_select_character","player_name":"bob","character":"spengler"}`)
	a.recvKind("game_available_characters")
	b.recvKind("game_available_characters")

	// Both grab for the same keycard at once. Exactly one wins: the winner's
	// pickup is broadcast to everyone, the loser's miss is unicast to the
	// loser alone. A trailing inventory command fences each client's stream.
	a.send(`{"type":"game_command","player_name":"alice","command":"take keycard"}`)
	b.send(`{"type":"game_command","player_name":"bob","command":"take keycard"}`)
	a.send(`{"type":"game_command","player_name":"alice","command":"inventory"}`)
	b.send(`{"type":"game_command","player_name":"bob","command":"inventory"}`)

	pickups, misses := 0, 0
	for _, c := range []*testClient{a, b} {
		for {
			fields := c.recvKind("game_narrator")
			msg := fields["message"].(string)
			if strings.Contains(msg, "carrying") {
				break
			}
			if strings.Contains(msg, "picks up") {
				pickups++
			}
			if strings.Contains(msg, "no keycard here") {
				misses++
			}
		}
	}
	assert.Equal(t, 2, pickups, "one pickup, broadcast to both members")
	assert.Equal(t, 1, misses, "one miss, seen only by the loser")

	venkman := hasKeycard(t, h, "venkman")
	spengler := hasKeycard(t, h, "spengler")
	assert.True(t, venkman != spengler, "exactly one character holds the keycard")
}

// hasKeycard reads the persisted inventory the room saved after each
// command.
func hasKeycard(t *testing.T, h *harness, character string) bool {
	t.Helper()
	ctx := context.Background()
	id, err := h.store.StateID(ctx, "sedgewick")
	require.NoError(t, err)
	items, err := h.store.ListInventory(ctx, id, character)
	require.NoError(t, err)
	for _, item := range items {
		if item == "keycard" {
			return true
		}
	}
	return false
}

func TestSeedRoomsFromFile(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- room_name: sedgewick
  room_password: s3cret
- room_name: ritz
  room_password: ""
`), 0644))

	require.NoError(t, h.router.LoadRoomsFile(context.Background(), path))
	assert.NotNil(t, h.router.Room("sedgewick"))
	assert.NotNil(t, h.router.Room("ritz"))

	recs, err := h.store.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.True(t, storage.CheckPassword("s3cret", recs[1].PasswordHash))
}

func TestSeedRoomsDuplicateAbortsBatch(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- room_name: sedgewick
- room_name: sedgewick
`), 0644))

	err := h.router.LoadRoomsFile(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, h.router.Room("sedgewick"), "nothing is created from a bad batch")
}

func TestSeedRoomsExistingRoomAbortsBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.router.CreateRoom(context.Background(), "sedgewick", "")
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- room_name: ritz
- room_name: sedgewick
`), 0644))

	err = h.router.LoadRoomsFile(context.Background(), path)
	require.Error(t, err)
	assert.Nil(t, h.router.Room("ritz"), "nothing is created from a bad batch")
}

func TestSeedRoomsAcceptsJSON(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`[{"room_name":"sedgewick","room_password":"x"}]`), 0644))

	require.NoError(t, h.router.LoadRoomsFile(context.Background(), path))
	assert.NotNil(t, h.router.Room("sedgewick"))
}
