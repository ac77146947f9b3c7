// Package lobby routes clients that are not in any room: room discovery,
// creation, deletion, and the join handshake. Once a client joins a room,
// its messages bypass the lobby entirely until it leaves.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/persist"
	"github.com/ghostline/ghostline/internal/protocol"
	"github.com/ghostline/ghostline/internal/session"
	"github.com/ghostline/ghostline/internal/storage"
	"github.com/ghostline/ghostline/internal/transport"
)

// Router is the lobby dispatcher and the room roster. It owns room
// creation and deletion; rooms call back through session.Registry to
// remove themselves.
type Router struct {
	store      storage.Store
	reconciler *persist.Reconciler
	provider   game.Provider
	desc       *game.Description
	maxPlayers int
	logger     *zap.Logger

	mu    sync.RWMutex
	rooms map[string]*session.Room
}

// NewRouter builds a router over the given store and content provider.
//
// Precondition: store, provider, and logger must be non-nil; maxPlayers
// must be positive.
func NewRouter(store storage.Store, provider game.Provider, maxPlayers int, logger *zap.Logger) (*Router, error) {
	desc, err := provider.Describe()
	if err != nil {
		return nil, fmt.Errorf("describing game content: %w", err)
	}
	return &Router{
		store:      store,
		reconciler: persist.NewReconciler(store),
		provider:   provider,
		desc:       desc,
		maxPlayers: maxPlayers,
		logger:     logger,
		rooms:      make(map[string]*session.Room),
	}, nil
}

// Bootstrap recreates the room roster from storage, restoring each room's
// game state where one was persisted.
//
// Postcondition: every stored room is registered and joinable.
func (rt *Router) Bootstrap(ctx context.Context) error {
	records, err := rt.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("listing stored rooms: %w", err)
	}

	for _, rec := range records {
		engine, restored, err := rt.newEngine(ctx, rec.Name)
		if err != nil {
			return fmt.Errorf("restoring room %s: %w", rec.Name, err)
		}
		room := session.NewRoom(rec.Name, rec.PasswordHash, rt.maxPlayers, rt, rt.provider, engine, rt.reconciler, rt.logger)
		rt.mu.Lock()
		rt.rooms[rec.Name] = room
		rt.mu.Unlock()

		rt.logger.Info("room restored",
			zap.String("room", rec.Name),
			zap.Bool("state_restored", restored),
		)
	}
	return nil
}

// newEngine builds a room's engine, loading persisted state when the room
// has been played before and starting from the provider's default
// otherwise.
func (rt *Router) newEngine(ctx context.Context, roomName string) (*game.Engine, bool, error) {
	state, err := rt.reconciler.Load(ctx, roomName, rt.desc)
	if err == nil {
		fresh, derr := rt.provider.DefaultState(rt.desc)
		if derr != nil {
			return nil, false, derr
		}
		engine := game.NewEngine(rt.desc, fresh)
		engine.RestoreState(state)
		return engine, true, nil
	}
	if !errors.Is(err, storage.ErrStateNotFound) {
		return nil, false, err
	}

	state, err = rt.provider.DefaultState(rt.desc)
	if err != nil {
		return nil, false, err
	}
	return game.NewEngine(rt.desc, state), false, nil
}

// OnMessage handles envelopes from clients in the lobby.
func (rt *Router) OnMessage(c *transport.Client, env protocol.Envelope) {
	switch m := env.(type) {
	case *protocol.GetRoomList:
		_ = c.Send(&protocol.RoomList{Rooms: rt.RoomEntries()})

	case *protocol.GetRoomDetails:
		room := rt.Room(m.RoomName)
		if room == nil {
			_ = c.Send(protocol.NewError(protocol.ErrRoomNotFound))
			return
		}
		_ = c.Send(room.Details())

	case *protocol.CreateRoom:
		rt.createRoom(c, m)

	case *protocol.JoinRoom:
		rt.joinRoom(c, m)

	case *protocol.DeleteRoom:
		rt.deleteRoom(c, m)

	case *protocol.ChatMessage, *protocol.GameCommand, *protocol.SelectCharacter,
		*protocol.GetAvailableCharacters, *protocol.DisconnectRoom:
		_ = c.Send(protocol.NewError(protocol.ErrNotInRoom))

	default:
		_ = c.Send(protocol.NewError(protocol.ErrUnrecognizedType))
	}
}

// OnDisconnect drops a lobby client. There is no session state to clean.
func (rt *Router) OnDisconnect(c *transport.Client) {
	c.Close()
}

func (rt *Router) createRoom(c *transport.Client, m *protocol.CreateRoom) {
	if _, err := rt.CreateRoom(context.Background(), m.RoomName, m.RoomPassword); err != nil {
		if errors.Is(err, storage.ErrRoomExists) {
			_ = c.Send(protocol.NewError(protocol.ErrRoomExists))
			return
		}
		rt.logger.Error("creating room", zap.String("room", m.RoomName), zap.Error(err))
		_ = c.Send(protocol.NewError(protocol.ErrRoomNotCreated))
		return
	}
	_ = c.Send(&protocol.RoomCreated{RoomName: m.RoomName})
}

// CreateRoom registers a new room, persisting it before it becomes
// joinable.
//
// Postcondition: Returns storage.ErrRoomExists when the name is taken.
func (rt *Router) CreateRoom(ctx context.Context, name, password string) (*session.Room, error) {
	if rt.Room(name) != nil {
		return nil, storage.ErrRoomExists
	}

	hash, err := storage.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing room password: %w", err)
	}

	state, err := rt.provider.DefaultState(rt.desc)
	if err != nil {
		return nil, fmt.Errorf("building default state: %w", err)
	}

	if err := rt.store.CreateRoom(ctx, storage.RoomRecord{
		Name:         name,
		PasswordHash: hash,
		GameName:     rt.desc.GameName,
	}); err != nil {
		return nil, err
	}

	room := session.NewRoom(name, hash, rt.maxPlayers, rt, rt.provider, game.NewEngine(rt.desc, state), rt.reconciler, rt.logger)
	rt.mu.Lock()
	rt.rooms[name] = room
	rt.mu.Unlock()

	rt.logger.Info("room created", zap.String("room", name))
	return room, nil
}

func (rt *Router) joinRoom(c *transport.Client, m *protocol.JoinRoom) {
	room := rt.Room(m.RoomName)
	if room == nil {
		_ = c.Send(protocol.NewError(protocol.ErrRoomNotFound))
		return
	}
	if reject := room.Join(c, m.PlayerName, m.RoomPassword); reject != nil {
		_ = c.Send(reject)
	}
}

func (rt *Router) deleteRoom(c *transport.Client, m *protocol.DeleteRoom) {
	room := rt.Room(m.RoomName)
	if room == nil {
		_ = c.Send(protocol.NewError(protocol.ErrRoomNotFound))
		return
	}
	if err := room.Delete(); err != nil {
		rt.logger.Error("deleting room", zap.String("room", m.RoomName), zap.Error(err))
		_ = c.Send(protocol.NewError(protocol.ErrRoomNotDeleted))
		return
	}
	_ = c.Send(&protocol.RoomDeleted{RoomName: m.RoomName})
}

// Unregister removes a room from the roster and from storage. Called by
// the room itself during deletion.
//
// Postcondition: a storage failure leaves the room registered and
// joinable.
func (rt *Router) Unregister(ctx context.Context, name string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.rooms[name]; !ok {
		return fmt.Errorf("room %s is not registered", name)
	}
	if err := rt.store.DeleteRoom(ctx, name); err != nil && !errors.Is(err, storage.ErrRoomNotFound) {
		return fmt.Errorf("deleting stored room: %w", err)
	}
	delete(rt.rooms, name)
	return nil
}

// Room resolves a registered room by name, or returns nil.
func (rt *Router) Room(name string) *session.Room {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.rooms[name]
}

// RoomEntries returns the roster rows for a room_list reply, sorted by
// room name.
func (rt *Router) RoomEntries() []protocol.RoomListEntry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	entries := make([]protocol.RoomListEntry, 0, len(rt.rooms))
	for name, room := range rt.rooms {
		entries = append(entries, protocol.RoomListEntry{
			RoomName:  name,
			UserCount: room.UserCount(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RoomName < entries[j].RoomName })
	return entries
}
