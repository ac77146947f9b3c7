// Package session coordinates the players inside one multiplayer room:
// membership, chat relay, command execution, and the room's lifecycle.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/persist"
	"github.com/ghostline/ghostline/internal/protocol"
	"github.com/ghostline/ghostline/internal/storage"
	"github.com/ghostline/ghostline/internal/transport"
)

// Registry is the room's view of the lobby: the dispatcher that takes
// clients back after they leave, and the roster the room removes itself
// from when deleted.
type Registry interface {
	transport.Dispatcher

	// Unregister removes the named room from the roster and from storage.
	// A failure leaves the room registered.
	Unregister(ctx context.Context, name string) error
}

const saveTimeout = 5 * time.Second

// Room is the coordinator for one multiplayer room. All game and
// membership mutation is funneled through a single worker goroutine, so
// commands from concurrent players execute one at a time in arrival
// order. Handlers never lock; the execution slot is the lock.
type Room struct {
	name         string
	passwordHash string
	maxPlayers   int

	registry   Registry
	provider   game.Provider
	engine     *game.Engine
	reconciler *persist.Reconciler
	logger     *zap.Logger

	// members is written only on the worker goroutine; the mutex lets the
	// lobby and the REST API read membership without queueing.
	membersMu sync.RWMutex
	members   map[string]*transport.Client
	joined    []string

	exec chan func()
	quit chan struct{}
}

// NewRoom creates a room running the given engine and starts its worker.
//
// Precondition: registry, provider, engine, reconciler, and logger must be
// non-nil; maxPlayers must be positive.
func NewRoom(name, passwordHash string, maxPlayers int, registry Registry, provider game.Provider,
	engine *game.Engine, reconciler *persist.Reconciler, logger *zap.Logger) *Room {
	r := &Room{
		name:         name,
		passwordHash: passwordHash,
		maxPlayers:   maxPlayers,
		registry:     registry,
		provider:     provider,
		engine:       engine,
		reconciler:   reconciler,
		logger:       logger.With(zap.String("room", name)),
		members:      make(map[string]*transport.Client),
		exec:         make(chan func(), 64),
		quit:         make(chan struct{}),
	}
	go r.worker()
	return r
}

// Name returns the room's unique name.
func (r *Room) Name() string { return r.name }

func (r *Room) worker() {
	for {
		select {
		case fn := <-r.exec:
			fn()
		case <-r.quit:
			return
		}
	}
}

// post enqueues fn on the execution slot. Posts to a deleted room are
// dropped.
func (r *Room) post(fn func()) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.exec <- fn:
		return true
	case <-r.quit:
		return false
	}
}

// run executes fn on the execution slot and waits for it. Reports false
// when the room is already deleted.
func (r *Room) run(fn func()) bool {
	done := make(chan struct{})
	if !r.post(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-r.quit:
		// The worker may still finish fn before it observes quit.
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// UserCount returns the current number of members.
func (r *Room) UserCount() int {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()
	return len(r.members)
}

// Users returns the member nicknames in join order.
func (r *Room) Users() []string {
	r.membersMu.RLock()
	defer r.membersMu.RUnlock()
	return append([]string(nil), r.joined...)
}

// Details returns the room's membership snapshot envelope.
func (r *Room) Details() *protocol.RoomDetails {
	users := r.Users()
	return &protocol.RoomDetails{RoomName: r.name, UserCount: len(users), Users: users}
}

// Join admits a client under the given nickname. Runs on the execution
// slot so admission checks and the resulting broadcasts are atomic with
// respect to commands.
//
// Postcondition: Returns nil and has sent the join confirmation, the
// membership broadcast, and the game intro, or returns the protocol error
// to send instead.
func (r *Room) Join(client *transport.Client, player, password string) *protocol.Error {
	var reject *protocol.Error
	executed := r.run(func() {
		if !storage.CheckPassword(password, r.passwordHash) {
			reject = protocol.NewError(protocol.ErrWrongPassword)
			return
		}
		if _, taken := r.members[player]; taken {
			reject = protocol.NewError(protocol.ErrNicknameUsed)
			return
		}
		if len(r.members) >= r.maxPlayers {
			reject = protocol.NewError(protocol.ErrRoomFull)
			return
		}

		r.membersMu.Lock()
		r.members[player] = client
		r.joined = append(r.joined, player)
		r.membersMu.Unlock()

		client.SetPlayer(player)
		client.SetDispatcher(r)

		_ = client.Send(&protocol.RoomJoined{PlayerName: player, RoomName: r.name})
		r.broadcast(r.Details())
		for _, env := range r.engine.IntroEnvelopes(r.provider) {
			_ = client.Send(env)
		}
		_ = client.Send(&protocol.AvailableCharacters{Characters: r.engine.AvailableCharacters()})

		r.logger.Info("player joined",
			zap.String("player", player),
			zap.Int("user_count", len(r.members)),
		)
	})
	if !executed {
		return protocol.NewError(protocol.ErrRoomNotFound)
	}
	return reject
}

// OnMessage handles envelopes from room members. Each message becomes one
// task on the execution slot.
func (r *Room) OnMessage(c *transport.Client, env protocol.Envelope) {
	r.post(func() {
		player := c.Player()
		switch m := env.(type) {
		case *protocol.ChatMessage:
			m.PlayerName = player
			r.broadcast(m)

		case *protocol.GameCommand:
			r.handleCommand(c, player, m.Command)

		case *protocol.SelectCharacter:
			r.handleSelectCharacter(c, player, m.Character)

		case *protocol.GetAvailableCharacters:
			_ = c.Send(&protocol.AvailableCharacters{Characters: r.engine.AvailableCharacters()})

		case *protocol.GetRoomDetails:
			if !r.isThisRoom(m.RoomName) {
				_ = c.Send(protocol.NewError(protocol.ErrWrongRoom))
				return
			}
			_ = c.Send(r.Details())

		case *protocol.DisconnectRoom:
			if !r.isThisRoom(m.RoomName) {
				_ = c.Send(protocol.NewError(protocol.ErrWrongRoom))
				return
			}
			r.disconnectPlayer(c, player)

		case *protocol.DeleteRoom:
			if !r.isThisRoom(m.RoomName) {
				_ = c.Send(protocol.NewError(protocol.ErrWrongRoom))
				return
			}
			r.deleteLocked(c)

		case *protocol.JoinRoom, *protocol.CreateRoom, *protocol.GetRoomList:
			_ = c.Send(protocol.NewError(protocol.ErrAlreadyInRoom))

		default:
			_ = c.Send(protocol.NewError(protocol.ErrUnrecognizedType))
		}
	})
}

// OnDisconnect treats a dropped connection as an implicit leave.
func (r *Room) OnDisconnect(c *transport.Client) {
	r.post(func() {
		player := c.Player()
		if _, ok := r.members[player]; !ok {
			return
		}
		r.removeMember(player)
		r.engine.Unbind(player)
		r.broadcastMembership()
		r.logger.Info("player dropped", zap.String("player", player))
	})
}

func (r *Room) handleCommand(c *transport.Client, player, command string) {
	for _, resp := range r.engine.HandleCommand(player, command) {
		if resp.Broadcast {
			r.broadcast(resp.Env)
		} else {
			_ = c.Send(resp.Env)
		}
	}
	r.save()
}

// save persists the game state after a command. Storage failures are
// logged, never surfaced to players; gameplay continues on the in-memory
// state.
func (r *Room) save() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.reconciler.Save(ctx, r.name, r.engine.State()); err != nil {
		r.logger.Error("saving game state", zap.Error(err))
	}
}

func (r *Room) handleSelectCharacter(c *transport.Client, player, character string) {
	if err := r.engine.BindCharacter(player, character); err != nil {
		switch {
		case errors.Is(err, game.ErrCharacterBound):
			_ = c.Send(protocol.NewError(protocol.ErrCharacterTaken))
		case errors.Is(err, game.ErrUnknownCharacter):
			_ = c.Send(protocol.NewError(protocol.ErrCharacterNotFound))
		default:
			_ = c.Send(protocol.NewErrorMessage(protocol.ErrCharacterNotFound, err.Error()))
		}
		return
	}
	r.logger.Info("character selected",
		zap.String("player", player),
		zap.String("character", character),
	)
	r.broadcast(&protocol.AvailableCharacters{Characters: r.engine.AvailableCharacters()})
}

// disconnectPlayer performs an orderly leave: the player is confirmed,
// handed back to the lobby, and the survivors see the new membership.
func (r *Room) disconnectPlayer(c *transport.Client, player string) {
	r.removeMember(player)
	r.engine.Unbind(player)

	_ = c.Send(&protocol.RoomDisconnected{RoomName: r.name})
	c.SetDispatcher(r.registry)
	c.SetPlayer("")

	r.broadcastMembership()
	r.logger.Info("player left", zap.String("player", player))
}

// Delete tears the room down on behalf of a client outside it.
func (r *Room) Delete() error {
	var err error
	if !r.run(func() {
		err = r.unregister()
		if err != nil {
			return
		}
		r.teardown()
	}) {
		return errors.New("room already deleted")
	}
	return err
}

// deleteLocked is the in-room delete path; already on the worker.
func (r *Room) deleteLocked(c *transport.Client) {
	if err := r.unregister(); err != nil {
		r.logger.Error("deleting room", zap.Error(err))
		_ = c.Send(protocol.NewError(protocol.ErrRoomNotDeleted))
		return
	}
	r.teardown()
}

func (r *Room) unregister() error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return r.registry.Unregister(ctx, r.name)
}

// teardown broadcasts the deletion and returns every member to the
// lobby on their live connections. Runs on the worker; the execution
// slot closes behind it.
func (r *Room) teardown() {
	r.broadcast(&protocol.RoomDeleted{RoomName: r.name})
	for _, player := range r.Users() {
		r.membersMu.RLock()
		member := r.members[player]
		r.membersMu.RUnlock()
		r.removeMember(player)
		_ = member.Send(&protocol.RoomDisconnected{RoomName: r.name})
		member.SetDispatcher(r.registry)
		member.SetPlayer("")
	}
	r.engine.UnbindAll()
	close(r.quit)

	r.logger.Info("room deleted")
}

func (r *Room) removeMember(player string) {
	r.membersMu.Lock()
	defer r.membersMu.Unlock()
	delete(r.members, player)
	for i, name := range r.joined {
		if name == player {
			r.joined = append(r.joined[:i], r.joined[i+1:]...)
			break
		}
	}
}

// broadcastMembership pushes the room roster and the free characters to
// every remaining member after someone leaves.
func (r *Room) broadcastMembership() {
	r.broadcast(r.Details())
	r.broadcast(&protocol.AvailableCharacters{Characters: r.engine.AvailableCharacters()})
}

// broadcast sends env to every member in join order. A slow member only
// affects its own queue.
func (r *Room) broadcast(env protocol.Envelope) {
	for _, player := range r.Users() {
		r.membersMu.RLock()
		member := r.members[player]
		r.membersMu.RUnlock()
		if member == nil {
			continue
		}
		if err := member.Send(env); err != nil {
			r.logger.Debug("broadcast send failed",
				zap.String("player", player),
				zap.Error(err),
			)
		}
	}
}

func (r *Room) isThisRoom(name string) bool {
	return strings.EqualFold(name, r.name)
}
