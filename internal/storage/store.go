// Package storage defines the persistence contracts for rooms and game
// state. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRoomExists is returned when creating a room whose name is taken.
var ErrRoomExists = errors.New("room already exists")

// ErrRoomNotFound is returned when a room lookup yields no results.
var ErrRoomNotFound = errors.New("room not found")

// ErrStateNotFound is returned when a room has no persisted game state.
var ErrStateNotFound = errors.New("game state not found")

// RoomRecord is a persisted multiplayer room. The password is stored as a
// bcrypt hash; an empty hash means the room is open.
type RoomRecord struct {
	Name         string
	PasswordHash string
	GameName     string
	CreatedAt    time.Time
}

// CharacterRecord is a persisted character position.
type CharacterRecord struct {
	Name        string
	DisplayName string
	RoomName    string
}

// NPCRecord is a persisted NPC position.
type NPCRecord struct {
	Name        string
	DisplayName string
	RoomName    string
}

// RoomStore persists the room roster.
type RoomStore interface {
	// CreateRoom registers a room. Fails with ErrRoomExists when the name
	// is taken.
	CreateRoom(ctx context.Context, rec RoomRecord) error

	// DeleteRoom removes a room and, through cascade, its game state.
	// Fails with ErrRoomNotFound when no such room exists.
	DeleteRoom(ctx context.Context, name string) error

	// GetRoom retrieves one room by name. Fails with ErrRoomNotFound when
	// no such room exists.
	GetRoom(ctx context.Context, name string) (RoomRecord, error)

	// ListRooms returns every persisted room sorted by name.
	ListRooms(ctx context.Context) ([]RoomRecord, error)
}

// StateStore persists game state as row-per-fact tables keyed by a state
// UUID, so the reconciler can diff and write only what changed.
type StateStore interface {
	// StateID resolves the state UUID bound to a room, or ErrStateNotFound.
	StateID(ctx context.Context, roomName string) (uuid.UUID, error)

	// BindState binds a state UUID to a room, replacing any previous
	// binding. Fails with ErrRoomNotFound when the room does not exist.
	BindState(ctx context.Context, roomName string, stateID uuid.UUID) error

	ListFlags(ctx context.Context, stateID uuid.UUID) ([]string, error)
	UpsertFlag(ctx context.Context, stateID uuid.UUID, flag string) error
	DeleteFlag(ctx context.Context, stateID uuid.UUID, flag string) error

	ListCharacters(ctx context.Context, stateID uuid.UUID) ([]CharacterRecord, error)
	UpsertCharacter(ctx context.Context, stateID uuid.UUID, rec CharacterRecord) error
	DeleteCharacter(ctx context.Context, stateID uuid.UUID, name string) error

	ListNPCs(ctx context.Context, stateID uuid.UUID) ([]NPCRecord, error)
	UpsertNPC(ctx context.Context, stateID uuid.UUID, rec NPCRecord) error
	DeleteNPC(ctx context.Context, stateID uuid.UUID, name string) error

	// ListInventory returns the item names carried by one character.
	ListInventory(ctx context.Context, stateID uuid.UUID, character string) ([]string, error)
	UpsertInventoryItem(ctx context.Context, stateID uuid.UUID, character, item string) error
	DeleteInventoryItem(ctx context.Context, stateID uuid.UUID, character, item string) error
}

// Store is the full persistence surface the server wires together.
type Store interface {
	RoomStore
	StateStore
}
