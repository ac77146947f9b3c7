// Package memory provides an in-process storage.Store used by tests and
// by servers running without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghostline/ghostline/internal/storage"
)

type inventoryKey struct {
	character string
	item      string
}

type stateRows struct {
	flags      map[string]struct{}
	characters map[string]storage.CharacterRecord
	npcs       map[string]storage.NPCRecord
	inventory  map[inventoryKey]struct{}
}

func newStateRows() *stateRows {
	return &stateRows{
		flags:      make(map[string]struct{}),
		characters: make(map[string]storage.CharacterRecord),
		npcs:       make(map[string]storage.NPCRecord),
		inventory:  make(map[inventoryKey]struct{}),
	}
}

// Store is an in-memory storage.Store. It counts mutating calls so tests
// can assert that unchanged state produces no writes.
type Store struct {
	mu       sync.Mutex
	rooms    map[string]storage.RoomRecord
	stateIDs map[string]uuid.UUID
	states   map[uuid.UUID]*stateRows
	writes   int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rooms:    make(map[string]storage.RoomRecord),
		stateIDs: make(map[string]uuid.UUID),
		states:   make(map[uuid.UUID]*stateRows),
	}
}

// Writes returns the number of mutating calls observed so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// ResetWrites zeroes the mutating-call counter.
func (s *Store) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = 0
}

func (s *Store) CreateRoom(_ context.Context, rec storage.RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.rooms[rec.Name]; ok {
		return storage.ErrRoomExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.rooms[rec.Name] = rec
	return nil
}

func (s *Store) DeleteRoom(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.rooms[name]; !ok {
		return storage.ErrRoomNotFound
	}
	delete(s.rooms, name)
	if id, ok := s.stateIDs[name]; ok {
		delete(s.stateIDs, name)
		delete(s.states, id)
	}
	return nil
}

func (s *Store) GetRoom(_ context.Context, name string) (storage.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rooms[name]
	if !ok {
		return storage.RoomRecord{}, storage.ErrRoomNotFound
	}
	return rec, nil
}

func (s *Store) ListRooms(_ context.Context) ([]storage.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.RoomRecord, 0, len(s.rooms))
	for _, rec := range s.rooms {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) StateID(_ context.Context, roomName string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.stateIDs[roomName]
	if !ok {
		return uuid.Nil, storage.ErrStateNotFound
	}
	return id, nil
}

func (s *Store) BindState(_ context.Context, roomName string, stateID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if _, ok := s.rooms[roomName]; !ok {
		return storage.ErrRoomNotFound
	}
	if old, ok := s.stateIDs[roomName]; ok && old != stateID {
		delete(s.states, old)
	}
	s.stateIDs[roomName] = stateID
	if _, ok := s.states[stateID]; !ok {
		s.states[stateID] = newStateRows()
	}
	return nil
}

func (s *Store) rows(stateID uuid.UUID) *stateRows {
	rows, ok := s.states[stateID]
	if !ok {
		rows = newStateRows()
		s.states[stateID] = rows
	}
	return rows
}

func (s *Store) ListFlags(_ context.Context, stateID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows(stateID)
	out := make([]string, 0, len(rows.flags))
	for f := range rows.flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) UpsertFlag(_ context.Context, stateID uuid.UUID, flag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.rows(stateID).flags[flag] = struct{}{}
	return nil
}

func (s *Store) DeleteFlag(_ context.Context, stateID uuid.UUID, flag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.rows(stateID).flags, flag)
	return nil
}

func (s *Store) ListCharacters(_ context.Context, stateID uuid.UUID) ([]storage.CharacterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows(stateID)
	out := make([]storage.CharacterRecord, 0, len(rows.characters))
	for _, rec := range rows.characters {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertCharacter(_ context.Context, stateID uuid.UUID, rec storage.CharacterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.rows(stateID).characters[rec.Name] = rec
	return nil
}

func (s *Store) DeleteCharacter(_ context.Context, stateID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	rows := s.rows(stateID)
	delete(rows.characters, name)
	for key := range rows.inventory {
		if key.character == name {
			delete(rows.inventory, key)
		}
	}
	return nil
}

func (s *Store) ListNPCs(_ context.Context, stateID uuid.UUID) ([]storage.NPCRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows(stateID)
	out := make([]storage.NPCRecord, 0, len(rows.npcs))
	for _, rec := range rows.npcs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertNPC(_ context.Context, stateID uuid.UUID, rec storage.NPCRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.rows(stateID).npcs[rec.Name] = rec
	return nil
}

func (s *Store) DeleteNPC(_ context.Context, stateID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.rows(stateID).npcs, name)
	return nil
}

func (s *Store) ListInventory(_ context.Context, stateID uuid.UUID, character string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows(stateID)
	var out []string
	for key := range rows.inventory {
		if key.character == character {
			out = append(out, key.item)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) UpsertInventoryItem(_ context.Context, stateID uuid.UUID, character, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.rows(stateID).inventory[inventoryKey{character, item}] = struct{}{}
	return nil
}

func (s *Store) DeleteInventoryItem(_ context.Context, stateID uuid.UUID, character, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	delete(s.rows(stateID).inventory, inventoryKey{character, item})
	return nil
}

var _ storage.Store = (*Store)(nil)
