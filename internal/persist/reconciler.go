// Package persist reconciles in-memory game state with storage. Instead of
// rewriting the whole snapshot on every save, it diffs the live state
// against the persisted rows and issues only the upserts and deletes that
// close the gap.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghostline/ghostline/internal/game"
	"github.com/ghostline/ghostline/internal/storage"
)

// Reconciler diffs game state against a StateStore.
type Reconciler struct {
	store storage.StateStore
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store storage.StateStore) *Reconciler {
	return &Reconciler{store: store}
}

// Save persists state for roomName. Rows present in storage but absent
// from state are deleted; everything in state is upserted only when it
// differs from the stored row.
//
// Postcondition: a second Save of an unchanged state issues no writes.
func (r *Reconciler) Save(ctx context.Context, roomName string, state *game.State) error {
	if err := r.ensureBinding(ctx, roomName, state); err != nil {
		return err
	}
	if err := r.reconcileFlags(ctx, state); err != nil {
		return err
	}
	if err := r.reconcileCharacters(ctx, state); err != nil {
		return err
	}
	return r.reconcileNPCs(ctx, state)
}

func (r *Reconciler) ensureBinding(ctx context.Context, roomName string, state *game.State) error {
	bound, err := r.store.StateID(ctx, roomName)
	if err == nil && bound == state.UUID {
		return nil
	}
	if err != nil && !errors.Is(err, storage.ErrStateNotFound) {
		return fmt.Errorf("resolving state binding: %w", err)
	}
	if err := r.store.BindState(ctx, roomName, state.UUID); err != nil {
		return fmt.Errorf("binding state: %w", err)
	}
	return nil
}

func (r *Reconciler) reconcileFlags(ctx context.Context, state *game.State) error {
	stored, err := r.store.ListFlags(ctx, state.UUID)
	if err != nil {
		return fmt.Errorf("listing flags: %w", err)
	}
	storedSet := make(map[string]struct{}, len(stored))
	for _, f := range stored {
		storedSet[f] = struct{}{}
		if !state.HasFlag(game.Flag(f)) {
			if err := r.store.DeleteFlag(ctx, state.UUID, f); err != nil {
				return fmt.Errorf("deleting flag %s: %w", f, err)
			}
		}
	}
	for _, f := range state.Flags().All() {
		if _, ok := storedSet[string(f)]; !ok {
			if err := r.store.UpsertFlag(ctx, state.UUID, string(f)); err != nil {
				return fmt.Errorf("upserting flag %s: %w", f, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) reconcileCharacters(ctx context.Context, state *game.State) error {
	stored, err := r.store.ListCharacters(ctx, state.UUID)
	if err != nil {
		return fmt.Errorf("listing characters: %w", err)
	}
	storedByName := make(map[string]storage.CharacterRecord, len(stored))
	for _, rec := range stored {
		storedByName[rec.Name] = rec
		if !state.HasCharacter(rec.Name) {
			if err := r.store.DeleteCharacter(ctx, state.UUID, rec.Name); err != nil {
				return fmt.Errorf("deleting character %s: %w", rec.Name, err)
			}
		}
	}

	for _, c := range state.Characters() {
		want := storage.CharacterRecord{
			Name:        c.Name,
			DisplayName: c.DisplayName,
			RoomName:    locationName(c.Room()),
		}
		if storedByName[c.Name] != want {
			if err := r.store.UpsertCharacter(ctx, state.UUID, want); err != nil {
				return fmt.Errorf("upserting character %s: %w", c.Name, err)
			}
		}
		if err := r.reconcileInventory(ctx, state, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) reconcileInventory(ctx context.Context, state *game.State, c *game.Character) error {
	stored, err := r.store.ListInventory(ctx, state.UUID, c.Name)
	if err != nil {
		return fmt.Errorf("listing inventory for %s: %w", c.Name, err)
	}
	storedSet := make(map[string]struct{}, len(stored))
	for _, item := range stored {
		storedSet[item] = struct{}{}
		if !c.HasItem(item) {
			if err := r.store.DeleteInventoryItem(ctx, state.UUID, c.Name, item); err != nil {
				return fmt.Errorf("deleting inventory item %s: %w", item, err)
			}
		}
	}
	for _, item := range c.Items() {
		if _, ok := storedSet[item.Name]; !ok {
			if err := r.store.UpsertInventoryItem(ctx, state.UUID, c.Name, item.Name); err != nil {
				return fmt.Errorf("upserting inventory item %s: %w", item.Name, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) reconcileNPCs(ctx context.Context, state *game.State) error {
	stored, err := r.store.ListNPCs(ctx, state.UUID)
	if err != nil {
		return fmt.Errorf("listing npcs: %w", err)
	}
	storedByName := make(map[string]storage.NPCRecord, len(stored))
	for _, rec := range stored {
		storedByName[rec.Name] = rec
		if !state.HasNPC(rec.Name) {
			if err := r.store.DeleteNPC(ctx, state.UUID, rec.Name); err != nil {
				return fmt.Errorf("deleting npc %s: %w", rec.Name, err)
			}
		}
	}
	for _, n := range state.NPCs() {
		want := storage.NPCRecord{
			Name:        n.Name,
			DisplayName: n.DisplayName,
			RoomName:    locationName(n.Room()),
		}
		if storedByName[n.Name] != want {
			if err := r.store.UpsertNPC(ctx, state.UUID, want); err != nil {
				return fmt.Errorf("upserting npc %s: %w", n.Name, err)
			}
		}
	}
	return nil
}

// Load rebuilds a room's game state from storage. Room references resolve
// through desc.Map; items resolve against the map's item definitions by
// name, falling back to a bare item when the definition moved.
//
// Postcondition: Returns storage.ErrStateNotFound when the room has no
// persisted state.
func (r *Reconciler) Load(ctx context.Context, roomName string, desc *game.Description) (*game.State, error) {
	id, err := r.store.StateID(ctx, roomName)
	if err != nil {
		return nil, err
	}
	state := game.NewStateWithID(id)

	flags, err := r.store.ListFlags(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing flags: %w", err)
	}
	for _, f := range flags {
		state.AddFlag(game.Flag(f))
	}

	chars, err := r.store.ListCharacters(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	for _, rec := range chars {
		room := desc.Map.Room(rec.RoomName)
		if room == nil {
			return nil, fmt.Errorf("character %s stored in unknown room %q", rec.Name, rec.RoomName)
		}
		c := game.NewCharacter(rec.Name, rec.DisplayName, room)
		items, err := r.store.ListInventory(ctx, id, rec.Name)
		if err != nil {
			return nil, fmt.Errorf("listing inventory for %s: %w", rec.Name, err)
		}
		for _, name := range items {
			c.AddItem(findItem(desc, name))
		}
		state.AddCharacter(c)
	}

	npcs, err := r.store.ListNPCs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing npcs: %w", err)
	}
	for _, rec := range npcs {
		room := desc.Map.Room(rec.RoomName)
		if room == nil {
			return nil, fmt.Errorf("npc %s stored in unknown room %q", rec.Name, rec.RoomName)
		}
		state.AddNPC(game.NewNPC(rec.Name, rec.DisplayName, room))
	}

	return state, nil
}

func locationName(room *game.Room) string {
	if room == nil {
		return ""
	}
	return room.Name
}

func findItem(desc *game.Description, name string) game.Item {
	for _, room := range desc.Map.Rooms() {
		if item, ok := room.Item(name); ok {
			return item
		}
	}
	return game.Item{Name: name}
}
