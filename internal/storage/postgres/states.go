package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghostline/ghostline/internal/storage"
)

// StateRepository persists game state as row-per-fact tables. Every write
// is an idempotent upsert or delete so the reconciler can replay a diff
// safely.
type StateRepository struct {
	db *pgxpool.Pool
}

// NewStateRepository creates a StateRepository backed by the given pool.
func NewStateRepository(db *pgxpool.Pool) *StateRepository {
	return &StateRepository{db: db}
}

// StateID resolves the state UUID bound to a room.
//
// Postcondition: Returns storage.ErrStateNotFound when the room has no
// persisted state.
func (r *StateRepository) StateID(ctx context.Context, roomName string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT state_id FROM game_states WHERE room_name = $1`,
		roomName,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, storage.ErrStateNotFound
		}
		return uuid.Nil, fmt.Errorf("querying state id: %w", err)
	}
	return id, nil
}

// BindState binds a state UUID to a room, replacing any previous binding.
//
// Postcondition: Returns storage.ErrRoomNotFound when the room row does
// not exist (foreign key violation).
func (r *StateRepository) BindState(ctx context.Context, roomName string, stateID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_states (room_name, state_id)
		 VALUES ($1, $2)
		 ON CONFLICT (room_name) DO UPDATE SET state_id = EXCLUDED.state_id`,
		roomName, stateID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrRoomNotFound
		}
		return fmt.Errorf("binding state: %w", err)
	}
	return nil
}

func (r *StateRepository) ListFlags(ctx context.Context, stateID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT flag FROM game_flags WHERE state_id = $1 ORDER BY flag`, stateID)
	if err != nil {
		return nil, fmt.Errorf("querying flags: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows, "flag")
}

func (r *StateRepository) UpsertFlag(ctx context.Context, stateID uuid.UUID, flag string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_flags (state_id, flag)
		 VALUES ($1, $2)
		 ON CONFLICT (state_id, flag) DO NOTHING`,
		stateID, flag,
	)
	if err != nil {
		return fmt.Errorf("upserting flag: %w", err)
	}
	return nil
}

func (r *StateRepository) DeleteFlag(ctx context.Context, stateID uuid.UUID, flag string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM game_flags WHERE state_id = $1 AND flag = $2`,
		stateID, flag,
	)
	if err != nil {
		return fmt.Errorf("deleting flag: %w", err)
	}
	return nil
}

func (r *StateRepository) ListCharacters(ctx context.Context, stateID uuid.UUID) ([]storage.CharacterRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, display_name, room_name
		 FROM game_characters WHERE state_id = $1 ORDER BY name`, stateID)
	if err != nil {
		return nil, fmt.Errorf("querying characters: %w", err)
	}
	defer rows.Close()

	var out []storage.CharacterRecord
	for rows.Next() {
		var rec storage.CharacterRecord
		if err := rows.Scan(&rec.Name, &rec.DisplayName, &rec.RoomName); err != nil {
			return nil, fmt.Errorf("scanning character: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating characters: %w", err)
	}
	return out, nil
}

func (r *StateRepository) UpsertCharacter(ctx context.Context, stateID uuid.UUID, rec storage.CharacterRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_characters (state_id, name, display_name, room_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (state_id, name)
		 DO UPDATE SET display_name = EXCLUDED.display_name, room_name = EXCLUDED.room_name`,
		stateID, rec.Name, rec.DisplayName, rec.RoomName,
	)
	if err != nil {
		return fmt.Errorf("upserting character: %w", err)
	}
	return nil
}

func (r *StateRepository) DeleteCharacter(ctx context.Context, stateID uuid.UUID, name string) error {
	// Inventory rows cascade through the foreign key on game_characters.
	_, err := r.db.Exec(ctx,
		`DELETE FROM game_characters WHERE state_id = $1 AND name = $2`,
		stateID, name,
	)
	if err != nil {
		return fmt.Errorf("deleting character: %w", err)
	}
	return nil
}

func (r *StateRepository) ListNPCs(ctx context.Context, stateID uuid.UUID) ([]storage.NPCRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, display_name, room_name
		 FROM game_npcs WHERE state_id = $1 ORDER BY name`, stateID)
	if err != nil {
		return nil, fmt.Errorf("querying npcs: %w", err)
	}
	defer rows.Close()

	var out []storage.NPCRecord
	for rows.Next() {
		var rec storage.NPCRecord
		if err := rows.Scan(&rec.Name, &rec.DisplayName, &rec.RoomName); err != nil {
			return nil, fmt.Errorf("scanning npc: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating npcs: %w", err)
	}
	return out, nil
}

func (r *StateRepository) UpsertNPC(ctx context.Context, stateID uuid.UUID, rec storage.NPCRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_npcs (state_id, name, display_name, room_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (state_id, name)
		 DO UPDATE SET display_name = EXCLUDED.display_name, room_name = EXCLUDED.room_name`,
		stateID, rec.Name, rec.DisplayName, rec.RoomName,
	)
	if err != nil {
		return fmt.Errorf("upserting npc: %w", err)
	}
	return nil
}

func (r *StateRepository) DeleteNPC(ctx context.Context, stateID uuid.UUID, name string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM game_npcs WHERE state_id = $1 AND name = $2`,
		stateID, name,
	)
	if err != nil {
		return fmt.Errorf("deleting npc: %w", err)
	}
	return nil
}

func (r *StateRepository) ListInventory(ctx context.Context, stateID uuid.UUID, character string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT item_name FROM character_inventories
		 WHERE state_id = $1 AND character_name = $2 ORDER BY item_name`,
		stateID, character)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows, "inventory item")
}

func (r *StateRepository) UpsertInventoryItem(ctx context.Context, stateID uuid.UUID, character, item string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO character_inventories (state_id, character_name, item_name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (state_id, character_name, item_name) DO NOTHING`,
		stateID, character, item,
	)
	if err != nil {
		return fmt.Errorf("upserting inventory item: %w", err)
	}
	return nil
}

func (r *StateRepository) DeleteInventoryItem(ctx context.Context, stateID uuid.UUID, character, item string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM character_inventories
		 WHERE state_id = $1 AND character_name = $2 AND item_name = $3`,
		stateID, character, item,
	)
	if err != nil {
		return fmt.Errorf("deleting inventory item: %w", err)
	}
	return nil
}

func scanStrings(rows pgx.Rows, what string) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", what, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %ss: %w", what, err)
	}
	return out, nil
}

// isForeignKeyError checks for SQLSTATE 23503 (foreign_key_violation).
func isForeignKeyError(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23503"
	}
	return false
}
