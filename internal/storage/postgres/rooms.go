package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghostline/ghostline/internal/storage"
)

// RoomRepository persists the multiplayer room roster.
type RoomRepository struct {
	db *pgxpool.Pool
}

// NewRoomRepository creates a RoomRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// CreateRoom inserts a room row.
//
// Postcondition: Returns storage.ErrRoomExists when the name is taken.
func (r *RoomRepository) CreateRoom(ctx context.Context, rec storage.RoomRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_rooms (name, password_hash, game_name)
		 VALUES ($1, $2, $3)`,
		rec.Name, rec.PasswordHash, rec.GameName,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrRoomExists
		}
		return fmt.Errorf("inserting room: %w", err)
	}
	return nil
}

// DeleteRoom removes a room. Game-state rows bound to the room go with it
// through ON DELETE CASCADE.
//
// Postcondition: Returns storage.ErrRoomNotFound when no row matched.
func (r *RoomRepository) DeleteRoom(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM game_rooms WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrRoomNotFound
	}
	return nil
}

// ListRooms returns every persisted room sorted by name.
func (r *RoomRepository) ListRooms(ctx context.Context) ([]storage.RoomRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, password_hash, game_name, created_at
		 FROM game_rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var out []storage.RoomRecord
	for rows.Next() {
		var rec storage.RoomRecord
		if err := rows.Scan(&rec.Name, &rec.PasswordHash, &rec.GameName, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return out, nil
}

// GetRoom retrieves one room by name.
//
// Postcondition: Returns storage.ErrRoomNotFound when no such room exists.
func (r *RoomRepository) GetRoom(ctx context.Context, name string) (storage.RoomRecord, error) {
	var rec storage.RoomRecord
	err := r.db.QueryRow(ctx,
		`SELECT name, password_hash, game_name, created_at
		 FROM game_rooms WHERE name = $1`,
		name,
	).Scan(&rec.Name, &rec.PasswordHash, &rec.GameName, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.RoomRecord{}, storage.ErrRoomNotFound
		}
		return storage.RoomRecord{}, fmt.Errorf("querying room: %w", err)
	}
	return rec, nil
}
