package lobby

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ghostline/ghostline/internal/storage"
)

// roomSeed is one entry of a room bootstrap file.
type roomSeed struct {
	RoomName     string `yaml:"room_name"`
	RoomPassword string `yaml:"room_password"`
}

// LoadRoomsFile bulk-creates rooms from a YAML (or JSON) file holding an
// array of room entries. The whole batch is validated up front: a missing
// name, an in-batch duplicate, or a room that already exists aborts the
// batch before anything is created.
func (rt *Router) LoadRoomsFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rooms file: %w", err)
	}

	var seeds []roomSeed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("parsing rooms file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(seeds))
	for i, seed := range seeds {
		if seed.RoomName == "" {
			return fmt.Errorf("rooms file %s: entry %d has no room_name", path, i)
		}
		if _, dup := seen[seed.RoomName]; dup {
			return fmt.Errorf("rooms file %s: duplicate room %q", path, seed.RoomName)
		}
		// The store is checked rather than the roster so seeding stays
		// safe before Bootstrap has run.
		if _, err := rt.store.GetRoom(ctx, seed.RoomName); err == nil {
			return fmt.Errorf("rooms file %s: room %q already exists", path, seed.RoomName)
		} else if !errors.Is(err, storage.ErrRoomNotFound) {
			return fmt.Errorf("checking room %q: %w", seed.RoomName, err)
		}
		seen[seed.RoomName] = struct{}{}
	}

	for _, seed := range seeds {
		if _, err := rt.CreateRoom(ctx, seed.RoomName, seed.RoomPassword); err != nil {
			return fmt.Errorf("creating room %q: %w", seed.RoomName, err)
		}
	}

	rt.logger.Info("rooms seeded",
		zap.String("path", path),
		zap.Int("count", len(seeds)),
	)
	return nil
}
