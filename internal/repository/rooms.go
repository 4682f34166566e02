package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/renfield-project/renfield/internal/room"
)

// Rooms persists the room directory so rooms survive a restart, as a
// write-through companion to internal/room.Service's in-memory tables:
// the service stays the hot path every lookup goes through, while Rooms
// records each create/update for LoadAll to rehydrate it at startup.
type Rooms struct {
	store *Store
}

func NewRooms(store *Store) *Rooms {
	return &Rooms{store: store}
}

// Save upserts one room by id.
func (r *Rooms) Save(ctx context.Context, rm room.Room) error {
	_, err := r.store.pool.Exec(ctx,
		`INSERT INTO rooms (id, name, alias, external_area_id, icon, source)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET
		    name = EXCLUDED.name,
		    alias = EXCLUDED.alias,
		    external_area_id = EXCLUDED.external_area_id,
		    icon = EXCLUDED.icon,
		    source = EXCLUDED.source`,
		rm.ID, rm.Name, rm.Alias, rm.ExternalAreaID, rm.Icon, string(rm.Source),
	)
	if err != nil {
		return fmt.Errorf("repository: save room: %w", err)
	}
	return nil
}

// LoadAll returns every persisted room, used to rehydrate
// internal/room.Service's in-memory tables on process start.
func (r *Rooms) LoadAll(ctx context.Context) ([]room.Room, error) {
	rows, err := r.store.pool.Query(ctx,
		`SELECT id, name, alias, external_area_id, icon, source FROM rooms`,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: load rooms: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (room.Room, error) {
		var rm room.Room
		var source string
		if err := row.Scan(&rm.ID, &rm.Name, &rm.Alias, &rm.ExternalAreaID, &rm.Icon, &source); err != nil {
			return room.Room{}, err
		}
		rm.Source = room.Source(source)
		return rm, nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: scan rooms: %w", err)
	}
	return out, nil
}
