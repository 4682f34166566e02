package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"

	"github.com/renfield-project/renfield/internal/output"
)

// OutputDevices satisfies output.DeviceLister, reading the
// room_output_devices rows internal/output.Router ranks and selects
// from. Production deployments configure these rows out of band (no
// HTTP CRUD is exposed, per the explicit scope decision to keep admin
// surfaces out of this build); Put below exists for tests
// and startup seeding.
type OutputDevices struct {
	store *Store
}

func NewOutputDevices(store *Store) *OutputDevices {
	return &OutputDevices{store: store}
}

func (d *OutputDevices) ListForRoom(ctx context.Context, roomID string) ([]output.RoomOutputDevice, error) {
	rows, err := d.store.pool.Query(ctx,
		`SELECT id, room_id, output_type, renfield_device_id, ha_entity_id, dlna_renderer_name,
		        priority, allow_interruption, tts_volume, is_enabled, device_name
		 FROM room_output_devices WHERE room_id=$1`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: list output devices: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (output.RoomOutputDevice, error) {
		var rod output.RoomOutputDevice
		var outputType string
		var ttsVolume *float64
		if err := row.Scan(
			&rod.ID, &rod.RoomID, &outputType, &rod.RenfieldDeviceID, &rod.HAEntityID, &rod.DLNARendererName,
			&rod.Priority, &rod.AllowInterruption, &ttsVolume, &rod.IsEnabled, &rod.DeviceName,
		); err != nil {
			return output.RoomOutputDevice{}, err
		}
		rod.OutputType = output.OutputType(outputType)
		rod.TTSVolume = ttsVolume
		return rod, nil
	})
	if err != nil {
		return nil, fmt.Errorf("repository: scan output devices: %w", err)
	}
	return out, nil
}

// Put inserts or replaces one candidate output device row.
func (d *OutputDevices) Put(ctx context.Context, rod output.RoomOutputDevice) error {
	if rod.ID == "" {
		rod.ID = uuid.NewString()
	}
	_, err := d.store.pool.Exec(ctx,
		`INSERT INTO room_output_devices
		    (id, room_id, output_type, renfield_device_id, ha_entity_id, dlna_renderer_name,
		     priority, allow_interruption, tts_volume, is_enabled, device_name)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (id) DO UPDATE SET
		    room_id = EXCLUDED.room_id,
		    output_type = EXCLUDED.output_type,
		    renfield_device_id = EXCLUDED.renfield_device_id,
		    ha_entity_id = EXCLUDED.ha_entity_id,
		    dlna_renderer_name = EXCLUDED.dlna_renderer_name,
		    priority = EXCLUDED.priority,
		    allow_interruption = EXCLUDED.allow_interruption,
		    tts_volume = EXCLUDED.tts_volume,
		    is_enabled = EXCLUDED.is_enabled,
		    device_name = EXCLUDED.device_name`,
		rod.ID, rod.RoomID, string(rod.OutputType), rod.RenfieldDeviceID, rod.HAEntityID, rod.DLNARendererName,
		rod.Priority, rod.AllowInterruption, rod.TTSVolume, rod.IsEnabled, rod.DeviceName,
	)
	if err != nil {
		return fmt.Errorf("repository: put output device: %w", err)
	}
	return nil
}
