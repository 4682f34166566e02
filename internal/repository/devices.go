package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Devices persists the device table as an audit/rehydration record
// alongside internal/registry.Registry's in-memory table, which remains
// the authoritative source for IsOnline/handle state. A device row here
// always reflects the last successful registration, even across a
// process restart that drops every live connection.
type Devices struct {
	store *Store
}

func NewDevices(store *Store) *Devices {
	return &Devices{store: store}
}

type DeviceCapabilities struct {
	HasMicrophone bool `json:"has_microphone"`
	HasSpeaker    bool `json:"has_speaker"`
	HasDisplay    bool `json:"has_display"`
	HasWakeword   bool `json:"has_wakeword"`
	HasCamera     bool `json:"has_camera"`
}

// Save upserts one device's last-known registration row.
func (d *Devices) Save(ctx context.Context, deviceID, deviceType, deviceName, roomID string, isStationary bool, caps DeviceCapabilities, ipAddress string) error {
	encoded, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("repository: marshal device capabilities: %w", err)
	}
	_, err = d.store.pool.Exec(ctx,
		`INSERT INTO devices (device_id, device_type, device_name, room_id, is_stationary, capabilities, ip_address, last_connected)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (device_id) DO UPDATE SET
		    device_type = EXCLUDED.device_type,
		    device_name = EXCLUDED.device_name,
		    room_id = EXCLUDED.room_id,
		    is_stationary = EXCLUDED.is_stationary,
		    capabilities = EXCLUDED.capabilities,
		    ip_address = EXCLUDED.ip_address,
		    last_connected = EXCLUDED.last_connected`,
		deviceID, deviceType, deviceName, roomID, isStationary, encoded, ipAddress, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: save device: %w", err)
	}
	return nil
}
