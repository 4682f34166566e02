// Package wakeword implements the Wake-Word Config Broadcaster (C8): the
// single source of truth for wake-word settings, with reliable fan-out to
// subscribed devices and per-device ack tracking.
package wakeword

import "time"

// Config is the process-wide wake-word setting, persisted in the settings
// store and broadcast to subscribers on every successful update.
type Config struct {
	Keywords   []string
	Threshold  float64
	CooldownMs int64
	Enabled    bool
	Version    uint64
}

// PartialUpdate carries only the fields an UpdateConfig caller wants to
// change; zero-value fields are left untouched.
type PartialUpdate struct {
	Keywords   []string
	Threshold  *float64
	CooldownMs *int64
	Enabled    *bool
}

// DeviceSyncRecord is per-subscribed-device ack state. Synced iff
// LastAckVersion >= current version, LastAckSuccess is true and Error is empty, matching spec.md
// §3 and the round-trip law in §8 property 6.
type DeviceSyncRecord struct {
	DeviceID       string
	LastAckVersion uint64
	LastAckSuccess bool
	ActiveKeywords []string
	FailedKeywords []string
	LastAckAt      time.Time
	Error          string
}

func (d DeviceSyncRecord) Synced(currentVersion uint64) bool {
	return d.LastAckSuccess && d.LastAckVersion >= currentVersion && d.Error == ""
}

// Sink is the minimal surface the broadcaster needs to push a frame to a
// subscribed device; internal/wsmux's connection wrapper implements it.
type Sink interface {
	SendConfigUpdate(cfg Config) error
}

// SettingsStore persists the wake-word config across restarts. The
// broadcaster owns this data; every other component only reads it
// through GetConfig.
type SettingsStore interface {
	LoadWakeWordConfig() (Config, bool, error)
	SaveWakeWordConfig(Config) error
}
