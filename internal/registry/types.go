// Package registry implements the Device Registry (C1): the authoritative
// in-memory table of connected devices, their sessions, and the audio
// bytes buffered against each session.
package registry

import "time"

type DeviceType string

const (
	DeviceSatellite  DeviceType = "satellite"
	DeviceWebPanel   DeviceType = "web_panel"
	DeviceWebTablet  DeviceType = "web_tablet"
	DeviceWebBrowser DeviceType = "web_browser"
	DeviceWebKiosk   DeviceType = "web_kiosk"
)

// Capabilities describes what a device can do. Defaults are merged per
// device type in defaultCapabilities and overridden by whatever the
// client supplies at registration.
type Capabilities struct {
	HasMicrophone bool
	HasSpeaker    bool
	HasDisplay    bool
	HasWakeword   bool
	HasCamera     bool
}

func defaultCapabilities(t DeviceType) Capabilities {
	switch t {
	case DeviceSatellite:
		return Capabilities{HasMicrophone: true, HasSpeaker: true, HasWakeword: true}
	case DeviceWebPanel, DeviceWebTablet, DeviceWebKiosk:
		return Capabilities{HasMicrophone: true, HasSpeaker: true, HasDisplay: true}
	case DeviceWebBrowser:
		return Capabilities{HasMicrophone: true, HasSpeaker: true, HasDisplay: true}
	default:
		return Capabilities{}
	}
}

func mergeCapabilities(base, override Capabilities) Capabilities {
	return Capabilities{
		HasMicrophone: base.HasMicrophone || override.HasMicrophone,
		HasSpeaker:    base.HasSpeaker || override.HasSpeaker,
		HasDisplay:    base.HasDisplay || override.HasDisplay,
		HasWakeword:   base.HasWakeword || override.HasWakeword,
		HasCamera:     base.HasCamera || override.HasCamera,
	}
}

// Device is a long-lived device identity. The registry owns this record
// exclusively; other components borrow it by DeviceID and must tolerate
// its disappearance.
type Device struct {
	DeviceID      string
	DeviceType    DeviceType
	DeviceName    string
	RoomID        string
	IsStationary  bool
	Capabilities  Capabilities
	IsOnline      bool
	LastConnected time.Time
	IPAddress     string

	handle ConnHandle
}

// ConnHandle is the minimal surface the registry needs from a live
// connection: enough to close a superseded or torn-down handle without
// the registry importing the websocket package directly.
type ConnHandle interface {
	Close() error
}

// Session is the ephemeral unit of a single user turn. Audio bytes and
// the session.Machine live alongside it but are not exported directly;
// callers go through BufferAudio/GetAudio/SetSessionState.
type Session struct {
	SessionID      string
	DeviceID       string
	RoomID         string
	CreatedAt      time.Time
	StateEnteredAt time.Time
	Transcript     string
	MaxSeq         uint64
	Warning        string // set when GetAudio had to bridge a sequence gap
}
