// Package output implements the Output Router (C7): given a room and
// input device, selects the best audio sink for TTS playback.
package output

// OutputType distinguishes the kind of sink a RoomOutputDevice describes.
type OutputType string

const (
	OutputTypeAudio OutputType = "audio"
)

// RoomOutputDevice is one candidate playback sink configured for a room,
// matching the room_output_devices schema in spec.md §6.4. Exactly one of
// RenfieldDeviceID / HAEntityID / DLNARendererName identifies the sink.
type RoomOutputDevice struct {
	ID                string
	RoomID            string
	OutputType        OutputType
	RenfieldDeviceID  string
	HAEntityID        string
	DLNARendererName  string
	Priority          int
	AllowInterruption bool
	TTSVolume         *float64
	IsEnabled         bool
	DeviceName        string
}

// TargetType identifies how the caller should deliver audio to the chosen
// decision target.
type TargetType string

const (
	TargetHAEntity    TargetType = "ha_entity"
	TargetRenfieldWS   TargetType = "renfield_ws"
	TargetInputDevice TargetType = "input_device"
	TargetNone        TargetType = "none"
)

// Decision is the Router's answer for one (room, input device) pair. The
// router never plays audio itself — the caller uses Decision to either
// ask the HA controller to play on TargetID, forward TTS bytes over the
// Renfield device's websocket, or fall back to the input device.
type Decision struct {
	TargetType      TargetType
	TargetID        string
	OutputDevice    *RoomOutputDevice
	Reason          string
	FallbackToInput bool
}

// Reason strings, matching spec.md §4.7 exactly.
const (
	ReasonNoOutputDevicesConfigured = "no_output_devices_configured"
	ReasonAllDevicesUnavailable     = "all_devices_unavailable"
	ReasonSelected                  = "selected"
)
