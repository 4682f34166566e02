package output

import (
	"context"
	"sort"

	"github.com/renfield-project/renfield/internal/hacontroller"
)

// DeviceLister supplies the candidate RoomOutputDevice rows for a room,
// sorted by nothing in particular — the Router sorts by priority itself.
type DeviceLister interface {
	ListForRoom(ctx context.Context, roomID string) ([]RoomOutputDevice, error)
}

// RenfieldAvailability reports whether a Renfield-attached device (one
// registered through C1) is presently available as a playback target.
// Renfield devices have no independent "busy" signal beyond being online;
// a device mid-session on its own microphone is still a valid speaker.
type RenfieldAvailability interface {
	IsDeviceOnline(deviceID string) bool
}

// Router is the Output Router (C7): a pure selection algorithm over
// RoomOutputDevice rows plus live availability checks into either the
// registry (Renfield devices) or the home-automation collaborator
// (HA-attached devices). It never plays audio itself.
type Router struct {
	devices    DeviceLister
	registry   RenfieldAvailability
	ha         hacontroller.Client
}

func NewRouter(devices DeviceLister, registry RenfieldAvailability, ha hacontroller.Client) *Router {
	return &Router{devices: devices, registry: registry, ha: ha}
}

// Decide implements spec.md §4.7's algorithm exactly: load enabled audio
// devices for the room sorted by priority ascending, skip devices that
// are off/unreachable or busy-without-interruption, and return the first
// available one.
func (r *Router) Decide(ctx context.Context, roomID, inputDeviceID string) Decision {
	rows, err := r.devices.ListForRoom(ctx, roomID)
	if err != nil || len(rows) == 0 {
		return Decision{Reason: ReasonNoOutputDevicesConfigured, FallbackToInput: true, TargetType: TargetInputDevice, TargetID: inputDeviceID}
	}

	var candidates []RoomOutputDevice
	for _, d := range rows {
		if d.OutputType != OutputTypeAudio || !d.IsEnabled {
			continue
		}
		candidates = append(candidates, d)
	}
	if len(candidates) == 0 {
		return Decision{Reason: ReasonNoOutputDevicesConfigured, FallbackToInput: true, TargetType: TargetInputDevice, TargetID: inputDeviceID}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Priority < candidates[j].Priority })

	for i := range candidates {
		dev := candidates[i]
		if !r.available(ctx, dev) {
			continue
		}
		if dev.HAEntityID != "" {
			return Decision{TargetType: TargetHAEntity, TargetID: dev.HAEntityID, OutputDevice: &dev, Reason: ReasonSelected}
		}
		if dev.RenfieldDeviceID != "" {
			return Decision{TargetType: TargetRenfieldWS, TargetID: dev.RenfieldDeviceID, OutputDevice: &dev, Reason: ReasonSelected}
		}
		// DLNA-only rows have no Renfield-owned delivery path; treat as
		// selected but let the caller decide how to reach it.
		return Decision{TargetType: TargetNone, TargetID: dev.DLNARendererName, OutputDevice: &dev, Reason: ReasonSelected}
	}

	return Decision{Reason: ReasonAllDevicesUnavailable, FallbackToInput: true, TargetType: TargetInputDevice, TargetID: inputDeviceID}
}

// available checks whether dev is currently off/unreachable, or playing
// without permitting interruption.
func (r *Router) available(ctx context.Context, dev RoomOutputDevice) bool {
	switch {
	case dev.HAEntityID != "":
		if r.ha == nil {
			return false
		}
		entity, err := r.ha.GetState(ctx, dev.HAEntityID)
		if err != nil {
			return false
		}
		switch entity.State {
		case "off", "unavailable", "unreachable":
			return false
		case "playing", "buffering":
			return dev.AllowInterruption
		default:
			return true
		}
	case dev.RenfieldDeviceID != "":
		if r.registry == nil {
			return false
		}
		return r.registry.IsDeviceOnline(dev.RenfieldDeviceID)
	default:
		// DLNA renderers have no availability signal wired in this
		// design; treat as available and let dispatch fail loudly if not.
		return true
	}
}
