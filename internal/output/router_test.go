package output

import (
	"context"
	"testing"

	"github.com/renfield-project/renfield/internal/hacontroller"
)

type fakeRegistry struct{ online map[string]bool }

func (f fakeRegistry) IsDeviceOnline(id string) bool { return f.online[id] }

func TestRouterSelectsHighestPriorityAvailable(t *testing.T) {
	store := NewInMemoryDeviceStore()
	store.Put(RoomOutputDevice{ID: "a", RoomID: "room-1", OutputType: OutputTypeAudio, HAEntityID: "media_player.low_pri", Priority: 2, IsEnabled: true})
	store.Put(RoomOutputDevice{ID: "b", RoomID: "room-1", OutputType: OutputTypeAudio, HAEntityID: "media_player.high_pri", Priority: 1, IsEnabled: true})

	ha := hacontroller.NewMockClient([]hacontroller.Entity{
		{EntityID: "media_player.low_pri", State: "idle"},
		{EntityID: "media_player.high_pri", State: "idle"},
	})

	r := NewRouter(store, fakeRegistry{}, ha)
	d := r.Decide(context.Background(), "room-1", "input-dev")
	if d.Reason != ReasonSelected || d.TargetID != "media_player.high_pri" {
		t.Fatalf("expected high_pri entity selected, got %+v", d)
	}
}

func TestRouterSkipsBusyWithoutInterruption(t *testing.T) {
	store := NewInMemoryDeviceStore()
	store.Put(RoomOutputDevice{ID: "a", RoomID: "room-1", OutputType: OutputTypeAudio, HAEntityID: "media_player.busy", Priority: 1, IsEnabled: true, AllowInterruption: false})
	store.Put(RoomOutputDevice{ID: "b", RoomID: "room-1", OutputType: OutputTypeAudio, HAEntityID: "media_player.free", Priority: 2, IsEnabled: true})

	ha := hacontroller.NewMockClient([]hacontroller.Entity{
		{EntityID: "media_player.busy", State: "playing"},
		{EntityID: "media_player.free", State: "idle"},
	})

	r := NewRouter(store, fakeRegistry{}, ha)
	d := r.Decide(context.Background(), "room-1", "input-dev")
	if d.TargetID != "media_player.free" {
		t.Fatalf("expected busy device skipped, got %+v", d)
	}
}

func TestRouterNoDevicesConfigured(t *testing.T) {
	store := NewInMemoryDeviceStore()
	r := NewRouter(store, fakeRegistry{}, nil)
	d := r.Decide(context.Background(), "empty-room", "input-dev")
	if d.Reason != ReasonNoOutputDevicesConfigured || !d.FallbackToInput {
		t.Fatalf("expected no_output_devices_configured fallback, got %+v", d)
	}
}

func TestRouterAllUnavailable(t *testing.T) {
	store := NewInMemoryDeviceStore()
	store.Put(RoomOutputDevice{ID: "a", RoomID: "room-1", OutputType: OutputTypeAudio, HAEntityID: "media_player.off", Priority: 1, IsEnabled: true})
	ha := hacontroller.NewMockClient([]hacontroller.Entity{{EntityID: "media_player.off", State: "off"}})

	r := NewRouter(store, fakeRegistry{}, ha)
	d := r.Decide(context.Background(), "room-1", "input-dev")
	if d.Reason != ReasonAllDevicesUnavailable || !d.FallbackToInput {
		t.Fatalf("expected all_devices_unavailable fallback, got %+v", d)
	}
}
