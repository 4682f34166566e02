package tools

import (
	"context"
	"testing"
	"time"

	"github.com/renfield-project/renfield/internal/hacontroller"
	"github.com/renfield-project/renfield/internal/output"
	"github.com/renfield-project/renfield/internal/room"
)

// scriptedHAClient simulates a media_player entity whose state
// transitions a fixed number of steps after each play_media/control call,
// so tests don't depend on wall-clock playback behavior.
type scriptedHAClient struct {
	state        string
	callLog      []string
	settleAfter  int // number of GetState polls before settling to "playing"
	pollsSoFar   int
	neverSettles bool
	played       bool
}

func (c *scriptedHAClient) CallService(_ context.Context, domain, service, entityID string, data map[string]any) (hacontroller.CallResult, error) {
	c.callLog = append(c.callLog, service)
	if service == "play_media" {
		c.played = true
		c.pollsSoFar = 0
		if c.state == "" || c.state == "idle" {
			c.state = "idle"
		}
	} else {
		c.state = service
	}
	return hacontroller.CallResult{Success: true}, nil
}

func (c *scriptedHAClient) GetState(_ context.Context, entityID string) (hacontroller.Entity, error) {
	if c.played && !c.neverSettles && c.pollsSoFar >= c.settleAfter {
		c.state = "playing"
	}
	c.pollsSoFar++
	return hacontroller.Entity{EntityID: entityID, State: c.state}, nil
}

func (c *scriptedHAClient) SearchEntities(context.Context, string, string) ([]hacontroller.Entity, error) {
	return nil, nil
}

func setupPlaybackFixture(ha hacontroller.Client) (*room.Service, *output.Router) {
	rooms := room.NewService(true)
	_, _ = rooms.Create("Living Room", room.SourceManual)
	store := output.NewInMemoryDeviceStore()
	r, _ := rooms.Resolve("Living Room")
	store.Put(output.RoomOutputDevice{ID: "d1", RoomID: r.ID, OutputType: output.OutputTypeAudio, HAEntityID: "media_player.living_room", Priority: 1, IsEnabled: true, AllowInterruption: true})
	router := output.NewRouter(store, fakeRegistryStub{}, ha)
	return rooms, router
}

type fakeRegistryStub struct{}

func (fakeRegistryStub) IsDeviceOnline(string) bool { return true }

func TestPlayInRoomHappyPath(t *testing.T) {
	ha := &scriptedHAClient{state: "idle", settleAfter: 0}
	rooms, router := setupPlaybackFixture(ha)
	tool := NewPlayInRoomTool(rooms, router, ha, nil, time.Millisecond, time.Millisecond, "transcode=true")

	res, err := tool.Execute(context.Background(), CallContext{}, map[string]any{
		"media_url": "http://example.com/stream.mp3",
		"room_name": "Living Room",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || !res.ActionTaken {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestPlayInRoomBusyWithoutForce(t *testing.T) {
	ha := &scriptedHAClient{state: "playing"}
	rooms, router := setupPlaybackFixture(ha)
	tool := NewPlayInRoomTool(rooms, router, ha, nil, time.Millisecond, time.Millisecond, "transcode=true")

	res, err := tool.Execute(context.Background(), CallContext{}, map[string]any{
		"media_url": "http://example.com/stream.mp3",
		"room_name": "Living Room",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Data["status"] != "busy" {
		t.Fatalf("expected busy status, got %+v", res)
	}
}

func TestPlayInRoomBusyWithForceSucceeds(t *testing.T) {
	ha := &scriptedHAClient{state: "playing", settleAfter: 0}
	rooms, router := setupPlaybackFixture(ha)
	tool := NewPlayInRoomTool(rooms, router, ha, nil, time.Millisecond, time.Millisecond, "transcode=true")

	res, err := tool.Execute(context.Background(), CallContext{}, map[string]any{
		"media_url": "http://example.com/stream.mp3",
		"room_name": "Living Room",
		"force":     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success with force=true, got %+v", res)
	}
}

func TestPlayInRoomTranscodeFallback(t *testing.T) {
	ha := &scriptedHAClient{state: "idle"}
	rooms, router := setupPlaybackFixture(ha)
	tool := NewPlayInRoomTool(rooms, router, ha, nil, time.Millisecond, time.Millisecond, "transcode=true")

	// Never settles, even across the transcode retry, so this test
	// exercises the failure branch deterministically.
	ha.neverSettles = true

	res, err := tool.Execute(context.Background(), CallContext{}, map[string]any{
		"media_url": "http://example.com/stream.mp3?static=true",
		"room_name": "Living Room",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// neverSettles stays true for the whole run, so playback never
	// settles even after the transcode retry; this exercises the
	// failure path deterministically rather than relying on timing.
	if res.Success {
		t.Fatalf("expected failure since state never settles, got %+v", res)
	}
	found := false
	for _, call := range ha.callLog {
		if call == "play_media" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected at least one play_media call, got %v", ha.callLog)
	}
}

func TestPlayInRoomNoDeviceConfigured(t *testing.T) {
	ha := &scriptedHAClient{}
	rooms := room.NewService(true)
	store := output.NewInMemoryDeviceStore()
	router := output.NewRouter(store, fakeRegistryStub{}, ha)
	tool := NewPlayInRoomTool(rooms, router, ha, nil, time.Millisecond, time.Millisecond, "")

	res, err := tool.Execute(context.Background(), CallContext{}, map[string]any{
		"media_url": "http://example.com/a.mp3",
		"room_name": "Nonexistent Room",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.ErrorCode != "room_not_found" {
		t.Fatalf("expected room_not_found, got %+v", res)
	}
}

func TestMediaControlStop(t *testing.T) {
	ha := &scriptedHAClient{state: "playing"}
	rooms, router := setupPlaybackFixture(ha)
	tool := NewMediaControlTool(rooms, router, ha)

	res, err := tool.Execute(context.Background(), CallContext{}, map[string]any{
		"room_name": "Living Room",
		"action":    "stop",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if ha.state != "media_stop" {
		t.Fatalf("expected media_stop service called, got state %q", ha.state)
	}
}
