package registry

import (
	"context"
	"testing"

	"github.com/renfield-project/renfield/internal/room"
	"github.com/renfield-project/renfield/internal/session"
)

type fakeHandle struct{ closed bool }

func (h *fakeHandle) Close() error { h.closed = true; return nil }

type recordingSink struct {
	states []session.State
	ends   []string
}

func (s *recordingSink) SendState(deviceID string, state session.State) {
	s.states = append(s.states, state)
}
func (s *recordingSink) SendSessionEnd(deviceID, sessionID, reason string) {
	s.ends = append(s.ends, reason)
}

func newTestRegistry() (*Registry, *recordingSink) {
	sink := &recordingSink{}
	return New(room.NewService(true), sink, 1024), sink
}

func TestRegisterCreatesDeviceAndResolvesRoom(t *testing.T) {
	r, _ := newTestRegistry()
	roomID, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "10.0.0.5", &fakeHandle{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if roomID == "" {
		t.Fatalf("expected non-empty room id")
	}
	dev, ok := r.GetDevice("sat-1")
	if !ok {
		t.Fatalf("expected device to be registered")
	}
	if !dev.Capabilities.HasMicrophone || !dev.Capabilities.HasWakeword {
		t.Fatalf("satellite defaults not applied: %+v", dev.Capabilities)
	}
}

func TestRegisterIsIdempotentAndUpdatesAddress(t *testing.T) {
	r, _ := newTestRegistry()
	h1 := &fakeHandle{}
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "10.0.0.5", h1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h2 := &fakeHandle{}
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "10.0.0.6", h2); err != nil {
		t.Fatalf("Register: %v", err)
	}
	dev, ok := r.GetDevice("sat-1")
	if !ok {
		t.Fatalf("expected device to still be registered")
	}
	if dev.IPAddress != "10.0.0.6" {
		t.Fatalf("IPAddress = %q, want %q", dev.IPAddress, "10.0.0.6")
	}
}

func TestStartSessionRejectsWhenAlreadyActive(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "", &fakeHandle{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.StartSession("sat-1", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := r.StartSession("sat-1", ""); err != ErrSessionExists {
		t.Fatalf("err = %v, want ErrSessionExists", err)
	}
}

func TestStartSessionUnknownDevice(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.StartSession("ghost", ""); err != ErrDeviceNotFound {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestBufferAudioAndGetAudioOutOfOrder(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "", &fakeHandle{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sessionID, err := r.StartSession("sat-1", "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := r.BufferAudio(sessionID, []byte("AA"), 1); err != nil {
		t.Fatalf("BufferAudio seq 1: %v", err)
	}
	if err := r.BufferAudio(sessionID, []byte("CC"), 3); err != nil {
		t.Fatalf("BufferAudio seq 3: %v", err)
	}
	if err := r.BufferAudio(sessionID, []byte("BB"), 2); err != nil {
		t.Fatalf("BufferAudio seq 2: %v", err)
	}

	data, err := r.GetAudio(sessionID)
	if err != nil {
		t.Fatalf("GetAudio: %v", err)
	}
	if string(data) != "AABBCC" {
		t.Fatalf("GetAudio = %q, want %q", data, "AABBCC")
	}
}

func TestBufferAudioIgnoresDuplicateOfFlushedChunk(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "", &fakeHandle{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sessionID, err := r.StartSession("sat-1", "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := r.BufferAudio(sessionID, []byte("AA"), 1); err != nil {
		t.Fatalf("BufferAudio seq 1: %v", err)
	}
	if err := r.BufferAudio(sessionID, []byte("BB"), 2); err != nil {
		t.Fatalf("BufferAudio seq 2: %v", err)
	}
	// A retried seq 1 chunk arrives after it already flushed into the
	// ring buffer; it must not resurrect a pending entry for seq 1.
	if err := r.BufferAudio(sessionID, []byte("AA"), 1); err != nil {
		t.Fatalf("BufferAudio duplicate seq 1: %v", err)
	}

	data, err := r.GetAudio(sessionID)
	if err != nil {
		t.Fatalf("GetAudio: %v", err)
	}
	if string(data) != "AABB" {
		t.Fatalf("GetAudio = %q, want %q", data, "AABB")
	}
}

func TestBufferAudioRejectsWrongState(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "", &fakeHandle{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sessionID, err := r.StartSession("sat-1", "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	ctx := context.Background()
	if _, err := r.SetSessionState(ctx, sessionID, session.EventAudioEnd); err != nil {
		t.Fatalf("SetSessionState: %v", err)
	}
	if err := r.BufferAudio(sessionID, []byte("x"), 1); err != ErrWrongState {
		t.Fatalf("err = %v, want ErrWrongState", err)
	}
}

func TestBufferAudioRejectsOverflow(t *testing.T) {
	r, _ := newTestRegistry()
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "", &fakeHandle{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sessionID, err := r.StartSession("sat-1", "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	big := make([]byte, 2048)
	if err := r.BufferAudio(sessionID, big, 1); err != ErrBufferFull {
		t.Fatalf("err = %v, want ErrBufferFull", err)
	}
}

func TestEndSessionIsIdempotentAndNotifiesSink(t *testing.T) {
	r, sink := newTestRegistry()
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "", &fakeHandle{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	sessionID, err := r.StartSession("sat-1", "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	ctx := context.Background()
	r.EndSession(ctx, sessionID, "cancel")
	r.EndSession(ctx, sessionID, "cancel") // second call is a no-op

	if len(sink.ends) != 1 || sink.ends[0] != "cancel" {
		t.Fatalf("ends = %+v, want exactly one \"cancel\"", sink.ends)
	}
	if _, active := r.ActiveSession("sat-1"); active {
		t.Fatalf("expected no active session after EndSession")
	}
}

func TestUnregisterEndsActiveSession(t *testing.T) {
	r, sink := newTestRegistry()
	if _, err := r.Register("sat-1", DeviceSatellite, "Kitchen", Capabilities{}, "", true, "", &fakeHandle{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.StartSession("sat-1", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	r.Unregister(context.Background(), "sat-1")

	dev, _ := r.GetDevice("sat-1")
	if dev.IsOnline {
		t.Fatalf("expected device offline after Unregister")
	}
	if len(sink.ends) != 1 || sink.ends[0] != "device_disconnected" {
		t.Fatalf("ends = %+v, want device_disconnected", sink.ends)
	}
}
