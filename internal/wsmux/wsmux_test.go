package wsmux

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/renfield-project/renfield/internal/config"
	"github.com/renfield-project/renfield/internal/hacontroller"
	"github.com/renfield-project/renfield/internal/llm"
	"github.com/renfield-project/renfield/internal/memory"
	"github.com/renfield-project/renfield/internal/output"
	"github.com/renfield-project/renfield/internal/registry"
	"github.com/renfield-project/renfield/internal/room"
	"github.com/renfield-project/renfield/internal/router"
	"github.com/renfield-project/renfield/internal/stt"
	"github.com/renfield-project/renfield/internal/tools"
	"github.com/renfield-project/renfield/internal/tts"
)

// noOutputDevices is a minimal output.DeviceLister fixture: these tests
// don't exercise the Output Router's device-selection paths.
type noOutputDevices struct{}

func (noOutputDevices) ListForRoom(context.Context, string) ([]output.RoomOutputDevice, error) {
	return nil, nil
}

// newTestServer wires the same collaborators cmd/renfieldd/main.go does,
// all mocks/in-memory, behind an httptest.Server speaking real WebSocket
// frames over the loopback interface.
func newTestServer(t *testing.T, maxAudioBytes int) (*httptest.Server, string) {
	return newTestServerWithLLM(t, maxAudioBytes, llm.NewMockClient())
}

func newTestServerWithLLM(t *testing.T, maxAudioBytes int, client llm.Client) (*httptest.Server, string) {
	t.Helper()

	rooms := room.NewService(true)
	reg := registry.New(rooms, nil, maxAudioBytes)
	outRouter := output.NewRouter(noOutputDevices{}, reg, hacontroller.NewMockClient(nil))
	toolRegistry := tools.NewRegistry()
	executor := tools.NewExecutor(toolRegistry, 0)
	routerSvc := router.New(client, toolRegistry, executor, memory.NewInMemoryStore(), true, router.AgentLoopConfig{MaxSteps: 3})

	srv := New(config.Config{AllowAnyOrigin: true}, reg, rooms, nil, outRouter, routerSvc, stt.NewMockProvider(), tts.NewMockProvider(), hacontroller.NewMockClient(nil), nil, nil)
	reg.SetSink(srv)

	ts := httptest.NewServer(srv)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	return ts, wsURL
}

// slowLLM blocks every call until its delay elapses or the call's
// context is cancelled, so tests can disconnect mid-turn.
type slowLLM struct {
	delay time.Duration
}

func (s slowLLM) Complete(ctx context.Context, _ llm.Request) (llm.Response, error) {
	select {
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	case <-time.After(s.delay):
		return llm.Response{Text: "okay"}, nil
	}
}

func (s slowLLM) Stream(ctx context.Context, req llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
	return s.Complete(ctx, req)
}

func (s slowLLM) Embeddings(context.Context, string) ([]float32, error) {
	return nil, nil
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var v map[string]any
	if err := ws.ReadJSON(&v); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return v
}

func registerDevice(t *testing.T, ws *websocket.Conn, deviceID string) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{
		"type":        "register",
		"device_id":   deviceID,
		"device_type": "web_browser",
		"room":        "Kitchen",
	}); err != nil {
		t.Fatalf("write register: %v", err)
	}
	ack := readFrame(t, ws)
	if ack["type"] != "register_ack" {
		t.Fatalf("expected register_ack, got %v", ack)
	}
	if ack["success"] != true {
		t.Fatalf("expected successful register_ack, got %v", ack)
	}
}

// TestTextTurnHappyPath drives scenario S1's shape end to end: register,
// submit already-transcribed text, and observe the reply/session_end
// frames the agent loop (falling back to RoleGeneral against the mock
// LLM) produces.
func TestTextTurnHappyPath(t *testing.T) {
	ts, wsURL := newTestServer(t, 1<<20)
	defer ts.Close()

	ws := dial(t, wsURL)
	defer ws.Close()

	registerDevice(t, ws, "device-1")

	if err := ws.WriteJSON(map[string]any{
		"type":    "text",
		"content": "what time is it",
	}); err != nil {
		t.Fatalf("write text: %v", err)
	}

	var sawResponse, sawSessionEnd bool
	var endReason string
	for i := 0; i < 10; i++ {
		frame := readFrame(t, ws)
		switch frame["type"] {
		case "response_text":
			sawResponse = true
		case "session_end":
			sawSessionEnd = true
			endReason, _ = frame["reason"].(string)
		}
		if sawSessionEnd {
			break
		}
	}
	if !sawResponse {
		t.Fatalf("never saw a response_text frame")
	}
	if !sawSessionEnd {
		t.Fatalf("never saw a session_end frame")
	}
	if endReason != "completed" {
		t.Fatalf("session_end reason = %q, want %q", endReason, "completed")
	}
}

// TestDisconnectDuringTurnLeavesServerHealthy covers scenario S5: a
// client that drops mid-turn (the LLM call still in flight) must not
// take the process down — the turn goroutine observes cancellation,
// teardown waits for it, and a fresh connection still completes a turn.
func TestDisconnectDuringTurnLeavesServerHealthy(t *testing.T) {
	ts, wsURL := newTestServerWithLLM(t, 1<<20, slowLLM{delay: 10 * time.Second})
	defer ts.Close()

	ws := dial(t, wsURL)
	registerDevice(t, ws, "device-3")
	if err := ws.WriteJSON(map[string]any{
		"type":    "text",
		"content": "tell me a very long story",
	}); err != nil {
		t.Fatalf("write text: %v", err)
	}
	// Drop the connection while the slow LLM call is still pending.
	time.Sleep(100 * time.Millisecond)
	ws.Close()

	// The server must still accept and serve a fresh connection; use a
	// separate device id so the dropped one's teardown can't interfere.
	ws2 := dial(t, wsURL)
	defer ws2.Close()
	registerDevice(t, ws2, "device-4")
	if err := ws2.WriteJSON(map[string]any{"type": "heartbeat", "status": "ok"}); err != nil {
		t.Fatalf("write heartbeat on second conn: %v", err)
	}
	ack := readFrame(t, ws2)
	if ack["type"] != "heartbeat_ack" {
		t.Fatalf("expected heartbeat_ack, got %v", ack)
	}
}

// TestWakewordVoiceTurn drives the satellite voice path: a client-chosen
// session id from wakeword_detected is honored, streamed audio survives
// assembly, and the turn closes with transcription, done, and a
// completed session_end, in that order.
func TestWakewordVoiceTurn(t *testing.T) {
	ts, wsURL := newTestServer(t, 1<<20)
	defer ts.Close()

	ws := dial(t, wsURL)
	defer ws.Close()

	registerDevice(t, ws, "sat-k1")

	if err := ws.WriteJSON(map[string]any{
		"type":       "wakeword_detected",
		"keyword":    "alexa",
		"confidence": 0.9,
		"session_id": "sat-k1-1",
	}); err != nil {
		t.Fatalf("write wakeword_detected: %v", err)
	}
	started := readFrame(t, ws)
	if started["type"] != "session_started" {
		t.Fatalf("expected session_started, got %v", started)
	}
	if started["session_id"] != "sat-k1-1" {
		t.Fatalf("session_started id = %v, want sat-k1-1", started["session_id"])
	}

	chunk := base64.StdEncoding.EncodeToString(make([]byte, 1600))
	for seq := uint64(1); seq <= 3; seq++ {
		if err := ws.WriteJSON(map[string]any{
			"type":       "audio",
			"session_id": "sat-k1-1",
			"chunk":      chunk,
			"sequence":   seq,
		}); err != nil {
			t.Fatalf("write audio %d: %v", seq, err)
		}
	}
	if err := ws.WriteJSON(map[string]any{
		"type":       "audio_end",
		"session_id": "sat-k1-1",
		"reason":     "silence",
	}); err != nil {
		t.Fatalf("write audio_end: %v", err)
	}

	var sawTranscription, sawDone, sawSessionEnd bool
	var endReason string
	for i := 0; i < 20 && !sawSessionEnd; i++ {
		frame := readFrame(t, ws)
		switch frame["type"] {
		case "transcription":
			sawTranscription = true
			if frame["text"] == "" {
				t.Fatalf("transcription frame had empty text: %v", frame)
			}
		case "done":
			sawDone = true
		case "session_end":
			sawSessionEnd = true
			endReason, _ = frame["reason"].(string)
		}
	}
	if !sawTranscription {
		t.Fatalf("never saw a transcription frame")
	}
	if !sawDone {
		t.Fatalf("never saw a done frame")
	}
	if endReason != "completed" {
		t.Fatalf("session_end reason = %q, want %q", endReason, "completed")
	}
}

// TestAudioBufferOverflowEndsSession covers scenario S2 and testable
// property #4: once buffered audio would exceed the configured bound,
// the client gets an error{BUFFER_FULL} and the session ends with
// reason buffer_full, regression coverage for the handleAudio fix.
func TestAudioBufferOverflowEndsSession(t *testing.T) {
	ts, wsURL := newTestServer(t, 8)
	defer ts.Close()

	ws := dial(t, wsURL)
	defer ws.Close()

	registerDevice(t, ws, "device-2")

	if err := ws.WriteJSON(map[string]any{"type": "start_session"}); err != nil {
		t.Fatalf("write start_session: %v", err)
	}
	started := readFrame(t, ws)
	if started["type"] != "session_started" {
		t.Fatalf("expected session_started, got %v", started)
	}
	sessionID, _ := started["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("session_started had no session_id: %v", started)
	}

	chunk := base64.StdEncoding.EncodeToString([]byte("0123456789"))
	if err := ws.WriteJSON(map[string]any{
		"type":       "audio",
		"session_id": sessionID,
		"chunk":      chunk,
		"sequence":   uint64(1),
	}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	errFrame := readFrame(t, ws)
	if errFrame["type"] != "error" {
		t.Fatalf("expected error frame, got %v", errFrame)
	}
	if errFrame["code"] != "BUFFER_FULL" {
		t.Fatalf("error code = %v, want BUFFER_FULL", errFrame["code"])
	}

	endFrame := readFrame(t, ws)
	if endFrame["type"] != "session_end" {
		t.Fatalf("expected session_end frame, got %v", endFrame)
	}
	if endFrame["session_id"] != sessionID {
		t.Fatalf("session_end session_id = %v, want %v", endFrame["session_id"], sessionID)
	}
	if endFrame["reason"] != "buffer_full" {
		t.Fatalf("session_end reason = %v, want buffer_full", endFrame["reason"])
	}
}
