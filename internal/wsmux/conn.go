package wsmux

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/renfield-project/renfield/internal/audio"
	"github.com/renfield-project/renfield/internal/output"
	"github.com/renfield-project/renfield/internal/policy"
	"github.com/renfield-project/renfield/internal/protocol"
	"github.com/renfield-project/renfield/internal/registry"
	"github.com/renfield-project/renfield/internal/reliability"
	"github.com/renfield-project/renfield/internal/router"
	"github.com/renfield-project/renfield/internal/session"
	"github.com/renfield-project/renfield/internal/tools"
	"github.com/renfield-project/renfield/internal/wakeword"
)

// frameTypeLabel names an inbound/outbound frame for the ws_messages_total
// metric without reflection; unlisted frame kinds fall back to "other".
func frameTypeLabel(v any) string {
	switch v.(type) {
	case protocol.Register:
		return "register"
	case protocol.StartSession:
		return "start_session"
	case protocol.Audio:
		return "audio"
	case protocol.AudioEnd:
		return "audio_end"
	case protocol.Text:
		return "text"
	case protocol.Heartbeat, protocol.HeartbeatAck:
		return "heartbeat"
	case protocol.ConfigAck:
		return "config_ack"
	case protocol.WakewordDetected:
		return "wakeword_detected"
	case protocol.RegisterAck:
		return "register_ack"
	case protocol.State:
		return "state"
	case protocol.SessionStarted:
		return "session_started"
	case protocol.SessionEnd:
		return "session_end"
	case protocol.Transcription:
		return "transcription"
	case protocol.ToolCall:
		return "tool_call"
	case protocol.ToolResult:
		return "tool_result"
	case protocol.Stream:
		return "stream"
	case protocol.ResponseText:
		return "response_text"
	case protocol.TTSAudio:
		return "tts_audio"
	case protocol.Action:
		return "action"
	case protocol.Done:
		return "done"
	case protocol.ConfigUpdate:
		return "config_update"
	case protocol.Error:
		return "error"
	case protocol.PlayURL:
		return "play_url"
	default:
		return "other"
	}
}

// conn is one live WebSocket connection: a device, a satellite, or a web
// client. It implements registry.ConnHandle (Close), wakeword.Sink
// (SendConfigUpdate), and is the receiver for the per-turn router.FrameSink
// (via turnSink) created for each text/audio turn it drives.
type conn struct {
	srv    *Server
	ws     *websocket.Conn
	ip     string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// turns tracks the detached transcribe/turn goroutines so teardown
	// can wait for them before closing the outbound channel; a send on a
	// closed channel would panic the whole process otherwise.
	turns sync.WaitGroup

	sendMu   sync.Mutex
	closed   bool
	outbound chan any

	limiter *rate.Limiter

	mu            sync.Mutex
	deviceID      string
	deviceType    registry.DeviceType
	wakewordSubID int
	subscribed    bool
}

func newConn(s *Server, ws *websocket.Conn, ip string) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	depth := s.cfg.OutboundQueueDepth
	if depth <= 0 {
		depth = 64
	}
	var limiter *rate.Limiter
	if s.cfg.RateLimitPerSecond > 0 {
		burst := s.cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(s.cfg.RateLimitPerSecond)
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSecond), burst)
	}
	return &conn{
		srv:      s,
		ws:       ws,
		ip:       ip,
		logger:   s.logger,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan any, depth),
		limiter:  limiter,
	}
}

// Close satisfies registry.ConnHandle: the registry calls this on a
// superseded connection (the same device_id reconnecting elsewhere).
func (c *conn) Close() error {
	return c.ws.Close()
}

func (c *conn) run() {
	writerDone := make(chan struct{})
	go c.writePump(writerDone)

	c.readPump()

	// cleanup cancels c.ctx, so in-flight turn goroutines unwind at
	// their next suspension point; wait for them before the outbound
	// channel goes away underneath their sends.
	c.cleanup()
	c.turns.Wait()

	c.sendMu.Lock()
	c.closed = true
	close(c.outbound)
	c.sendMu.Unlock()
	<-writerDone
}

func (c *conn) cleanup() {
	c.cancel()
	c.releaseIP()

	c.mu.Lock()
	deviceID := c.deviceID
	subID := c.wakewordSubID
	subscribed := c.subscribed
	c.mu.Unlock()

	if subscribed && c.srv.wakeword != nil {
		c.srv.wakeword.Unsubscribe(subID)
	}
	if deviceID != "" {
		c.srv.untrackConn(deviceID, c)
		c.srv.releaseDevice(deviceID)
		c.srv.reg.Unregister(context.Background(), deviceID)
	}
}

func (c *conn) releaseIP() {
	c.srv.releaseIP(c.ip)
}

func (c *conn) readPump() {
	deadline := c.srv.cfg.SessionInactivityTimeout * 2
	if deadline <= 0 {
		deadline = 4 * time.Minute
	}
	c.ws.SetReadLimit(4 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(deadline))

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(deadline))

		if c.limiter != nil && !c.limiter.Allow() {
			_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrRateLimited, Message: "too many messages, slow down"})
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrInvalidMessage, Message: err.Error()})
			continue
		}
		if c.srv.metrics != nil {
			c.srv.metrics.WSMessages.WithLabelValues("in", frameTypeLabel(parsed)).Inc()
		}
		c.dispatch(parsed)
	}
}

func (c *conn) writePump(done chan struct{}) {
	defer close(done)
	for v := range c.outbound {
		_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.ws.WriteJSON(v); err != nil {
			if c.srv.metrics != nil {
				c.srv.metrics.WSWriteErrors.WithLabelValues(frameTypeLabel(v)).Inc()
			}
			return
		}
		if c.srv.metrics != nil {
			c.srv.metrics.WSMessages.WithLabelValues("out", frameTypeLabel(v)).Inc()
		}
	}
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// send enqueues an outbound frame, dropping it if the connection has
// already been torn down or its outbound queue is saturated — a slow
// reader should never be able to block the rest of the orchestrator.
func (c *conn) send(v any) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errors.New("wsmux: connection closed")
	}
	select {
	case c.outbound <- v:
		return nil
	default:
		c.logger.Warn("wsmux: outbound queue full, dropping frame")
		return nil
	}
}

func (c *conn) dispatch(msg any) {
	switch m := msg.(type) {
	case protocol.Register:
		c.handleRegister(m)
	case protocol.WakewordDetected:
		c.handleWakewordDetected(m)
	case protocol.StartSession:
		c.handleStartSession()
	case protocol.Audio:
		c.handleAudio(m)
	case protocol.AudioEnd:
		c.handleAudioEnd(m)
	case protocol.Text:
		c.handleText(m)
	case protocol.Heartbeat:
		c.handleHeartbeat(m)
	case protocol.ConfigAck:
		c.handleConfigAck(m)
	case protocol.UpdateProgress:
		c.logger.Info("device update progress", zap.String("stage", m.Stage), zap.Float64("progress", m.Progress))
	case protocol.UpdateComplete:
		c.logger.Info("device update complete", zap.String("stage", m.Stage))
	case protocol.UpdateFailed:
		c.logger.Warn("device update failed", zap.String("stage", m.Stage), zap.String("error", m.Error))
	default:
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrInvalidMessage, Message: "unhandled frame"})
	}
}

func (c *conn) handleRegister(m protocol.Register) {
	if !c.srv.admitDevice(m.DeviceID) {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: "too many connections for this device"})
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeConnLimitReached, "device connection limit"), time.Now().Add(time.Second))
		return
	}

	deviceType := registry.DeviceType(m.DeviceType)
	var override registry.Capabilities
	if m.Capabilities != nil {
		override = registry.Capabilities{
			HasMicrophone: m.Capabilities.HasMicrophone,
			HasSpeaker:    m.Capabilities.HasSpeaker,
			HasDisplay:    m.Capabilities.HasDisplay,
			HasWakeword:   m.Capabilities.HasWakeword,
			HasCamera:     m.Capabilities.HasCamera,
		}
	}

	roomID, err := c.srv.reg.Register(m.DeviceID, deviceType, m.Room, override, m.DeviceName, m.IsStationary, c.ip, c)
	if err != nil {
		c.srv.releaseDevice(m.DeviceID)
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: err.Error()})
		return
	}

	c.mu.Lock()
	c.deviceID = m.DeviceID
	c.deviceType = deviceType
	c.mu.Unlock()
	c.srv.trackConn(m.DeviceID, c)

	dev, _ := c.srv.reg.GetDevice(m.DeviceID)

	var subID int
	if c.srv.wakeword != nil && (dev.Capabilities.HasWakeword || dev.Capabilities.HasDisplay) {
		subID = c.srv.wakeword.Subscribe(c, m.DeviceID, m.DeviceType)
		c.mu.Lock()
		c.wakewordSubID = subID
		c.subscribed = true
		c.mu.Unlock()
	}

	var wwCfg wakeword.Config
	if c.srv.wakeword != nil {
		wwCfg = c.srv.wakeword.GetConfig()
	}

	_ = c.send(protocol.RegisterAck{
		Type:     protocol.TypeRegisterAck,
		Success:  true,
		DeviceID: m.DeviceID,
		RoomID:   roomID,
		Capabilities: protocol.Capabilities{
			HasMicrophone: dev.Capabilities.HasMicrophone,
			HasSpeaker:    dev.Capabilities.HasSpeaker,
			HasDisplay:    dev.Capabilities.HasDisplay,
			HasWakeword:   dev.Capabilities.HasWakeword,
			HasCamera:     dev.Capabilities.HasCamera,
		},
		Config: protocol.RegisterAckConfig{
			WakeWords:  wwCfg.Keywords,
			Threshold:  wwCfg.Threshold,
			CooldownMs: wwCfg.CooldownMs,
		},
		ProtocolVersion: "1",
	})
}

// handleWakewordDetected opens a session for a satellite that heard its
// wake word locally, honoring the client-supplied session id so the
// satellite can correlate the audio frames it is about to stream.
func (c *conn) handleWakewordDetected(m protocol.WakewordDetected) {
	deviceID := c.currentDeviceID()
	if deviceID == "" {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrUnauthorized, Message: "register before reporting a wake word"})
		return
	}
	c.logger.Debug("wakeword detected",
		zap.String("device_id", deviceID),
		zap.String("keyword", m.Keyword),
		zap.Float64("confidence", m.Confidence))

	sessionID, err := c.srv.reg.StartSession(deviceID, m.SessionID)
	if err != nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: err.Error()})
		return
	}
	c.srv.noteSessionStarted()
	_ = c.send(protocol.SessionStarted{Type: protocol.TypeSessionStarted, SessionID: sessionID})
}

// handleHeartbeat acks the keepalive and, when the satellite piggybacks
// BLE sightings on its metrics payload, feeds them to the Presence
// Service as beacon observations for the device's own room.
func (c *conn) handleHeartbeat(m protocol.Heartbeat) {
	_ = c.send(protocol.HeartbeatAck{Type: protocol.TypeHeartbeatAck})

	if c.srv.presence == nil || m.Metrics == nil {
		return
	}
	sightings, ok := m.Metrics["ble_beacons"].([]any)
	if !ok || len(sightings) == 0 {
		return
	}
	deviceID := c.currentDeviceID()
	if deviceID == "" {
		return
	}
	dev, ok := c.srv.reg.GetDevice(deviceID)
	if !ok {
		return
	}
	roomName := ""
	if c.srv.rooms != nil {
		if r, ok := c.srv.rooms.Get(dev.RoomID); ok {
			roomName = r.Name
		}
	}
	for _, raw := range sightings {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		userID, _ := entry["user_id"].(string)
		if userID == "" {
			continue
		}
		if err := c.srv.presence.ObserveBeacon(c.ctx, userID, dev.RoomID, roomName); err != nil {
			c.logger.Warn("wsmux: beacon observation failed", zap.Error(err))
		}
	}
}

func (c *conn) handleStartSession() {
	deviceID := c.currentDeviceID()
	if deviceID == "" {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrUnauthorized, Message: "register before starting a session"})
		return
	}
	sessionID, err := c.srv.reg.StartSession(deviceID, "")
	if err != nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: err.Error()})
		return
	}
	c.srv.noteSessionStarted()
	_ = c.send(protocol.SessionStarted{Type: protocol.TypeSessionStarted, SessionID: sessionID})
}

func (c *conn) handleAudio(m protocol.Audio) {
	chunk, err := decodeAudioChunk(m.Chunk)
	if err != nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrInvalidMessage, Message: "invalid base64 audio chunk"})
		return
	}
	if err := c.srv.reg.BufferAudio(m.SessionID, chunk, m.Sequence); err != nil {
		code := protocol.ErrDeviceError
		if errors.Is(err, registry.ErrBufferFull) {
			code = protocol.ErrBufferFull
		}
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: code, Message: err.Error()})
		if errors.Is(err, registry.ErrBufferFull) {
			c.srv.endSession(c.ctx, m.SessionID, "buffer_full")
		}
	}
}

func (c *conn) handleAudioEnd(m protocol.AudioEnd) {
	if _, err := c.srv.reg.SetSessionState(c.ctx, m.SessionID, session.EventAudioEnd); err != nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: err.Error()})
		return
	}

	audioBytes, err := c.srv.reg.GetAudio(m.SessionID)
	if err != nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: err.Error()})
		c.srv.endSession(c.ctx, m.SessionID, "error")
		return
	}
	if len(audioBytes) == 0 {
		c.srv.endSession(c.ctx, m.SessionID, "empty_audio")
		return
	}

	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		c.transcribeAndRun(m.SessionID, audioBytes)
	}()
}

func (c *conn) transcribeAndRun(sessionID string, audioBytes []byte) {
	if c.srv.sttP == nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrInternal, Message: "speech-to-text is not configured"})
		c.srv.endSession(c.ctx, sessionID, "error")
		return
	}
	wav, err := audio.EncodeWAVPCM16LE(audioBytes, 16000)
	if err != nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrInternal, Message: "failed to frame audio"})
		c.srv.endSession(c.ctx, sessionID, "error")
		return
	}
	result, err := c.srv.sttP.Transcribe(c.ctx, wav, 16000)
	if err != nil {
		if c.srv.metrics != nil {
			c.srv.metrics.ProviderErrors.WithLabelValues("stt", errCode(err)).Inc()
		}
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrInternal, Message: friendlyCollaboratorError(err)})
		c.srv.endSession(c.ctx, sessionID, "transcription_error")
		return
	}
	if strings.TrimSpace(result.Transcript) == "" {
		c.srv.endSession(c.ctx, sessionID, "empty_transcription")
		return
	}
	_ = c.srv.reg.SetTranscript(sessionID, result.Transcript)
	_ = c.send(protocol.Transcription{
		Type:         protocol.TypeTranscription,
		SessionID:    sessionID,
		Text:         result.Transcript,
		SpeakerName:  result.SpeakerName,
		SpeakerAlias: result.SpeakerAlias,
	})
	c.runTurn(sessionID, result.Transcript, result.SpeakerName)
}

// handleText lets a web client skip audio capture entirely and submit
// an already-transcribed utterance; it still rides the same session
// state machine, firing audio_end immediately to enter PROCESSING.
func (c *conn) handleText(m protocol.Text) {
	sessionID := m.SessionID
	if sessionID == "" {
		deviceID := c.currentDeviceID()
		if deviceID == "" {
			_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrUnauthorized, Message: "register before sending text"})
			return
		}
		var err error
		sessionID, err = c.srv.reg.StartSession(deviceID, "")
		if err != nil {
			_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: err.Error()})
			return
		}
		c.srv.noteSessionStarted()
	}
	if _, err := c.srv.reg.SetSessionState(c.ctx, sessionID, session.EventAudioEnd); err != nil {
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrDeviceError, Message: err.Error()})
		return
	}
	_ = c.srv.reg.SetTranscript(sessionID, m.Content)
	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		c.runTurn(sessionID, m.Content, "")
	}()
}

func (c *conn) handleConfigAck(m protocol.ConfigAck) {
	deviceID := c.currentDeviceID()
	if deviceID == "" || c.srv.wakeword == nil {
		return
	}
	c.srv.wakeword.HandleAck(deviceID, m.Success, m.ActiveKeywords, m.FailedKeywords, m.Error)
}

// runTurn drives a turn from a resolved transcript through the Intent
// Router & Agent Loop (C5) and back out as a spoken reply, matching the
// PROCESSING -> SPEAKING -> ENDED tail of the session lifecycle.
func (c *conn) runTurn(sessionID, transcript, speakerName string) {
	sess, _, ok := c.srv.reg.GetSession(sessionID)
	if !ok {
		return
	}
	roomName := ""
	if c.srv.rooms != nil {
		if r, ok := c.srv.rooms.Get(sess.RoomID); ok {
			roomName = r.Name
		}
	}

	rc := router.RequestContext{
		UserID:      sess.DeviceID,
		SessionID:   sessionID,
		RoomID:      sess.RoomID,
		RoomName:    roomName,
		SpeakerName: speakerName,
	}
	if speakerName != "" && c.srv.presence != nil {
		if err := c.srv.presence.MarkVoice(c.ctx, speakerName, sess.RoomID, roomName); err != nil {
			c.logger.Warn("wsmux: voice presence mark failed", zap.Error(err))
		}
	}
	sink := &turnSink{c: c, sessionID: sessionID}

	start := time.Now()
	reply, err := c.srv.routerSvc.Handle(c.ctx, rc, transcript, sink)
	if err != nil {
		if c.srv.metrics != nil {
			c.srv.metrics.ProviderErrors.WithLabelValues("llm", errCode(err)).Inc()
		}
		_ = c.send(protocol.Error{Type: protocol.TypeError, Code: protocol.ErrInternal, Message: friendlyCollaboratorError(err)})
		c.srv.endSession(c.ctx, sessionID, "error")
		return
	}
	if c.srv.metrics != nil {
		c.srv.metrics.ObserveTurnStage("router_handle", time.Since(start))
		c.srv.metrics.ObserveAgentSteps(reply.AgentSteps)
	}

	_ = c.send(protocol.ResponseText{Type: protocol.TypeResponseText, SessionID: sessionID, Text: reply.Text, IsFinal: true})
	if reply.ActionTaken {
		_ = c.send(protocol.Action{Type: protocol.TypeAction, SessionID: sessionID, Intent: string(reply.Role), Success: true})
	}

	if _, err := c.srv.reg.SetSessionState(c.ctx, sessionID, session.EventReplyReady); err != nil {
		c.logger.Warn("wsmux: reply_ready transition failed", zap.Error(err))
	}

	ttsHandled := false
	if c.srv.ttsP != nil {
		ttsStart := time.Now()
		if tr, err := c.srv.ttsP.Synthesize(c.ctx, reply.Text, ""); err == nil && len(tr.Audio) > 0 {
			if c.srv.metrics != nil {
				c.srv.metrics.ObserveFirstAudioLatency(time.Since(ttsStart))
			}
			ttsHandled = c.deliverTTS(sessionID, sess.RoomID, sess.DeviceID, tr.Audio)
		} else if err != nil {
			if c.srv.metrics != nil {
				c.srv.metrics.ProviderErrors.WithLabelValues("tts", errCode(err)).Inc()
			}
			c.logger.Warn("wsmux: tts synthesis failed", zap.Error(err))
		}
	}

	_ = c.send(protocol.Done{Type: protocol.TypeDone, TTSHandled: ttsHandled, AgentSteps: sink.steps})

	if _, err := c.srv.reg.SetSessionState(c.ctx, sessionID, session.EventComplete); err != nil {
		c.logger.Warn("wsmux: complete transition failed", zap.Error(err))
	}
	c.srv.endSession(c.ctx, sessionID, "completed")
}

// deliverTTS routes synthesized audio per the Output Router's decision:
// to a Renfield-attached speaker elsewhere in the room when one is
// selected, otherwise back to the originating input device. Returns true
// only when another device took the audio, so the client knows whether
// playback already happened somewhere.
func (c *conn) deliverTTS(sessionID, roomID, inputDeviceID string, audioBytes []byte) bool {
	if max := c.srv.cfg.TTSAudioMaxBytes; max > 0 && len(audioBytes) > max {
		c.logger.Warn("wsmux: tts audio exceeds payload cap, dropping",
			zap.Int("bytes", len(audioBytes)), zap.Int("cap", max))
		return false
	}
	frame := protocol.TTSAudio{
		Type:      protocol.TypeTTSAudio,
		SessionID: sessionID,
		Audio:     base64.StdEncoding.EncodeToString(audioBytes),
		IsFinal:   true,
	}

	if c.srv.outRouter != nil {
		decision := c.srv.outRouter.Decide(c.ctx, roomID, inputDeviceID)
		if decision.TargetType == output.TargetRenfieldWS && decision.TargetID != inputDeviceID {
			if target, ok := c.srv.connFor(decision.TargetID); ok {
				if target.send(frame) == nil {
					return true
				}
			}
		}
	}

	_ = c.send(frame)
	return false
}

func (c *conn) currentDeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

// SendConfigUpdate satisfies wakeword.Sink.
func (c *conn) SendConfigUpdate(cfg wakeword.Config) error {
	return c.send(protocol.ConfigUpdate{
		Type: protocol.TypeConfigUpdate,
		Config: protocol.RegisterAckConfig{
			WakeWords:  cfg.Keywords,
			Threshold:  cfg.Threshold,
			CooldownMs: cfg.CooldownMs,
		},
		ConfigVersion: cfg.Version,
	})
}

// turnSink adapts one conn to router.FrameSink for the duration of a
// single turn, so the router package never needs to know about sessions
// spanning multiple turns or about the connection at all.
type turnSink struct {
	c         *conn
	sessionID string
	steps     int
}

func (t *turnSink) ToolCall(tool string, args map[string]any) {
	_ = t.c.send(protocol.ToolCall{Type: protocol.TypeToolCall, SessionID: t.sessionID, Tool: tool, Args: args})
}

func (t *turnSink) ToolResult(tool string, res tools.Result) {
	if t.c.srv.metrics != nil {
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		t.c.srv.metrics.ObserveToolCall(tool, outcome)
	}
	_ = t.c.send(protocol.ToolResult{
		Type:      protocol.TypeToolResult,
		SessionID: t.sessionID,
		Tool:      tool,
		Success:   res.Success,
		Message:   res.Message,
		Data:      res.Data,
	})
}

func (t *turnSink) FinalAnswerChunk(delta string) error {
	return t.c.send(protocol.Stream{Type: protocol.TypeStream, SessionID: t.sessionID, Content: delta})
}

// Done records how many agent steps the turn took; the done frame
// itself is sent by runTurn after TTS so the client sees it last, with
// tts_handled resolved.
func (t *turnSink) Done(steps int) {
	t.steps = steps
}

func redactErr(err error) string {
	redacted, _ := policy.RedactAll(err.Error())
	return redacted
}

// circuitOpenMessage is what a collaborator call wrapped in
// internal/reliability.CircuitBreaker surfaces once it trips, given a
// uniform spoken-friendly shape instead of the raw transport error.
const circuitOpenMessage = "that service is temporarily unavailable, please try again shortly"

func friendlyCollaboratorError(err error) string {
	if errors.Is(err, reliability.ErrCircuitOpen) {
		return circuitOpenMessage
	}
	return redactErr(err)
}

// errCode labels a provider error for the provider_errors_total metric
// without leaking the (possibly PII-bearing) error text as a label value.
func errCode(err error) string {
	if errors.Is(err, reliability.ErrCircuitOpen) {
		return "circuit_open"
	}
	return "error"
}
