// Package protocol defines the typed WebSocket wire frames exchanged
// between devices (satellites, web clients) and the orchestrator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a websocket frame variant by its "type" field.
type MessageType string

// Inbound (device/client -> server) frame types.
const (
	TypeRegister        MessageType = "register"
	TypeWakewordDetect  MessageType = "wakeword_detected"
	TypeStartSession    MessageType = "start_session"
	TypeAudio           MessageType = "audio"
	TypeAudioEnd        MessageType = "audio_end"
	TypeText            MessageType = "text"
	TypeHeartbeat       MessageType = "heartbeat"
	TypeConfigAck       MessageType = "config_ack"
	TypeUpdateProgress  MessageType = "update_progress"
	TypeUpdateComplete  MessageType = "update_complete"
	TypeUpdateFailed    MessageType = "update_failed"
)

// Outbound (server -> device/client) frame types.
const (
	TypeRegisterAck    MessageType = "register_ack"
	TypeState          MessageType = "state"
	TypeSessionStarted MessageType = "session_started"
	TypeSessionEnd     MessageType = "session_end"
	TypeTranscription  MessageType = "transcription"
	TypeToolCall       MessageType = "tool_call"
	TypeToolResult     MessageType = "tool_result"
	TypeStream         MessageType = "stream"
	TypeResponseText   MessageType = "response_text"
	TypeTTSAudio       MessageType = "tts_audio"
	TypeAction         MessageType = "action"
	TypeDone           MessageType = "done"
	TypeConfigUpdate   MessageType = "config_update"
	TypeHeartbeatAck   MessageType = "heartbeat_ack"
	TypeError          MessageType = "error"
	TypePlayURL        MessageType = "play_url"
)

// Error codes carried in an outbound error frame.
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrUnauthorized   = "UNAUTHORIZED"
	ErrAuthRequired   = "AUTH_REQUIRED"
	ErrRateLimited    = "RATE_LIMITED"
	ErrBufferFull     = "BUFFER_FULL"
	ErrDeviceError    = "DEVICE_ERROR"
	ErrInternal       = "INTERNAL"
)

// ErrUnsupportedType is returned by ParseClientMessage for any frame whose
// type discriminator does not match a known inbound variant; the caller
// routes this to a single INVALID_MESSAGE outbound frame.
var ErrUnsupportedType = errors.New("unsupported message type")

// Envelope is the minimal shape every inbound frame must satisfy.
type Envelope struct {
	Type MessageType `json:"type"`
}

// --- Inbound frames ---

type Capabilities struct {
	HasMicrophone bool `json:"has_microphone,omitempty"`
	HasSpeaker    bool `json:"has_speaker,omitempty"`
	HasDisplay    bool `json:"has_display,omitempty"`
	HasWakeword   bool `json:"has_wakeword,omitempty"`
	HasCamera     bool `json:"has_camera,omitempty"`
}

type Register struct {
	Type            MessageType   `json:"type"`
	DeviceID        string        `json:"device_id"`
	DeviceType      string        `json:"device_type"`
	Room            string        `json:"room"`
	Capabilities    *Capabilities `json:"capabilities,omitempty"`
	DeviceName      string        `json:"device_name,omitempty"`
	IsStationary    bool          `json:"is_stationary,omitempty"`
	Language        string        `json:"language,omitempty"`
	Version         string        `json:"version,omitempty"`
	ProtocolVersion string        `json:"protocol_version,omitempty"`
}

type WakewordDetected struct {
	Type       MessageType `json:"type"`
	Keyword    string      `json:"keyword"`
	Confidence float64     `json:"confidence"`
	SessionID  string      `json:"session_id,omitempty"`
}

type StartSession struct {
	Type MessageType `json:"type"`
}

type Audio struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Chunk     string      `json:"chunk"`
	Sequence  uint64      `json:"sequence"`
}

type AudioEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason,omitempty"`
}

type Text struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id,omitempty"`
	Content          string      `json:"content"`
	UseRAG           bool        `json:"use_rag,omitempty"`
	KnowledgeBaseID  string      `json:"knowledge_base_id,omitempty"`
	AttachmentIDs    []string    `json:"attachment_ids,omitempty"`
}

type Heartbeat struct {
	Type           MessageType    `json:"type"`
	Status         string         `json:"status"`
	UptimeSeconds  int64          `json:"uptime_seconds,omitempty"`
	Metrics        map[string]any `json:"metrics,omitempty"`
	Version        string         `json:"version,omitempty"`
}

type ConfigAck struct {
	Type           MessageType `json:"type"`
	Success        bool        `json:"success"`
	ActiveKeywords []string    `json:"active_keywords"`
	FailedKeywords []string    `json:"failed_keywords,omitempty"`
	Error          string      `json:"error,omitempty"`
}

type UpdateProgress struct {
	Type     MessageType `json:"type"`
	Stage    string      `json:"stage"`
	Progress float64     `json:"progress"`
	Message  string      `json:"message,omitempty"`
}

type UpdateComplete struct {
	Type    MessageType `json:"type"`
	Stage   string      `json:"stage,omitempty"`
	Message string      `json:"message,omitempty"`
}

type UpdateFailed struct {
	Type    MessageType `json:"type"`
	Stage   string      `json:"stage,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// --- Outbound frames ---

type RegisterAckConfig struct {
	WakeWords  []string `json:"wake_words"`
	Threshold  float64  `json:"threshold"`
	CooldownMs int64    `json:"cooldown_ms"`
}

type RegisterAck struct {
	Type            MessageType       `json:"type"`
	Success         bool              `json:"success"`
	DeviceID        string            `json:"device_id"`
	Config          RegisterAckConfig `json:"config"`
	RoomID          string            `json:"room_id"`
	Capabilities    Capabilities      `json:"capabilities"`
	ProtocolVersion string            `json:"protocol_version"`
}

type State struct {
	Type  MessageType `json:"type"`
	State string      `json:"state"`
}

type SessionStarted struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type SessionEnd struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason"`
}

type Transcription struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	Text         string      `json:"text"`
	SpeakerName  string      `json:"speaker_name,omitempty"`
	SpeakerAlias string      `json:"speaker_alias,omitempty"`
}

type ToolCall struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"session_id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
}

type ToolResult struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Tool      string      `json:"tool"`
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      any         `json:"data,omitempty"`
}

type Stream struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Content   string      `json:"content"`
}

type ResponseText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	IsFinal   bool        `json:"is_final"`
}

type TTSAudio struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Audio     string      `json:"audio"`
	IsFinal   bool        `json:"is_final"`
}

type Action struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Intent    string      `json:"intent"`
	Success   bool        `json:"success"`
}

type Done struct {
	Type       MessageType `json:"type"`
	TTSHandled bool        `json:"tts_handled"`
	AgentSteps int         `json:"agent_steps,omitempty"`
	Intent     string      `json:"intent,omitempty"`
}

type ConfigUpdate struct {
	Type          MessageType       `json:"type"`
	Config        RegisterAckConfig `json:"config"`
	ConfigVersion uint64            `json:"config_version"`
}

type HeartbeatAck struct {
	Type MessageType `json:"type"`
}

type Error struct {
	Type    MessageType `json:"type"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// PlayURL instructs a Renfield-attached device to begin playing mediaURL
// on its own speaker, the TargetRenfieldWS half of the Output Router's
// (C7) decision space.
type PlayURL struct {
	Type     MessageType `json:"type"`
	MediaURL string      `json:"media_url"`
}

// clientInbound is the unmarshal superset used to dispatch on Type before
// validating and constructing the concrete, narrower frame value.
type clientInbound struct {
	Type            MessageType    `json:"type"`
	DeviceID        string         `json:"device_id"`
	DeviceType      string         `json:"device_type"`
	Room            string         `json:"room"`
	Capabilities    *Capabilities  `json:"capabilities"`
	DeviceName      string         `json:"device_name"`
	IsStationary    bool           `json:"is_stationary"`
	Language        string         `json:"language"`
	Version         string         `json:"version"`
	ProtocolVersion string         `json:"protocol_version"`
	Keyword         string         `json:"keyword"`
	Confidence      float64        `json:"confidence"`
	SessionID       string         `json:"session_id"`
	Chunk           string         `json:"chunk"`
	Sequence        uint64         `json:"sequence"`
	Reason          string         `json:"reason"`
	Content         string         `json:"content"`
	UseRAG          bool           `json:"use_rag"`
	KnowledgeBaseID string         `json:"knowledge_base_id"`
	AttachmentIDs   []string       `json:"attachment_ids"`
	Status          string         `json:"status"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	Metrics         map[string]any `json:"metrics"`
	Success         bool           `json:"success"`
	ActiveKeywords  []string       `json:"active_keywords"`
	FailedKeywords  []string       `json:"failed_keywords"`
	Error           string         `json:"error"`
	Stage           string         `json:"stage"`
	Progress        float64        `json:"progress"`
	Message         string         `json:"message"`
}

// ParseClientMessage parses a raw inbound frame and dispatches it to a
// concrete, validated type based on its "type" discriminator. An unknown
// type or a type whose required fields are missing yields ErrUnsupportedType
// (unknown type) or a plain error (schema violation); both route to a
// single INVALID_MESSAGE outbound frame at the call site.
func ParseClientMessage(raw []byte) (any, error) {
	var in clientInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch in.Type {
	case TypeRegister:
		if in.DeviceID == "" || in.DeviceType == "" {
			return nil, errors.New("invalid register")
		}
		return Register{
			Type:            TypeRegister,
			DeviceID:        in.DeviceID,
			DeviceType:      in.DeviceType,
			Room:            in.Room,
			Capabilities:    in.Capabilities,
			DeviceName:      in.DeviceName,
			IsStationary:    in.IsStationary,
			Language:        in.Language,
			Version:         in.Version,
			ProtocolVersion: in.ProtocolVersion,
		}, nil
	case TypeWakewordDetect:
		if in.Keyword == "" {
			return nil, errors.New("invalid wakeword_detected")
		}
		return WakewordDetected{
			Type:       TypeWakewordDetect,
			Keyword:    in.Keyword,
			Confidence: in.Confidence,
			SessionID:  in.SessionID,
		}, nil
	case TypeStartSession:
		return StartSession{Type: TypeStartSession}, nil
	case TypeAudio:
		if in.SessionID == "" || in.Chunk == "" {
			return nil, errors.New("invalid audio")
		}
		return Audio{
			Type:      TypeAudio,
			SessionID: in.SessionID,
			Chunk:     in.Chunk,
			Sequence:  in.Sequence,
		}, nil
	case TypeAudioEnd:
		if in.SessionID == "" {
			return nil, errors.New("invalid audio_end")
		}
		return AudioEnd{
			Type:      TypeAudioEnd,
			SessionID: in.SessionID,
			Reason:    in.Reason,
		}, nil
	case TypeText:
		if in.Content == "" {
			return nil, errors.New("invalid text")
		}
		return Text{
			Type:            TypeText,
			SessionID:       in.SessionID,
			Content:         in.Content,
			UseRAG:          in.UseRAG,
			KnowledgeBaseID: in.KnowledgeBaseID,
			AttachmentIDs:   in.AttachmentIDs,
		}, nil
	case TypeHeartbeat:
		if in.Status == "" {
			return nil, errors.New("invalid heartbeat")
		}
		return Heartbeat{
			Type:          TypeHeartbeat,
			Status:        in.Status,
			UptimeSeconds: in.UptimeSeconds,
			Metrics:       in.Metrics,
			Version:       in.Version,
		}, nil
	case TypeConfigAck:
		return ConfigAck{
			Type:           TypeConfigAck,
			Success:        in.Success,
			ActiveKeywords: in.ActiveKeywords,
			FailedKeywords: in.FailedKeywords,
			Error:          in.Error,
		}, nil
	case TypeUpdateProgress:
		return UpdateProgress{
			Type:     TypeUpdateProgress,
			Stage:    in.Stage,
			Progress: in.Progress,
			Message:  in.Message,
		}, nil
	case TypeUpdateComplete:
		return UpdateComplete{
			Type:    TypeUpdateComplete,
			Stage:   in.Stage,
			Message: in.Message,
		}, nil
	case TypeUpdateFailed:
		return UpdateFailed{
			Type:    TypeUpdateFailed,
			Stage:   in.Stage,
			Error:   in.Error,
			Message: in.Message,
		}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
