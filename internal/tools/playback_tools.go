package tools

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/renfield-project/renfield/internal/hacontroller"
	"github.com/renfield-project/renfield/internal/output"
	"github.com/renfield-project/renfield/internal/room"
)

// RenfieldPlayer delivers a playback URL directly to a Renfield-attached
// device over its websocket connection, the TargetRenfieldWS half of the
// Output Router's decision space. Wired in by internal/wsmux; nil means
// the tool only supports HA-entity targets.
type RenfieldPlayer interface {
	PlayURL(deviceID, mediaURL string) error
}

// ctxSleep blocks for d or until ctx is cancelled, whichever comes first.
func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func transcodeURL(raw, extraQuery string) string {
	if extraQuery == "" {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + extraQuery
}

func isStaticURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Query().Get("static") == "true"
}

func isPlayingState(state string) bool {
	switch state {
	case "playing", "buffering":
		return true
	default:
		return false
	}
}

func isSettledState(state string) bool {
	switch state {
	case "playing", "buffering", "paused":
		return true
	default:
		return false
	}
}

// PlayInRoomTool implements spec.md §4.6's canonical non-trivial internal
// tool: resolve room → pick output device → busy check → dispatch → grace
// period → poll → optional transcode retry → optional queue enqueue.
type PlayInRoomTool struct {
	rooms  *room.Service
	router *output.Router
	ha     hacontroller.Client
	player RenfieldPlayer

	gracePeriod    time.Duration
	transcodeWait  time.Duration
	transcodeParam string
}

func NewPlayInRoomTool(rooms *room.Service, router *output.Router, ha hacontroller.Client, player RenfieldPlayer, gracePeriod, transcodeWait time.Duration, transcodeParam string) *PlayInRoomTool {
	if transcodeParam == "" {
		transcodeParam = "transcode=true"
	}
	return &PlayInRoomTool{
		rooms:          rooms,
		router:         router,
		ha:             ha,
		player:         player,
		gracePeriod:    gracePeriod,
		transcodeWait:  transcodeWait,
		transcodeParam: transcodeParam,
	}
}

func (t *PlayInRoomTool) Name() string            { return "internal.play_in_room" }
func (t *PlayInRoomTool) Description() string     { return "Play a media URL on the best available speaker in a room." }
func (t *PlayInRoomTool) RateLimitPerMinute() int { return 0 }

func (t *PlayInRoomTool) Schema() Schema {
	return Schema{
		"media_url": {Type: ParamString, Required: true},
		"room_name": {Type: ParamString, Required: true},
		"force":     {Type: ParamBool, Required: false},
		"queue":     {Type: ParamArray, Required: false},
	}
}

func (t *PlayInRoomTool) Execute(ctx context.Context, call CallContext, args map[string]any) (Result, error) {
	mediaURL, _ := args["media_url"].(string)
	roomName, _ := args["room_name"].(string)
	force, _ := args["force"].(bool)

	r, ok := t.rooms.Resolve(roomName)
	if !ok {
		return Result{Success: false, Message: "no room matches " + roomName, ErrorCode: "room_not_found", EmptyResult: true}, nil
	}

	decision := t.router.Decide(ctx, r.ID, "")
	if decision.FallbackToInput {
		return Result{Success: false, Message: "no playback device available in " + r.Name, ErrorCode: decision.Reason}, nil
	}

	switch decision.TargetType {
	case output.TargetHAEntity:
		return t.playOnHAEntity(ctx, decision.TargetID, mediaURL, force, args)
	case output.TargetRenfieldWS:
		if t.player == nil {
			return Result{Success: false, Message: "device playback path not wired", ErrorCode: "unsupported_target"}, nil
		}
		if err := t.player.PlayURL(decision.TargetID, mediaURL); err != nil {
			return Result{Success: false, Message: err.Error(), ErrorCode: "playback_failed"}, nil
		}
		return Result{Success: true, Message: "playing on " + decision.TargetID, ActionTaken: true}, nil
	default:
		return Result{Success: false, Message: "playback target has no supported delivery path", ErrorCode: "unsupported_target"}, nil
	}
}

func (t *PlayInRoomTool) playOnHAEntity(ctx context.Context, entityID, mediaURL string, force bool, args map[string]any) (Result, error) {
	current, err := t.ha.GetState(ctx, entityID)
	if err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "controller_error"}, nil
	}
	if isPlayingState(current.State) && !force {
		return Result{
			Success:     false,
			Message:     entityID + " is currently busy; ask the user whether to interrupt, then retry with force=true",
			ActionTaken: false,
			Data:        map[string]any{"status": "busy", "entity_id": entityID},
		}, nil
	}

	if _, err := t.ha.CallService(ctx, "media_player", "play_media", entityID, map[string]any{"media_content_id": mediaURL, "media_content_type": "music"}); err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "controller_error"}, nil
	}

	if err := ctxSleep(ctx, t.gracePeriod); err != nil {
		return Result{Success: false, Message: "cancelled", ErrorCode: "cancelled"}, nil
	}

	polled, err := t.ha.GetState(ctx, entityID)
	if err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "controller_error"}, nil
	}

	finalURL := mediaURL
	transcoded := false
	if !isSettledState(polled.State) && isStaticURL(mediaURL) {
		finalURL = transcodeURL(mediaURL, t.transcodeParam)
		transcoded = true
		if _, err := t.ha.CallService(ctx, "media_player", "play_media", entityID, map[string]any{"media_content_id": finalURL, "media_content_type": "music"}); err != nil {
			return Result{Success: false, Message: err.Error(), ErrorCode: "controller_error"}, nil
		}
		if err := ctxSleep(ctx, t.transcodeWait); err != nil {
			return Result{Success: false, Message: "cancelled", ErrorCode: "cancelled"}, nil
		}
		polled, err = t.ha.GetState(ctx, entityID)
		if err != nil {
			return Result{Success: false, Message: err.Error(), ErrorCode: "controller_error"}, nil
		}
	}

	if !isSettledState(polled.State) {
		return Result{Success: false, Message: entityID + " did not start playback", ErrorCode: "playback_failed", Data: map[string]any{"last_state": polled.State}}, nil
	}

	t.enqueue(ctx, entityID, args["queue"], transcoded)

	return Result{
		Success:     true,
		Message:     "now playing in room on " + entityID,
		ActionTaken: true,
		Data:        map[string]any{"entity_id": entityID, "transcoded": transcoded},
	}, nil
}

func (t *PlayInRoomTool) enqueue(ctx context.Context, entityID string, raw any, transcodeTail bool) {
	items, ok := raw.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		trackURL, _ := m["url"].(string)
		if trackURL == "" {
			continue
		}
		if transcodeTail && isStaticURL(trackURL) {
			trackURL = transcodeURL(trackURL, t.transcodeParam)
		}
		title, _ := m["title"].(string)
		thumb, _ := m["thumb"].(string)
		_, _ = t.ha.CallService(ctx, "media_player", "play_media", entityID, map[string]any{
			"media_content_id":   trackURL,
			"media_content_type": "music",
			"enqueue":            "add",
			"title":              title,
			"thumb":              thumb,
		})
	}
}

// MediaControlTool implements stop/pause/resume/next/previous against
// whatever entity the Output Router currently selects for the room.
type MediaControlTool struct {
	rooms  *room.Service
	router *output.Router
	ha     hacontroller.Client
}

func NewMediaControlTool(rooms *room.Service, router *output.Router, ha hacontroller.Client) *MediaControlTool {
	return &MediaControlTool{rooms: rooms, router: router, ha: ha}
}

func (t *MediaControlTool) Name() string            { return "internal.media_control" }
func (t *MediaControlTool) Description() string     { return "Stop, pause, resume, skip, or rewind playback in a room." }
func (t *MediaControlTool) RateLimitPerMinute() int { return 0 }

func (t *MediaControlTool) Schema() Schema {
	return Schema{
		"room_name": {Type: ParamString, Required: true},
		"action":    {Type: ParamString, Required: true, Enum: []string{"stop", "pause", "resume", "next", "previous"}},
	}
}

var mediaControlServices = map[string]string{
	"stop":     "media_stop",
	"pause":    "media_pause",
	"resume":   "media_play",
	"next":     "media_next_track",
	"previous": "media_previous_track",
}

func (t *MediaControlTool) Execute(ctx context.Context, call CallContext, args map[string]any) (Result, error) {
	roomName, _ := args["room_name"].(string)
	action, _ := args["action"].(string)

	r, ok := t.rooms.Resolve(roomName)
	if !ok {
		return Result{Success: false, Message: "no room matches " + roomName, ErrorCode: "room_not_found", EmptyResult: true}, nil
	}

	decision := t.router.Decide(ctx, r.ID, "")
	if decision.TargetType != output.TargetHAEntity {
		return Result{Success: false, Message: "no controllable playback device in " + r.Name, ErrorCode: "no_target"}, nil
	}

	service := mediaControlServices[action]
	if _, err := t.ha.CallService(ctx, "media_player", service, decision.TargetID, nil); err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "controller_error"}, nil
	}

	return Result{Success: true, Message: action + " applied to " + decision.TargetID, ActionTaken: true, Data: map[string]any{"entity_id": decision.TargetID}}, nil
}
