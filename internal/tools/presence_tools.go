package tools

import (
	"context"
	"strconv"
)

// PresenceLocation is one user's current room assignment, as answered by
// internal/presence.Service.
type PresenceLocation struct {
	UserID     string
	RoomID     string
	RoomName   string
	Confidence float64
}

// PresenceQuerier is the minimal surface internal/presence.Service
// exposes to the tool layer, kept local to this package so internal/tools
// does not import internal/presence (wired in at construction time
// instead, avoiding a cycle since presence itself may need tools for
// voice-auth marking hooks in a future revision).
type PresenceQuerier interface {
	Locate(ctx context.Context, username string) (PresenceLocation, bool, error)
	AllPresent(ctx context.Context) ([]PresenceLocation, error)
}

type UserLocationTool struct {
	presence PresenceQuerier
}

func NewUserLocationTool(presence PresenceQuerier) *UserLocationTool {
	return &UserLocationTool{presence: presence}
}

func (t *UserLocationTool) Name() string            { return "internal.user_location" }
func (t *UserLocationTool) Description() string     { return "Find which room a user is currently present in." }
func (t *UserLocationTool) RateLimitPerMinute() int { return 0 }

func (t *UserLocationTool) Schema() Schema {
	return Schema{"username": {Type: ParamString, Required: true}}
}

func (t *UserLocationTool) Execute(ctx context.Context, call CallContext, args map[string]any) (Result, error) {
	username, _ := args["username"].(string)
	loc, ok, err := t.presence.Locate(ctx, username)
	if err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "presence_error"}, nil
	}
	if !ok {
		return Result{Success: false, Message: username + " is not currently present anywhere known", EmptyResult: true}, nil
	}
	return Result{
		Success: true,
		Message: username + " is in " + loc.RoomName,
		Data:    map[string]any{"room_id": loc.RoomID, "room_name": loc.RoomName, "confidence": loc.Confidence},
	}, nil
}

type AllPresenceTool struct {
	presence PresenceQuerier
}

func NewAllPresenceTool(presence PresenceQuerier) *AllPresenceTool {
	return &AllPresenceTool{presence: presence}
}

func (t *AllPresenceTool) Name() string            { return "internal.all_presence" }
func (t *AllPresenceTool) Description() string     { return "List every user currently present and their room." }
func (t *AllPresenceTool) RateLimitPerMinute() int { return 0 }

func (t *AllPresenceTool) Schema() Schema { return Schema{} }

func (t *AllPresenceTool) Execute(ctx context.Context, call CallContext, args map[string]any) (Result, error) {
	all, err := t.presence.AllPresent(ctx)
	if err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "presence_error"}, nil
	}
	if len(all) == 0 {
		return Result{Success: true, Message: "no one is currently present", EmptyResult: true}, nil
	}
	rows := make([]map[string]any, 0, len(all))
	for _, loc := range all {
		rows = append(rows, map[string]any{"user_id": loc.UserID, "room_id": loc.RoomID, "room_name": loc.RoomName, "confidence": loc.Confidence})
	}
	return Result{Success: true, Message: "found " + strconv.Itoa(len(all)) + " present user(s)", Data: map[string]any{"users": rows}}, nil
}
