package tools

import (
	"context"

	"github.com/renfield-project/renfield/internal/output"
	"github.com/renfield-project/renfield/internal/room"
)

// ResolveRoomPlayerTool resolves a room name to its current best audio
// playback target, step 1-2 of spec.md §4.6's internal.play_in_room
// algorithm exposed as a standalone tool the agent can call on its own
// (e.g. to check what would play before actually playing something).
type ResolveRoomPlayerTool struct {
	rooms  *room.Service
	router *output.Router
}

func NewResolveRoomPlayerTool(rooms *room.Service, router *output.Router) *ResolveRoomPlayerTool {
	return &ResolveRoomPlayerTool{rooms: rooms, router: router}
}

func (t *ResolveRoomPlayerTool) Name() string            { return "internal.resolve_room_player" }
func (t *ResolveRoomPlayerTool) Description() string     { return "Resolve a room name to its currently available audio playback target." }
func (t *ResolveRoomPlayerTool) RateLimitPerMinute() int { return 0 }

func (t *ResolveRoomPlayerTool) Schema() Schema {
	return Schema{
		"room_name": {Type: ParamString, Required: true},
	}
}

func (t *ResolveRoomPlayerTool) Execute(ctx context.Context, call CallContext, args map[string]any) (Result, error) {
	roomName, _ := args["room_name"].(string)
	r, ok := t.rooms.Resolve(roomName)
	if !ok {
		return Result{Success: false, Message: "no room matches " + roomName, ErrorCode: "room_not_found", EmptyResult: true}, nil
	}

	decision := t.router.Decide(ctx, r.ID, "")
	if decision.FallbackToInput {
		return Result{
			Success:     false,
			Message:     "room " + r.Name + " has no available playback target (" + decision.Reason + ")",
			ActionTaken: false,
			ErrorCode:   decision.Reason,
			Data:        map[string]any{"room_id": r.ID, "reason": decision.Reason},
		}, nil
	}

	return Result{
		Success:     true,
		Message:     "resolved " + r.Name + " to " + decision.TargetID,
		ActionTaken: false,
		Data: map[string]any{
			"room_id":     r.ID,
			"target_type": decision.TargetType,
			"target_id":   decision.TargetID,
		},
	}, nil
}
