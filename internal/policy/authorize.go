package policy

import "strings"

// ToolRisk classifies how much real-world effect a tool call has, per
// spec.md §4.6's "user-permission check" step of the Tool Executor's
// contract.
type ToolRisk string

const (
	RiskLow    ToolRisk = "low"
	RiskMedium ToolRisk = "medium"
	RiskHigh   ToolRisk = "high"
)

// readOnlyTools never mutate device or room state; they only look
// something up, so they're safe for any caller, identified or not.
var readOnlyTools = map[string]bool{
	"internal.search_knowledge_base": true,
	"internal.user_location":         true,
	"internal.all_presence":          true,
	"internal.resolve_room_player":   true,
}

// actuatingTools dispatch a real command to a physical speaker or media
// player — the canonical example being internal.play_in_room's busy/force
// semantics (spec.md §4.6, scenario S4).
var actuatingTools = map[string]bool{
	"internal.play_in_room":  true,
	"internal.media_control": true,
}

// ClassifyTool returns the risk tier for a tool name. Remote tools (home
// automation services, document stores, media providers reached through
// internal/tools/mcphost) aren't known ahead of time, so anything that
// isn't one of the named internal read-only or actuating tools defaults
// to medium: it may
// actuate something in the world even though this package can't name it.
func ClassifyTool(toolName string) ToolRisk {
	if readOnlyTools[toolName] {
		return RiskLow
	}
	if actuatingTools[toolName] {
		return RiskHigh
	}
	return RiskMedium
}

// ToolAuthorizer is the default permission policy wired into
// internal/tools.Executor. It has no notion of per-user roles (spec.md
// names no role/ACL model) — the check it enforces is narrower: a tool
// that actuates a device in the physical world requires a caller that
// came through a voice- or chat-authenticated session (a non-empty
// UserID), matching the presence service's own voice-auth precondition
// (spec.md §4.11). Read-only tools are always allowed.
type ToolAuthorizer struct {
	strict bool
}

// NewToolAuthorizer builds the default authorizer. When strict is false,
// medium-risk tools (unclassified remote tools) are allowed for any
// caller; only high-risk internal actuation requires identification.
func NewToolAuthorizer(strict bool) *ToolAuthorizer {
	return &ToolAuthorizer{strict: strict}
}

// Allow implements tools.PermissionChecker.
func (a *ToolAuthorizer) Allow(userID, toolName string) bool {
	switch ClassifyTool(toolName) {
	case RiskLow:
		return true
	case RiskHigh:
		return strings.TrimSpace(userID) != ""
	default:
		if a.strict {
			return strings.TrimSpace(userID) != ""
		}
		return true
	}
}
