package router

// Role is one of the fixed classifier targets from spec.md §4.5. The set
// is closed and roles are read-only after startup: Stage A always maps
// an utterance onto one of these names, never a freeform string.
type Role string

const (
	RoleConversation Role = "conversation"
	RoleKnowledge    Role = "knowledge"
	RoleSmartHome    Role = "smart_home"
	RoleDocuments    Role = "documents"
	RoleMedia        Role = "media"
	RoleResearch     Role = "research"
	RoleWorkflow     Role = "workflow"
	RoleGeneral      Role = "general"
)

// allRoles is the closed set offered to the classifier, in prompt order.
var allRoles = []Role{
	RoleConversation,
	RoleKnowledge,
	RoleSmartHome,
	RoleDocuments,
	RoleMedia,
	RoleResearch,
	RoleWorkflow,
	RoleGeneral,
}

// RoleConfig declares one role's tool surface and voice, per spec.md
// §4.5(i)-(iii). ToolServers whitelists MCP server names (matching
// mcphost.ServerConfig.Name); InternalTools whitelists internal/tools
// registry entries by name. A nil/empty whitelist on either means "no
// tools of that kind" for this role, not "all tools".
type RoleConfig struct {
	Role           Role
	ToolServers    []string
	InternalTools  []string
	SystemPrompt   string
}

// defaultRoleTable is the static role configuration. It is read once at
// construction and never mutated, matching "roles are read-only after
// startup".
func defaultRoleTable() map[Role]RoleConfig {
	table := map[Role]RoleConfig{
		RoleConversation: {
			Role:         RoleConversation,
			SystemPrompt: "You are a helpful voice assistant having a casual conversation. Answer directly and briefly, the way you'd speak aloud. You have no tools in this mode.",
		},
		RoleKnowledge: {
			Role:         RoleKnowledge,
			SystemPrompt: "Answer the user's question using only the retrieved context you are given below. If the context doesn't cover it, say so plainly instead of guessing.",
		},
		RoleSmartHome: {
			Role:          RoleSmartHome,
			InternalTools: []string{"internal.play_in_room", "internal.media_control", "internal.resolve_room_player"},
			ToolServers:   []string{"home_assistant"},
			SystemPrompt:  "You control smart-home devices and media playback on behalf of the user. Prefer the most specific tool for the request. Never claim an action succeeded unless the tool result says so.",
		},
		RoleDocuments: {
			Role:          RoleDocuments,
			InternalTools: []string{"internal.search_knowledge_base"},
			SystemPrompt:  "Answer questions about the user's uploaded documents. Search the knowledge base before answering and cite what you found.",
		},
		RoleMedia: {
			Role:          RoleMedia,
			InternalTools: []string{"internal.play_in_room", "internal.media_control", "internal.resolve_room_player"},
			SystemPrompt:  "You manage music and media playback across rooms. Resolve the target room before playing or controlling anything.",
		},
		RoleResearch: {
			Role:         RoleResearch,
			ToolServers:  []string{"web_search"},
			SystemPrompt: "You research open questions using the tools available and summarize findings concisely.",
		},
		RoleWorkflow: {
			Role:         RoleWorkflow,
			ToolServers:  []string{"workflow"},
			SystemPrompt: "You carry out multi-step tasks on the user's behalf using the workflow tools available, confirming each step's result before moving to the next.",
		},
		RoleGeneral: {
			Role:          RoleGeneral,
			InternalTools: []string{"internal.resolve_room_player", "internal.user_location", "internal.all_presence"},
			SystemPrompt:  "You are a general-purpose voice assistant. Use a tool only when the request clearly calls for an action; otherwise just answer.",
		},
	}
	return table
}
