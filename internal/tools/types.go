// Package tools implements the Tool Registry & Executor (C6): a uniform
// call surface over in-process tools and remote tool-providing MCP
// servers (internal/tools/mcphost).
package tools

import "context"

// Result is the uniform shape every tool call returns, whether internal
// or remote.
type Result struct {
	Success     bool
	Message     string
	ActionTaken bool
	Data        map[string]any
	EmptyResult bool
	ErrorCode   string
}

// CallContext carries the caller identity and room/session scoping a
// tool's handler may need; it is never part of the tool's declared
// parameter schema.
type CallContext struct {
	UserID    string
	SessionID string
	RoomID    string
}

// ParamType is the JSON-schema-ish type tag used for argument validation.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
	ParamObject ParamType = "object"
	ParamArray  ParamType = "array"
)

// ParamSpec describes one argument the Executor validates before
// dispatch: required/enum/regex/type, per spec.md §4.6.
type ParamSpec struct {
	Type     ParamType
	Required bool
	Enum     []string
	Pattern  string // regex, only applies to ParamString
}

// Schema is a tool's declared parameter set, keyed by argument name.
type Schema map[string]ParamSpec

// Tool is one callable unit, internal (in-process Go function) or a
// proxy for a remote MCP server's advertised tool.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	// RateLimitPerMinute caps calls to this tool; 0 means no per-tool
	// limit beyond whatever the Executor's default is.
	RateLimitPerMinute() int
	Execute(ctx context.Context, call CallContext, args map[string]any) (Result, error)
}
