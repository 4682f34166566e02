// Package llm defines the language-model collaborator used by the
// Intent Router & Agent Loop (C5): role classification, streamed
// conversational replies, and the agent loop's tool-call/final-answer
// decisions all go through the same Client.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role    Role
	Content string
}

// ToolSchema describes one callable tool for the model's function-calling surface.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
}

type ToolCall struct {
	Name string
	Args map[string]any
}

type Request struct {
	Messages  []Message
	Tools     []ToolSchema
	JSONMode  bool
	MaxTokens int
}

// Response is either a ToolCall or a final text answer, never both.
type Response struct {
	Text     string
	ToolCall *ToolCall
}

// DeltaHandler receives streamed text fragments, adapted from the
// teacher's openclaw.DeltaHandler.
type DeltaHandler func(delta string) error

// Client is the normalized surface over whichever concrete backend is
// configured (local HTTP-compatible server, or the mock).
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)

	// Embeddings turns prompt into a dense vector for the Retrieval
	// Engine's (C10) semantic-similarity branch.
	Embeddings(ctx context.Context, prompt string) ([]float32, error)
}
