// Package memory implements the Conversation & Memory Store (C9): durable
// per-session dialogue turns plus an asynchronous, fire-and-forget service
// that extracts long-term user facts from those turns.
package memory

import (
	"context"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn in a conversation, keyed indirectly by the parent
// conversation's session_id.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Metadata  map[string]any
	Timestamp time.Time
}

// Conversation is the parent row created on first save for a session_id.
type Conversation struct {
	ID        string
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists and retrieves conversation turns, per spec.md §4.9: Save
// creates the parent conversation row on first use; Load returns the most
// recent maxMessages messages in chronological (oldest-first) order,
// matching the round-trip law in spec.md §8 (Save(s,user,"hi"),
// Save(s,assistant,"hello"), Load(s,10) == [{user,"hi"},{assistant,"hello"}]).
type Store interface {
	Save(ctx context.Context, sessionID string, role Role, content string, metadata map[string]any) error
	Load(ctx context.Context, sessionID string, maxMessages int) ([]Message, error)
	Close() error
}

// Fact is a durable piece of information extracted from a conversation
// turn, bound to a user and categorized for retrieval/injection into
// future system prompts.
type Fact struct {
	ID        string
	UserID    string
	Category  string
	Content   string
	CreatedAt time.Time
}

// FactStore persists and retrieves extracted long-term facts.
type FactStore interface {
	SaveFact(ctx context.Context, f Fact) error
	Retrieve(ctx context.Context, userID, query string, limit int) ([]Fact, error)
}
