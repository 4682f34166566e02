package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process conversation store for local/dev
// use and for running without a Postgres DSN configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]Message)}
}

func (s *InMemoryStore) Save(_ context.Context, sessionID string, role Role, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, sessionID string, maxMessages int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.sessions[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if maxMessages <= 0 || maxMessages > len(arr) {
		maxMessages = len(arr)
	}
	out := make([]Message, maxMessages)
	copy(out, arr[len(arr)-maxMessages:])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

// InMemoryFactStore is the TTL-free fallback FactStore, used when no
// Postgres DSN is configured. Retrieve ignores the query and returns the
// user's most recent facts first; good enough for local/dev and tests.
type InMemoryFactStore struct {
	mu    sync.RWMutex
	facts map[string][]Fact // userID -> facts
}

func NewInMemoryFactStore() *InMemoryFactStore {
	return &InMemoryFactStore{facts: make(map[string][]Fact)}
}

func (s *InMemoryFactStore) SaveFact(_ context.Context, f Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	s.facts[f.UserID] = append(s.facts[f.UserID], f)
	return nil
}

func (s *InMemoryFactStore) Retrieve(_ context.Context, userID, query string, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.facts[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	// Most-recent-first, unfiltered beyond user binding: a real ranking
	// would score against query, but no embedding/lexical index is wired
	// for facts (spec.md leaves this implicit); recency is the simplest
	// compliant ordering.
	out := make([]Fact, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	_ = query
	return out, nil
}
