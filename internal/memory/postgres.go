package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversations and messages in PostgreSQL,
// matching the conversations/messages schema in spec.md §6.4. Extracted
// long-term facts are stored by PostgresFactStore, not by this type.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			session_id TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_ts ON messages (conversation_id, timestamp);`,
		`CREATE TABLE IF NOT EXISTS memory_facts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_facts_user_created ON memory_facts (user_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) conversationID(ctx context.Context, sessionID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM conversations WHERE session_id=$1`, sessionID).Scan(&id)
	if err == nil {
		return id, nil
	}
	id = uuid.NewString()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (id, session_id) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		 RETURNING id`,
		id, sessionID)
	if err != nil {
		// Conflict path: another writer created it concurrently; re-read.
		var existing string
		if readErr := s.pool.QueryRow(ctx, `SELECT id FROM conversations WHERE session_id=$1`, sessionID).Scan(&existing); readErr == nil {
			return existing, nil
		}
		return "", fmt.Errorf("ensure conversation: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, role Role, content string, metadata map[string]any) error {
	convID, err := s.conversationID(ctx, sessionID)
	if err != nil {
		return err
	}

	var metaJSON []byte
	if metadata != nil {
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), convID, string(role), content, metaJSON, now,
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE conversations SET updated_at=$1 WHERE id=$2`, now, convID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string, maxMessages int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.role, m.content, m.metadata, m.timestamp
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.session_id = $1
		 ORDER BY m.timestamp DESC
		 LIMIT $2`,
		sessionID, maxMessages,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		var role string
		var metaJSON []byte
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &metaJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = Role(role)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// PostgresFactStore persists long-term user facts extracted by the
// MemoryService.
type PostgresFactStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFactStore(pool *pgxpool.Pool) *PostgresFactStore {
	return &PostgresFactStore{pool: pool}
}

func (s *PostgresFactStore) SaveFact(ctx context.Context, f Fact) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_facts (id, user_id, category, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.UserID, f.Category, f.Content, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save fact: %w", err)
	}
	return nil
}

func (s *PostgresFactStore) Retrieve(ctx context.Context, userID, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, category, content, created_at FROM memory_facts
		 WHERE user_id=$1 AND ($2 = '' OR content ILIKE '%' || $2 || '%')
		 ORDER BY created_at DESC LIMIT $3`,
		userID, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.UserID, &f.Category, &f.Content, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
