// Package repository is the Postgres-backed persistence layer behind
// the Device Registry (C1), Wake-Word Config Broadcaster (C8), Output
// Router (C7), and Retrieval Engine (C10): rooms, devices, output
// routing, wake-word settings, and the knowledge-base/document/chunk
// tables pgvector and tsvector search run against. Schema is created
// inline with CREATE TABLE IF NOT EXISTS, matching internal/memory's
// initSchema pattern rather than a separate migration framework.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the shared connection pool every repository-backed
// component queries against. One Store is constructed per process and
// handed to the Settings, OutputDevices, Rooms, and Documents facades.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and ensures the full schema exists.
func New(ctx context.Context, databaseURL string, embeddingDim int) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("repository: connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for components (internal/retrieval)
// that need raw query access this facade doesn't cover.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDim int) error {
	if embeddingDim <= 0 {
		embeddingDim = 768
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,

		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			alias TEXT UNIQUE NOT NULL,
			external_area_id TEXT,
			icon TEXT,
			source TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			device_type TEXT NOT NULL,
			device_name TEXT,
			room_id TEXT REFERENCES rooms(id),
			is_stationary BOOLEAN NOT NULL DEFAULT false,
			capabilities JSONB,
			ip_address TEXT,
			last_connected TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`CREATE TABLE IF NOT EXISTS room_output_devices (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL REFERENCES rooms(id),
			output_type TEXT NOT NULL,
			renfield_device_id TEXT,
			ha_entity_id TEXT,
			dlna_renderer_name TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			allow_interruption BOOLEAN NOT NULL DEFAULT false,
			tts_volume DOUBLE PRECISION,
			is_enabled BOOLEAN NOT NULL DEFAULT true,
			device_name TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_room_output_devices_room ON room_output_devices (room_id, priority);`,

		`CREATE TABLE IF NOT EXISTS system_settings (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`CREATE TABLE IF NOT EXISTS knowledge_bases (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id),
			title TEXT NOT NULL,
			file_path TEXT,
			filename TEXT,
			status TEXT NOT NULL DEFAULT 'processing',
			file_hash TEXT,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			source TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id),
			knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id),
			chunk_index INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			page_number INTEGER,
			section_title TEXT,
			embedding vector(%d),
			content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_kb ON document_chunks (knowledge_base_id);`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_tsv ON document_chunks USING GIN (content_tsv);`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING hnsw (embedding vector_cosine_ops);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("repository: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}
