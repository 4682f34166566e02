package repository

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
)

// Documents is the write side of the knowledge-base/document/chunk
// tables internal/retrieval.Engine reads from. No HTTP surface exposes
// ingestion (out of scope); this facade is what an offline ingestion
// job or test fixture calls directly.
type Documents struct {
	store *Store
}

func NewDocuments(store *Store) *Documents {
	return &Documents{store: store}
}

func (d *Documents) EnsureKnowledgeBase(ctx context.Context, id, name string) error {
	_, err := d.store.pool.Exec(ctx,
		`INSERT INTO knowledge_bases (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("repository: ensure knowledge base: %w", err)
	}
	return nil
}

func (d *Documents) EnsureDocument(ctx context.Context, id, knowledgeBaseID, title, source string) error {
	_, err := d.store.pool.Exec(ctx,
		`INSERT INTO documents (id, knowledge_base_id, title, source) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, source = EXCLUDED.source`,
		id, knowledgeBaseID, title, source,
	)
	if err != nil {
		return fmt.Errorf("repository: ensure document: %w", err)
	}
	return nil
}

// IndexChunk upserts one pre-embedded passage, matching the
// ON CONFLICT DO UPDATE replace-in-place semantics re-ingestion needs.
func (d *Documents) IndexChunk(ctx context.Context, id, documentID, knowledgeBaseID string, chunkIndex int, content string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := d.store.pool.Exec(ctx,
		`INSERT INTO document_chunks (id, document_id, knowledge_base_id, chunk_index, content, embedding)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET
		    chunk_index = EXCLUDED.chunk_index,
		    content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`,
		id, documentID, knowledgeBaseID, chunkIndex, content, vec,
	)
	if err != nil {
		return fmt.Errorf("repository: index chunk: %w", err)
	}
	return nil
}
