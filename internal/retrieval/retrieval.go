// Package retrieval implements the Retrieval Engine (C10): hybrid
// dense-plus-lexical search over document_chunks, fused by Reciprocal
// Rank Fusion and widened with a context window of adjacent chunks,
// grounded on the same pgvector cosine-distance query shape as
// semantic_index.go plus Postgres's own tsvector/ts_rank_cd lexical
// search.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/tools"
)

// Config bounds the hybrid search, mirroring config.Config's
// Retrieval* fields so this package never imports internal/config.
type Config struct {
	TopK           int
	HybridEnabled  bool // lexical branch + fusion on, or dense-only top-k
	CandidateMult  int  // how many more candidates than TopK each branch fetches before fusion
	RRFK           int  // Reciprocal Rank Fusion's smoothing constant
	DenseWeight    float64
	LexicalWeight  float64
	ContextWindow  int // number of adjacent chunks (each side) folded into a hit
	MinSimilarity  float64
}

// Embedder is the minimal surface this package needs from an LLM
// client, kept narrow so tests can substitute a deterministic stub.
type Embedder interface {
	Embeddings(ctx context.Context, prompt string) ([]float32, error)
}

// Engine is C10. One Engine per process; it holds no per-call state.
type Engine struct {
	pool   *pgxpool.Pool
	embed  Embedder
	cfg    Config
	logger *zap.Logger
}

func New(pool *pgxpool.Pool, embed Embedder, cfg Config, logger *zap.Logger) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.CandidateMult <= 0 {
		cfg.CandidateMult = 3
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = 60
	}
	if cfg.DenseWeight <= 0 {
		cfg.DenseWeight = 1.0
	}
	if cfg.LexicalWeight <= 0 {
		cfg.LexicalWeight = 0.8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{pool: pool, embed: embed, cfg: cfg, logger: logger}
}

type scoredChunk struct {
	id              string
	documentID      string
	knowledgeBaseID string
	chunkIndex      int
	content         string
	filename        string
	pageNumber      int
	sectionTitle    string
	denseRank       int // 0 = not present in the dense branch's candidate list
	lexicalRank     int
}

// Search implements tools.Retriever: given an optional knowledge-base
// scope and free-text query, it returns the topK passages ranked by
// Reciprocal Rank Fusion across the dense and lexical branches, each
// widened with its surrounding context window.
func (e *Engine) Search(ctx context.Context, knowledgeBaseID, query string, k int) ([]tools.RetrievedChunk, error) {
	if k <= 0 {
		k = e.cfg.TopK
	}

	// Hybrid mode over-fetches each branch so fusion has candidates to
	// disagree about; dense-only fetches plain top-k (already filtered
	// by MinSimilarity inside the branch).
	candidateN := k
	if e.cfg.HybridEnabled {
		candidateN = k * e.cfg.CandidateMult
	}

	dense, err := e.denseBranch(ctx, knowledgeBaseID, query, candidateN)
	if err != nil {
		e.logger.Warn("retrieval: dense branch failed, continuing lexical-only", zap.Error(err))
		dense = nil
	}
	var lexical []scoredChunk
	if e.cfg.HybridEnabled {
		lexical, err = e.lexicalBranch(ctx, knowledgeBaseID, query, candidateN)
		if err != nil {
			e.logger.Warn("retrieval: lexical branch failed, continuing dense-only", zap.Error(err))
			lexical = nil
		}
	}
	if len(dense) == 0 && len(lexical) == 0 {
		return nil, nil
	}

	fused := e.fuse(dense, lexical)
	if len(fused) > k {
		fused = fused[:k]
	}

	return e.expandContext(ctx, fused)
}

func (e *Engine) denseBranch(ctx context.Context, knowledgeBaseID, query string, n int) ([]scoredChunk, error) {
	vec, err := e.embed.Embeddings(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	queryVec := pgvector.NewVector(vec)

	q := `SELECT c.id, c.document_id, c.knowledge_base_id, c.chunk_index, c.content,
	             COALESCE(d.filename, ''), COALESCE(c.page_number, 0), COALESCE(c.section_title, ''),
	             1 - (c.embedding <=> $1) AS similarity
	      FROM document_chunks c
	      JOIN documents d ON d.id = c.document_id
	      WHERE ($2 = '' OR c.knowledge_base_id = $2) AND c.embedding IS NOT NULL
	      ORDER BY c.embedding <=> $1
	      LIMIT $3`
	rows, err := e.pool.Query(ctx, q, queryVec, knowledgeBaseID, n)
	if err != nil {
		return nil, fmt.Errorf("retrieval: dense query: %w", err)
	}
	defer rows.Close()

	var out []scoredChunk
	rank := 0
	for rows.Next() {
		var c scoredChunk
		var similarity float64
		if err := rows.Scan(&c.id, &c.documentID, &c.knowledgeBaseID, &c.chunkIndex, &c.content,
			&c.filename, &c.pageNumber, &c.sectionTitle, &similarity); err != nil {
			return nil, fmt.Errorf("retrieval: scan dense row: %w", err)
		}
		if similarity < e.cfg.MinSimilarity {
			continue
		}
		rank++
		c.denseRank = rank
		out = append(out, c)
	}
	return out, rows.Err()
}

func (e *Engine) lexicalBranch(ctx context.Context, knowledgeBaseID, query string, n int) ([]scoredChunk, error) {
	q := `SELECT c.id, c.document_id, c.knowledge_base_id, c.chunk_index, c.content,
	             COALESCE(d.filename, ''), COALESCE(c.page_number, 0), COALESCE(c.section_title, ''),
	             ts_rank_cd(c.content_tsv, plainto_tsquery('english', $1)) AS rank
	      FROM document_chunks c
	      JOIN documents d ON d.id = c.document_id
	      WHERE ($2 = '' OR c.knowledge_base_id = $2) AND c.content_tsv @@ plainto_tsquery('english', $1)
	      ORDER BY rank DESC
	      LIMIT $3`
	rows, err := e.pool.Query(ctx, q, query, knowledgeBaseID, n)
	if err != nil {
		return nil, fmt.Errorf("retrieval: lexical query: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (scoredChunk, error) {
		var c scoredChunk
		var rankScore float64
		if err := row.Scan(&c.id, &c.documentID, &c.knowledgeBaseID, &c.chunkIndex, &c.content,
			&c.filename, &c.pageNumber, &c.sectionTitle, &rankScore); err != nil {
			return scoredChunk{}, err
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: scan lexical rows: %w", err)
	}
	for i := range out {
		out[i].lexicalRank = i + 1
	}
	return out, nil
}

// fuse combines dense and lexical candidate lists with weighted
// Reciprocal Rank Fusion: score = denseWeight/(k+denseRank) +
// lexicalWeight/(k+lexicalRank), a chunk absent from a branch
// contributing 0 for that term.
func (e *Engine) fuse(dense, lexical []scoredChunk) []tools.RetrievedChunk {
	byID := make(map[string]*scoredChunk, len(dense)+len(lexical))
	for i := range dense {
		c := dense[i]
		byID[c.id] = &c
	}
	for i := range lexical {
		c := lexical[i]
		if existing, ok := byID[c.id]; ok {
			existing.lexicalRank = c.lexicalRank
			continue
		}
		byID[c.id] = &c
	}

	type ranked struct {
		chunk scoredChunk
		score float64
	}
	all := make([]ranked, 0, len(byID))
	rrfK := float64(e.cfg.RRFK)
	for _, c := range byID {
		var score float64
		if c.denseRank > 0 {
			score += e.cfg.DenseWeight / (rrfK + float64(c.denseRank))
		}
		if c.lexicalRank > 0 {
			score += e.cfg.LexicalWeight / (rrfK + float64(c.lexicalRank))
		}
		all = append(all, ranked{chunk: *c, score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		// Equal fused scores break toward the better dense rank; a chunk
		// the dense branch never saw (rank 0) sorts after any it did.
		di, dj := all[i].chunk.denseRank, all[j].chunk.denseRank
		if di == 0 {
			return false
		}
		if dj == 0 {
			return true
		}
		return di < dj
	})

	out := make([]tools.RetrievedChunk, len(all))
	for i, r := range all {
		out[i] = tools.RetrievedChunk{
			Source:       r.chunk.id,
			Content:      r.chunk.content,
			Score:        r.score,
			Filename:     r.chunk.filename,
			PageNumber:   r.chunk.pageNumber,
			SectionTitle: r.chunk.sectionTitle,
		}
	}
	return out
}

// expandContext widens each fused hit with its ±ContextWindow adjacent
// chunks (by chunk_index within the same document), joining their
// content in order. Each hit's window is joined independently: a chunk
// that falls in the windows of two hits appears in both.
func (e *Engine) expandContext(ctx context.Context, hits []tools.RetrievedChunk) ([]tools.RetrievedChunk, error) {
	if e.cfg.ContextWindow <= 0 || len(hits) == 0 {
		return hits, nil
	}

	out := make([]tools.RetrievedChunk, len(hits))
	for i, h := range hits {
		var documentID string
		var chunkIndex int
		err := e.pool.QueryRow(ctx,
			`SELECT document_id, chunk_index FROM document_chunks WHERE id=$1`, h.Source,
		).Scan(&documentID, &chunkIndex)
		if err != nil {
			out[i] = h
			continue
		}

		rows, err := e.pool.Query(ctx,
			`SELECT content FROM document_chunks
			 WHERE document_id=$1 AND chunk_index BETWEEN $2 AND $3
			 ORDER BY chunk_index`,
			documentID, chunkIndex-e.cfg.ContextWindow, chunkIndex+e.cfg.ContextWindow,
		)
		if err != nil {
			out[i] = h
			continue
		}

		var joined string
		for rows.Next() {
			var content string
			if err := rows.Scan(&content); err != nil {
				continue
			}
			if joined != "" {
				joined += "\n"
			}
			joined += content
		}
		rows.Close()

		widened := h
		if joined != "" {
			widened.Content = joined
		}
		out[i] = widened
	}
	return out, nil
}
