package tools

import (
	"context"
	"fmt"
	"strings"
)

// RetrievedChunk is one hit internal/retrieval.Engine returns, formatted
// enough for the tool layer to hand straight back to the agent loop.
// Source is the chunk's stable id; the human-facing annotation comes
// from Citation.
type RetrievedChunk struct {
	Source       string
	Content      string
	Score        float64
	Filename     string
	PageNumber   int
	SectionTitle string
}

// Citation renders the hit's source annotation (filename, page,
// section) for context blocks and tool results, falling back to the
// raw chunk id when the document carries no filename.
func (c RetrievedChunk) Citation() string {
	parts := make([]string, 0, 3)
	if c.Filename != "" {
		parts = append(parts, c.Filename)
	}
	if c.PageNumber > 0 {
		parts = append(parts, fmt.Sprintf("p.%d", c.PageNumber))
	}
	if c.SectionTitle != "" {
		parts = append(parts, "§"+c.SectionTitle)
	}
	if len(parts) == 0 {
		return c.Source
	}
	return strings.Join(parts, ", ")
}

// Retriever is the minimal surface internal/retrieval.Engine exposes to
// the tool layer, kept local to avoid internal/tools importing
// internal/retrieval directly.
type Retriever interface {
	Search(ctx context.Context, knowledgeBaseID, query string, k int) ([]RetrievedChunk, error)
}

type SearchKnowledgeBaseTool struct {
	retriever Retriever
	defaultK  int
}

func NewSearchKnowledgeBaseTool(retriever Retriever, defaultK int) *SearchKnowledgeBaseTool {
	if defaultK <= 0 {
		defaultK = 5
	}
	return &SearchKnowledgeBaseTool{retriever: retriever, defaultK: defaultK}
}

func (t *SearchKnowledgeBaseTool) Name() string            { return "internal.search_knowledge_base" }
func (t *SearchKnowledgeBaseTool) Description() string     { return "Search the configured knowledge base for relevant passages." }
func (t *SearchKnowledgeBaseTool) RateLimitPerMinute() int { return 0 }

func (t *SearchKnowledgeBaseTool) Schema() Schema {
	return Schema{
		"query":             {Type: ParamString, Required: true},
		"knowledge_base_id": {Type: ParamString, Required: false},
	}
}

func (t *SearchKnowledgeBaseTool) Execute(ctx context.Context, call CallContext, args map[string]any) (Result, error) {
	query, _ := args["query"].(string)
	kbID, _ := args["knowledge_base_id"].(string)

	hits, err := t.retriever.Search(ctx, kbID, query, t.defaultK)
	if err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "retrieval_error"}, nil
	}
	if len(hits) == 0 {
		return Result{Success: true, Message: "no relevant passages found", EmptyResult: true}, nil
	}

	rows := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		rows = append(rows, map[string]any{"source": h.Citation(), "content": h.Content, "score": h.Score})
	}
	return Result{Success: true, Message: "found relevant passages", Data: map[string]any{"chunks": rows}}, nil
}
