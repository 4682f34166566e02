package memory

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/llm"
)

// Extractor classifies a user/assistant exchange into zero or more durable
// facts. The concrete implementation asks the LLM collaborator in JSON
// mode; tests substitute a deterministic stub.
type Extractor interface {
	Extract(ctx context.Context, userID, userText, assistantText string) ([]Fact, error)
}

// LLMExtractor asks the configured LLM to pull durable facts ("user's dog
// is named Rex", category "personal") out of one exchange.
type LLMExtractor struct {
	Client llm.Client
}

func (e *LLMExtractor) Extract(ctx context.Context, userID, userText, assistantText string) ([]Fact, error) {
	if e.Client == nil || strings.TrimSpace(userText) == "" {
		return nil, nil
	}
	resp, err := e.Client.Complete(ctx, llm.Request{
		JSONMode: true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Extract durable personal facts (preferences, relationships, routines) from this exchange. Reply JSON: {\"facts\":[{\"category\":\"...\",\"content\":\"...\"}]}. Empty array if nothing durable."},
			{Role: llm.RoleUser, Content: "User: " + userText + "\nAssistant: " + assistantText},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseFactsJSON(userID, resp.Text), nil
}

// Service runs fact extraction asynchronously after each exchange,
// fire-and-forget the same way internal/taskruntime detaches task
// execution: an independent context.WithTimeout, result swallowed and
// logged on error (spec.md §7 "persistence failures ... logged, swallowed").
// Extraction is unconditional per exchange — no throttle — per the Open
// Question decision in DESIGN.md.
type Service struct {
	extractor Extractor
	facts     FactStore
	logger    *zap.Logger
	timeout   time.Duration
}

func NewService(extractor Extractor, facts FactStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{extractor: extractor, facts: facts, logger: logger, timeout: 10 * time.Second}
}

// ExtractAsync detaches a goroutine that extracts and persists facts from
// one exchange. It never blocks the reply path and never panics the
// caller's goroutine.
func (s *Service) ExtractAsync(userID, sessionID, userText, assistantText string) {
	if s == nil || s.extractor == nil || s.facts == nil || strings.TrimSpace(userID) == "" {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("memory extraction panic", zap.Any("recover", r), zap.String("session_id", sessionID))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		facts, err := s.extractor.Extract(ctx, userID, userText, assistantText)
		if err != nil {
			s.logger.Warn("memory extraction failed", zap.Error(err), zap.String("session_id", sessionID))
			return
		}
		for _, f := range facts {
			if f.UserID == "" {
				f.UserID = userID
			}
			if err := s.facts.SaveFact(ctx, f); err != nil {
				s.logger.Warn("memory fact save failed", zap.Error(err), zap.String("session_id", sessionID))
			}
		}
	}()
}

// Retrieve answers the top memories relevant to query for a user, meant to
// be injected into subsequent system prompts as a bounded section.
func (s *Service) Retrieve(ctx context.Context, userID, query string, limit int) ([]Fact, error) {
	if s == nil || s.facts == nil {
		return nil, nil
	}
	return s.facts.Retrieve(ctx, userID, query, limit)
}
