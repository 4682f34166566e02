// Package router implements the Intent Router & Agent Loop (C5): given a
// text utterance, room/speaker context, and bounded conversation history,
// it classifies the utterance into a role, dispatches to a conversational
// reply, a knowledge-grounded reply, or a bounded tool-use agent loop, and
// returns a final natural-language reply plus any actions taken along the
// way.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/llm"
	"github.com/renfield-project/renfield/internal/memory"
	"github.com/renfield-project/renfield/internal/policy"
	"github.com/renfield-project/renfield/internal/tools"
)

// RequestContext carries everything the router needs about the caller
// that isn't part of the utterance text itself.
type RequestContext struct {
	UserID      string
	SessionID   string
	RoomID      string
	RoomName    string
	SpeakerName string
}

// Reply is the router's answer: final text plus bookkeeping the caller
// (the wsmux session) uses to finish the turn.
type Reply struct {
	Text       string
	Role       Role
	AgentSteps int
	ActionTaken bool
}

// Router is C5. Construct one per process; it holds no per-call state.
type Router struct {
	llmClient llm.Client
	registry  *tools.Registry
	executor  *tools.Executor
	history   memory.Store
	retriever tools.Retriever
	roles     map[Role]RoleConfig
	agentCfg  AgentLoopConfig
	agentEnabled bool
	legacy           *legacyRouter
	legacyClassifier LegacyIntentClassifier
	legacyRecovery   HomeAutomationRecovery
	memService       MemoryExtractor
	factRetriever    FactRetriever
	logger    *zap.Logger

	turnMu        sync.Mutex
	lastUtterance map[string]string          // sessionID -> previous utterance, for follow-up detection
	lastContext   map[string]string          // sessionID -> prior turn's retrieval context block
}

// Option configures a Router at construction time.
type Option func(*Router)

func WithLogger(l *zap.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithRetriever wires the Retrieval Engine (C10) into the knowledge-role
// dispatch path. Without one, the knowledge role always falls back to
// plain conversation.
func WithRetriever(ret tools.Retriever) Option {
	return func(r *Router) { r.retriever = ret }
}

// WithLegacyIntents wires the Stage B' ranked-intent fallback path,
// taken only when agentEnabled is false. recovery may be nil to disable
// the home-automation keyword recovery path.
func WithLegacyIntents(classifier LegacyIntentClassifier, recovery HomeAutomationRecovery) Option {
	return func(r *Router) { r.legacyClassifier, r.legacyRecovery = classifier, recovery }
}

// MemoryExtractor is the narrow slice of internal/memory.Service this
// package depends on, so router never imports memory's LLM-extractor
// wiring directly.
type MemoryExtractor interface {
	ExtractAsync(userID, sessionID, userText, assistantText string)
}

// WithMemoryService wires the Memory Service's fire-and-forget fact
// extraction (spec.md §4.9) into every completed turn. Without one, no
// durable facts are ever extracted.
func WithMemoryService(m MemoryExtractor) Option {
	return func(r *Router) { r.memService = m }
}

// FactRetriever is the read side of internal/memory's durable facts,
// injected into system prompts as a bounded section per spec.md §4.9.
type FactRetriever interface {
	Retrieve(ctx context.Context, userID, query string, limit int) ([]memory.Fact, error)
}

// WithFactRetriever wires long-term memory recall into every dispatch
// path's system prompt. Without one, no facts section is ever injected.
func WithFactRetriever(f FactRetriever) Option {
	return func(r *Router) { r.factRetriever = f }
}

// factsSection renders up to 5 retrieved facts as a bounded prompt
// section, or "" if none are found or no retriever is wired.
func (r *Router) factsSection(ctx context.Context, userID, query string) string {
	if r.factRetriever == nil || userID == "" {
		return ""
	}
	facts, err := r.factRetriever.Retrieve(ctx, userID, query, 5)
	if err != nil || len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nThings you remember about this user:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- (%s) %s\n", f.Category, f.Content)
	}
	return b.String()
}

func New(client llm.Client, registry *tools.Registry, executor *tools.Executor, history memory.Store, agentEnabled bool, agentCfg AgentLoopConfig, opts ...Option) *Router {
	r := &Router{
		llmClient:     client,
		registry:      registry,
		executor:      executor,
		history:       history,
		roles:         defaultRoleTable(),
		agentCfg:      agentCfg,
		agentEnabled:  agentEnabled,
		logger:        zap.NewNop(),
		lastUtterance: make(map[string]string),
		lastContext:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.legacyClassifier != nil {
		r.legacy = newLegacyRouter(r.legacyClassifier, client).withRecovery(r.legacyRecovery)
	}
	return r
}

// Handle runs the full C5 pipeline for one utterance and returns the
// final reply. sink may be nil (e.g. for the legacy path, or tests that
// don't care about streamed frames).
func (r *Router) Handle(ctx context.Context, rc RequestContext, utterance string, sink FrameSink) (Reply, error) {
	history, err := r.loadHistory(ctx, rc.SessionID)
	if err != nil {
		r.logger.Warn("router: history load failed, continuing without it", zap.Error(err))
	}

	if !r.agentEnabled && r.legacy != nil {
		text, actionTaken, err := r.legacy.run(ctx, r.executor, rc, utterance, history)
		if err != nil {
			return Reply{}, err
		}
		r.recordTurn(ctx, rc, utterance, text, nil)
		return Reply{Text: text, Role: RoleGeneral, ActionTaken: actionTaken}, nil
	}

	role, err := r.classify(ctx, utterance, history)
	if err != nil {
		r.logger.Warn("router: role classification failed, defaulting to general", zap.Error(err))
		role = RoleGeneral
	}
	cfg, ok := r.roles[role]
	if !ok {
		cfg = r.roles[RoleGeneral]
		role = RoleGeneral
	}

	switch role {
	case RoleConversation:
		text, err := r.dispatchConversation(ctx, cfg, rc, utterance, history, sink)
		if err != nil {
			return Reply{}, err
		}
		r.recordTurn(ctx, rc, utterance, text, nil)
		return Reply{Text: text, Role: role}, nil

	case RoleKnowledge:
		text, err := r.dispatchKnowledge(ctx, cfg, rc, utterance, history, sink)
		if err != nil {
			return Reply{}, err
		}
		r.recordTurn(ctx, rc, utterance, text, nil)
		return Reply{Text: text, Role: role}, nil

	default:
		call := tools.CallContext{UserID: rc.UserID, SessionID: rc.SessionID, RoomID: rc.RoomID}
		catalog := filterToolsForRole(r.registry, cfg)
		system := roleSystemPrompt(cfg, rc) + r.factsSection(ctx, rc.UserID, utterance)
		text, steps, err := runAgentLoop(ctx, r.llmClient, call, r.executor, catalog, r.agentCfg, system, utterance, history, sink, r.logger)
		if err != nil {
			return Reply{}, err
		}
		r.recordTurn(ctx, rc, utterance, text, nil)
		return Reply{Text: text, Role: role, AgentSteps: steps, ActionTaken: steps > 0 && text != cannedApology}, nil
	}
}

// classify runs Stage A: a short JSON-mode LLM call mapping the utterance
// onto the closed role set.
func (r *Router) classify(ctx context.Context, utterance string, history []llm.Message) (Role, error) {
	var names []string
	for _, role := range allRoles {
		names = append(names, string(role))
	}
	prompt := fmt.Sprintf(
		"Classify the user's request into exactly one of these roles: %s. "+
			"Reply JSON only: {\"role\":\"<one of the above>\"}.",
		strings.Join(names, ", "),
	)
	resp, err := r.llmClient.Complete(ctx, llm.Request{
		JSONMode: true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: utterance},
		},
	})
	if err != nil {
		return "", err
	}

	var parsed struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return "", fmt.Errorf("router: classify: unparseable response %q: %w", resp.Text, err)
	}
	role := Role(strings.TrimSpace(parsed.Role))
	for _, candidate := range allRoles {
		if candidate == role {
			return role, nil
		}
	}
	return "", fmt.Errorf("router: classify: unknown role %q", parsed.Role)
}

func (r *Router) dispatchConversation(ctx context.Context, cfg RoleConfig, rc RequestContext, utterance string, history []llm.Message, sink FrameSink) (string, error) {
	systemPrompt := cfg.SystemPrompt + r.factsSection(ctx, rc.UserID, utterance)
	messages := append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})

	var onDelta llm.DeltaHandler
	if sink != nil {
		onDelta = sink.FinalAnswerChunk
	}
	resp, err := r.llmClient.Stream(ctx, llm.Request{Messages: messages}, onDelta)
	if err != nil {
		return "", err
	}
	if sink != nil {
		sink.Done(0)
	}
	return strings.TrimSpace(resp.Text), nil
}

// dispatchKnowledge implements the `knowledge` role: retrieve context,
// then fall back to plain conversation on no hits, matching spec.md
// §4.5's "if retrieval returns no hits, fall back to conversation".
func (r *Router) dispatchKnowledge(ctx context.Context, cfg RoleConfig, rc RequestContext, utterance string, history []llm.Message, sink FrameSink) (string, error) {
	if r.retriever == nil {
		return r.dispatchConversation(ctx, r.roles[RoleConversation], rc, utterance, history, sink)
	}

	// A follow-up to the prior utterance reuses its retrieval context
	// instead of searching again, keeping "what about the second one?"
	// grounded in the same passages the first answer drew on.
	contextText := ""
	if r.isFollowUp(rc.SessionID, utterance) {
		contextText = r.cachedContext(rc.SessionID)
	}
	if contextText == "" {
		chunks, err := r.retriever.Search(ctx, "", utterance, 5)
		if err != nil {
			r.logger.Warn("router: retrieval failed, falling back to conversation", zap.Error(err))
			return r.dispatchConversation(ctx, r.roles[RoleConversation], rc, utterance, history, sink)
		}
		if len(chunks) == 0 {
			return r.dispatchConversation(ctx, r.roles[RoleConversation], rc, utterance, history, sink)
		}
		// Quoted context block with source annotations, so the model can
		// cite the filename/page/section a passage came from.
		var contextBlock strings.Builder
		for _, c := range chunks {
			fmt.Fprintf(&contextBlock, "[%s]\n", c.Citation())
			for _, line := range strings.Split(strings.TrimRight(c.Content, "\n"), "\n") {
				fmt.Fprintf(&contextBlock, "> %s\n", line)
			}
			contextBlock.WriteString("\n")
		}
		contextText = contextBlock.String()
		r.storeContext(rc.SessionID, contextText)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: cfg.SystemPrompt + "\n\nContext:\n" + contextText + r.factsSection(ctx, rc.UserID, utterance)},
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})

	var onDelta llm.DeltaHandler
	if sink != nil {
		onDelta = sink.FinalAnswerChunk
	}
	resp, err := r.llmClient.Stream(ctx, llm.Request{Messages: messages}, onDelta)
	if err != nil {
		return "", err
	}
	if sink != nil {
		sink.Done(0)
	}
	return strings.TrimSpace(resp.Text), nil
}

func roleSystemPrompt(cfg RoleConfig, rc RequestContext) string {
	prompt := cfg.SystemPrompt
	if rc.RoomName != "" {
		prompt += fmt.Sprintf(" The user is currently in the %s.", rc.RoomName)
	}
	if rc.SpeakerName != "" {
		prompt += fmt.Sprintf(" They are identified as %s.", rc.SpeakerName)
	}
	return prompt
}

func (r *Router) loadHistory(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if r.history == nil || sessionID == "" {
		return nil, nil
	}
	msgs, err := r.history.Load(ctx, sessionID, 20)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		switch m.Role {
		case memory.RoleAssistant:
			role = llm.RoleAssistant
		case memory.RoleSystem:
			role = llm.RoleSystem
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out, nil
}

// recordTurn persists the exchange and, when actionSummary is non-empty,
// prepends it to the assistant turn behind a machine-readable marker so
// later turns can resolve references like "the last one". This is the
// conversation-history enrichment spec.md §4.5 requires.
func (r *Router) recordTurn(ctx context.Context, rc RequestContext, utterance, reply string, actionSummary map[string]any) {
	if r.history == nil || rc.SessionID == "" {
		return
	}
	redactedReply, _ := policy.RedactAll(reply)

	saveCtx, cancel := context.WithTimeout(detach(ctx), 5*time.Second)
	defer cancel()
	if err := r.history.Save(saveCtx, rc.SessionID, memory.RoleUser, utterance, nil); err != nil {
		r.logger.Warn("router: save user turn failed", zap.Error(err))
	}

	assistantContent := redactedReply
	var meta map[string]any
	if len(actionSummary) > 0 {
		meta = map[string]any{"__action_summary": actionSummary}
		if encoded, err := json.Marshal(actionSummary); err == nil {
			assistantContent = redactedReply + "\n<!-- action_summary: " + string(encoded) + " -->"
		}
	}
	if err := r.history.Save(saveCtx, rc.SessionID, memory.RoleAssistant, assistantContent, meta); err != nil {
		r.logger.Warn("router: save assistant turn failed", zap.Error(err))
	}

	if r.memService != nil && rc.UserID != "" {
		r.memService.ExtractAsync(rc.UserID, rc.SessionID, utterance, redactedReply)
	}
}

// detach strips cancellation from a request context for background
// persistence, preserving values, matching the fire-and-forget pattern
// internal/memory.Service.ExtractAsync already uses for the same reason.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// isFollowUp implements spec.md §4.5's lightweight follow-up heuristic: a
// high lexical similarity to the immediately prior utterance, or an
// utterance opening with one of the referential lead phrases, suggests the
// user is continuing the same thread rather than starting a new one.
func (r *Router) isFollowUp(sessionID, utterance string) bool {
	r.turnMu.Lock()
	defer r.turnMu.Unlock()
	prev, ok := r.lastUtterance[sessionID]
	r.lastUtterance[sessionID] = utterance
	if !ok || prev == "" {
		return false
	}
	return looksLikeFollowUp(prev, utterance)
}

func (r *Router) storeContext(sessionID, contextText string) {
	r.turnMu.Lock()
	defer r.turnMu.Unlock()
	r.lastContext[sessionID] = contextText
}

func (r *Router) cachedContext(sessionID string) string {
	r.turnMu.Lock()
	defer r.turnMu.Unlock()
	return r.lastContext[sessionID]
}
