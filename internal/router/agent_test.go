package router

import (
	"context"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/llm"
	"github.com/renfield-project/renfield/internal/tools"
)

// alwaysToolCallClient never produces a final answer, so the loop can
// only stop by exhausting MaxSteps. calls counts Complete invocations.
type alwaysToolCallClient struct {
	calls int32
}

func (c *alwaysToolCallClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	atomic.AddInt32(&c.calls, 1)
	return llm.Response{ToolCall: &llm.ToolCall{Name: "test.noop", Args: map[string]any{}}}, nil
}

func (c *alwaysToolCallClient) Stream(ctx context.Context, req llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
	return c.Complete(ctx, req)
}

func (c *alwaysToolCallClient) Embeddings(ctx context.Context, prompt string) ([]float32, error) {
	return nil, nil
}

type noopTool struct{}

func (noopTool) Name() string            { return "test.noop" }
func (noopTool) Description() string     { return "does nothing" }
func (noopTool) RateLimitPerMinute() int { return 0 }
func (noopTool) Schema() tools.Schema    { return tools.Schema{} }
func (noopTool) Execute(context.Context, tools.CallContext, map[string]any) (tools.Result, error) {
	return tools.Result{Success: true, ActionTaken: true}, nil
}

type recordingSink struct {
	toolCalls int
	doneSteps int
}

func (s *recordingSink) ToolCall(tool string, args map[string]any) { s.toolCalls++ }
func (s *recordingSink) ToolResult(tool string, res tools.Result)  {}
func (s *recordingSink) FinalAnswerChunk(delta string) error       { return nil }
func (s *recordingSink) Done(steps int)                            { s.doneSteps = steps }

func newTestExecutor() *tools.Executor {
	reg := tools.NewRegistry()
	reg.Register(noopTool{})
	return tools.NewExecutor(reg, 0)
}

// TestAgentLoopTerminatesWithinMaxSteps exercises testable property #8:
// the agent loop terminates within max_steps LLM calls plus one final
// reply, even when the model never volunteers a final answer.
func TestAgentLoopTerminatesWithinMaxSteps(t *testing.T) {
	client := &alwaysToolCallClient{}
	executor := newTestExecutor()
	sink := &recordingSink{}
	cfg := AgentLoopConfig{MaxSteps: 3}

	reply, steps, err := runAgentLoop(context.Background(), client, tools.CallContext{}, executor, []tools.Tool{noopTool{}}, cfg, "system prompt", "do the thing", nil, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("runAgentLoop: %v", err)
	}
	if steps != cfg.MaxSteps {
		t.Fatalf("steps = %d, want %d", steps, cfg.MaxSteps)
	}
	if reply != cannedApology {
		t.Fatalf("reply = %q, want canned apology", reply)
	}
	if int(client.calls) != cfg.MaxSteps {
		t.Fatalf("LLM Complete calls = %d, want %d", client.calls, cfg.MaxSteps)
	}
	if sink.toolCalls != cfg.MaxSteps {
		t.Fatalf("tool calls emitted = %d, want %d", sink.toolCalls, cfg.MaxSteps)
	}
	if sink.doneSteps != cfg.MaxSteps {
		t.Fatalf("done(steps) = %d, want %d", sink.doneSteps, cfg.MaxSteps)
	}
}

// TestAgentLoopStopsOnCancellation covers testable property #9's loop
// side: once the loop's context is cancelled, the next suspension point
// (the top of the for-loop, ahead of the next LLM call) must observe it
// and return the canned apology rather than placing another LLM call.
func TestAgentLoopStopsOnCancellation(t *testing.T) {
	client := &alwaysToolCallClient{}
	executor := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, steps, err := runAgentLoop(ctx, client, tools.CallContext{}, executor, []tools.Tool{noopTool{}}, AgentLoopConfig{MaxSteps: 6}, "system prompt", "do the thing", nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("runAgentLoop: %v", err)
	}
	if reply != cannedApology {
		t.Fatalf("reply = %q, want canned apology", reply)
	}
	if steps != 0 {
		t.Fatalf("steps = %d, want 0 (cancelled before any LLM call)", steps)
	}
	if client.calls != 0 {
		t.Fatalf("LLM Complete calls = %d, want 0", client.calls)
	}
}

// TestAgentLoopReturnsFinalAnswer checks the ordinary happy path: a
// final text answer on the first step stops the loop immediately.
func TestAgentLoopReturnsFinalAnswer(t *testing.T) {
	client := &finalAnswerClient{text: "the kitchen light is on"}
	executor := newTestExecutor()
	sink := &recordingSink{}

	reply, steps, err := runAgentLoop(context.Background(), client, tools.CallContext{}, executor, nil, AgentLoopConfig{MaxSteps: 6}, "system prompt", "turn on the kitchen light", nil, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("runAgentLoop: %v", err)
	}
	if reply != "the kitchen light is on" {
		t.Fatalf("reply = %q", reply)
	}
	if steps != 1 {
		t.Fatalf("steps = %d, want 1", steps)
	}
	if sink.doneSteps != 1 {
		t.Fatalf("done(steps) = %d, want 1", sink.doneSteps)
	}
}

type finalAnswerClient struct {
	text string
}

func (c *finalAnswerClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: c.text}, nil
}

func (c *finalAnswerClient) Stream(ctx context.Context, req llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
	if onDelta != nil {
		_ = onDelta(c.text)
	}
	return c.Complete(ctx, req)
}

func (c *finalAnswerClient) Embeddings(ctx context.Context, prompt string) ([]float32, error) {
	return nil, nil
}
