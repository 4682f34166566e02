package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/llm"
	"github.com/renfield-project/renfield/internal/tools"
)

// FrameSink receives the discrete frames the agent loop streams to a
// device while it works: tool_call, tool_result, final_answer_chunk (via
// onDelta), and done. It is a narrow slice of the websocket session so
// this package never imports internal/protocol or internal/wsmux
// directly.
type FrameSink interface {
	ToolCall(tool string, args map[string]any)
	ToolResult(tool string, res tools.Result)
	FinalAnswerChunk(delta string) error
	Done(steps int)
}

// AgentLoopConfig bounds one invocation of the loop, mirroring
// config.Config's AgentMaxSteps/AgentStepTimeout/AgentLoopTimeout so the
// caller can thread its own config values through without this package
// importing internal/config.
type AgentLoopConfig struct {
	MaxSteps    int
	StepTimeout time.Duration
	LoopTimeout time.Duration
}

// AgentStep is one (tool_call, result) pair appended to history so the
// next LLM call sees what it already tried.
type AgentStep struct {
	Tool   string
	Args   map[string]any
	Result tools.Result
}

const cannedApology = "I wasn't able to finish that within the steps I'm allowed — could you try rephrasing or breaking it into smaller requests?"

// runAgentLoop implements spec.md §4.5's bounded tool-use REPL. sink may
// be nil, in which case frames are simply not emitted (used by tests).
func runAgentLoop(ctx context.Context, client llm.Client, call tools.CallContext, executor *tools.Executor, catalog []tools.Tool, cfg AgentLoopConfig, systemPrompt, utterance string, history []llm.Message, sink FrameSink, logger *zap.Logger) (string, int, error) {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 6
	}
	loopCtx := ctx
	var cancel context.CancelFunc
	if cfg.LoopTimeout > 0 {
		loopCtx, cancel = context.WithTimeout(ctx, cfg.LoopTimeout)
		defer cancel()
	}

	schemas := toLLMSchemas(catalog)
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})

	for step := 0; step < cfg.MaxSteps; step++ {
		if err := loopCtx.Err(); err != nil {
			return cannedApology, step, nil
		}

		stepCtx := loopCtx
		if cfg.StepTimeout > 0 {
			var stepCancel context.CancelFunc
			stepCtx, stepCancel = context.WithTimeout(loopCtx, cfg.StepTimeout)
			defer stepCancel()
		}

		resp, err := client.Complete(stepCtx, llm.Request{Messages: messages, Tools: schemas})
		if err != nil {
			return "", step, fmt.Errorf("router: agent step %d: %w", step, err)
		}

		if resp.ToolCall == nil {
			text := strings.TrimSpace(resp.Text)
			if sink != nil {
				if err := sink.FinalAnswerChunk(text); err != nil {
					logger.Warn("agent loop: final answer delivery failed", zap.Error(err))
				}
				sink.Done(step + 1)
			}
			return text, step + 1, nil
		}

		if sink != nil {
			sink.ToolCall(resp.ToolCall.Name, resp.ToolCall.Args)
		}
		result := executor.Call(stepCtx, call, resp.ToolCall.Name, resp.ToolCall.Args)
		if sink != nil {
			sink.ToolResult(resp.ToolCall.Name, result)
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: toolCallSummary(resp.ToolCall)})
		messages = append(messages, llm.Message{Role: llm.RoleTool, Content: toolResultSummary(result)})
	}

	if sink != nil {
		sink.Done(cfg.MaxSteps)
	}
	return cannedApology, cfg.MaxSteps, nil
}

func toolCallSummary(call *llm.ToolCall) string {
	return fmt.Sprintf("calling tool %q with args %v", call.Name, call.Args)
}

// toolResultSummary renders a tools.Result as the tool-turn content the
// next LLM call sees, including the busy-retry hint spec.md §4.5
// requires: a precondition failure with status=busy should make the
// model aware it may retry with force=true.
func toolResultSummary(res tools.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "success=%v action_taken=%v", res.Success, res.ActionTaken)
	if res.ErrorCode != "" {
		fmt.Fprintf(&b, " error_code=%s", res.ErrorCode)
	}
	if res.Message != "" {
		fmt.Fprintf(&b, " message=%q", res.Message)
	}
	if status, ok := res.Data["status"]; ok && status == "busy" {
		b.WriteString(" hint=the target is already busy; if the user wants to override, retry the same tool call with force=true")
	}
	return b.String()
}
