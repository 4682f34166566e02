package tools

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/renfield-project/renfield/internal/policy"
)

// PermissionChecker gates whether a user may invoke a given tool. The
// default AllowAll implementation is used when no finer policy is wired.
type PermissionChecker interface {
	Allow(userID, toolName string) bool
}

type AllowAll struct{}

func (AllowAll) Allow(string, string) bool { return true }

// Executor is the dispatch surface the agent loop calls into. It enforces,
// in order: tool lookup, parameter validation, rate limiting, permission
// check, then dispatch, then credential redaction of the result message —
// matching spec.md §4.6's contract for every tool call.
type Executor struct {
	registry          *Registry
	perm              PermissionChecker
	logger            *zap.Logger
	defaultRatePerMin int

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

type ExecutorOption func(*Executor)

func WithPermissionChecker(p PermissionChecker) ExecutorOption {
	return func(e *Executor) { e.perm = p }
}

func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

func NewExecutor(registry *Registry, defaultRatePerMin int, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:          registry,
		perm:              AllowAll{},
		logger:            zap.NewNop(),
		defaultRatePerMin: defaultRatePerMin,
		limiters:          make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ToolNames lists every tool name currently registered, for callers (the
// legacy ranked-intent router) that need the closed intent set without
// holding their own reference to the Registry.
func (e *Executor) ToolNames() []string {
	ts := e.registry.List()
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		names = append(names, t.Name())
	}
	return names
}

func (e *Executor) limiterFor(t Tool) *rate.Limiter {
	perMin := t.RateLimitPerMinute()
	if perMin <= 0 {
		perMin = e.defaultRatePerMin
	}
	if perMin <= 0 {
		return nil
	}
	e.limMu.Lock()
	defer e.limMu.Unlock()
	lim, ok := e.limiters[t.Name()]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
		e.limiters[t.Name()] = lim
	}
	return lim
}

// Call validates, rate-limits, permission-checks, dispatches, and
// redacts the result's message field. It never returns a transport-level
// error; failures come back as Result{Success:false, ErrorCode:...} so
// the agent loop can surface them to the LLM like any other tool result.
func (e *Executor) Call(ctx context.Context, call CallContext, toolName string, args map[string]any) Result {
	t, ok := e.registry.Get(toolName)
	if !ok {
		return Result{Success: false, Message: "unknown tool: " + toolName, ErrorCode: "tool_not_found"}
	}

	if err := validateArgs(t.Schema(), args); err != nil {
		return Result{Success: false, Message: err.Error(), ErrorCode: "invalid_arguments"}
	}

	if lim := e.limiterFor(t); lim != nil && !lim.Allow() {
		return Result{Success: false, Message: "rate limit exceeded for tool " + toolName, ErrorCode: "rate_limited"}
	}

	if !e.perm.Allow(call.UserID, toolName) {
		return Result{Success: false, Message: "user is not permitted to call this tool", ErrorCode: "forbidden"}
	}

	start := time.Now()
	result, err := t.Execute(ctx, call, args)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Warn("tool execution error", zap.String("tool", toolName), zap.Error(err), zap.Duration("elapsed", elapsed))
		return Result{Success: false, Message: redactMessage(err.Error()), ErrorCode: "execution_error"}
	}

	result.Message = redactMessage(result.Message)
	return result
}

func redactMessage(msg string) string {
	out, _ := policy.RedactAll(msg)
	return out
}
