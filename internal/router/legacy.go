package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/renfield-project/renfield/internal/llm"
	"github.com/renfield-project/renfield/internal/policy"
	"github.com/renfield-project/renfield/internal/tools"
)

// RankedIntent is one candidate the legacy classifier proposes, ordered
// by descending Confidence by the classifier itself.
type RankedIntent struct {
	Intent     string
	Parameters map[string]any
	Confidence float64
}

// LegacyIntentClassifier is Stage B's ranked-intent prompt, kept as an
// interface so tests can substitute a deterministic stub instead of a
// live LLM call.
type LegacyIntentClassifier interface {
	Classify(ctx context.Context, utterance string, history []llm.Message, availableIntents []string) ([]RankedIntent, error)
}

// llmLegacyClassifier is the production LegacyIntentClassifier: a single
// JSON-mode LLM call naming the closed intent set, matching spec.md
// §4.5's Stage B' description.
type llmLegacyClassifier struct {
	client llm.Client
}

func (c *llmLegacyClassifier) Classify(ctx context.Context, utterance string, history []llm.Message, availableIntents []string) ([]RankedIntent, error) {
	prompt := fmt.Sprintf(
		"Given the user's request and this closed set of available intents: %s. "+
			"Reply JSON only: {\"intents\":[{\"intent\":\"...\",\"parameters\":{...},\"confidence\":0.0}]}, "+
			"ranked by descending confidence. Omit intents that clearly don't apply.",
		strings.Join(availableIntents, ", "),
	)
	messages := append([]llm.Message{{Role: llm.RoleSystem, Content: prompt}}, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: utterance})

	resp, err := c.client.Complete(ctx, llm.Request{JSONMode: true, Messages: messages})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Intents []RankedIntent `json:"intents"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		return nil, fmt.Errorf("router: legacy classify: unparseable response: %w", err)
	}
	sort.SliceStable(parsed.Intents, func(i, j int) bool {
		return parsed.Intents[i].Confidence > parsed.Intents[j].Confidence
	})
	return parsed.Intents, nil
}

// legacyRouter implements Stage B': the ranked-intent fallback path taken
// when the agent loop is disabled (config.Config.AgentEnabled == false).
type legacyRouter struct {
	classifier LegacyIntentClassifier
	client     llm.Client
	recovery   HomeAutomationRecovery
}

// HomeAutomationRecovery implements the bespoke recovery path spec.md
// §4.5 describes: when JSON parsing fails but the utterance contains
// action + device keywords, search for entities and synthesize a
// best-guess intent at reduced confidence. Declared as an interface so
// the concrete internal/hacontroller-backed implementation can be wired
// in without this package depending on it directly; nil disables
// recovery entirely.
type HomeAutomationRecovery interface {
	Recover(ctx context.Context, utterance string) (RankedIntent, bool, error)
}

func newLegacyRouter(classifier LegacyIntentClassifier, client llm.Client) *legacyRouter {
	return &legacyRouter{classifier: classifier, client: client}
}

// withRecovery attaches the keyword-triggered recovery
// path to an already-constructed legacy router.
func (lr *legacyRouter) withRecovery(r HomeAutomationRecovery) *legacyRouter {
	lr.recovery = r
	return lr
}

// run tries each ranked intent via the executor in descending confidence
// order, accepting the first success=true && empty_result=false result.
// Falling back to general.conversation means: return actionTaken=false
// with empty text.
func (lr *legacyRouter) run(ctx context.Context, executor *tools.Executor, rc RequestContext, utterance string, history []llm.Message) (text string, actionTaken bool, err error) {
	call := tools.CallContext{UserID: rc.UserID, SessionID: rc.SessionID, RoomID: rc.RoomID}
	availableIntents := executor.ToolNames()

	ranked, classifyErr := lr.classifier.Classify(ctx, utterance, history, availableIntents)
	if classifyErr != nil {
		if lr.recovery != nil && looksLikeActionPlusDevice(utterance) {
			guess, found, recErr := lr.recovery.Recover(ctx, utterance)
			if recErr == nil && found {
				ranked = []RankedIntent{guess}
			}
		}
		if ranked == nil {
			return "", false, nil
		}
	}

	for _, candidate := range ranked {
		result := executor.Call(ctx, call, candidate.Intent, candidate.Parameters)
		if result.Success && !result.EmptyResult {
			reply, replyErr := lr.constructReply(ctx, utterance, candidate.Intent, result)
			if replyErr != nil {
				reply = result.Message
			}
			return reply, true, nil
		}
	}
	return "", false, nil
}

// constructReply implements the non-agent reply-construction step: a
// second LLM call, given the action summary, produces a short natural
// confirmation. Credential/secret-shaped strings are stripped from the
// data before it reaches the model.
func (lr *legacyRouter) constructReply(ctx context.Context, utterance, intent string, result tools.Result) (string, error) {
	if lr.client == nil {
		return result.Message, nil
	}
	summary, _ := json.Marshal(redactedResultData(result.Data))
	prompt := fmt.Sprintf(
		"The user asked: %q. The action %q succeeded with this result data: %s. "+
			"Give a short, natural spoken confirmation of what happened. Do not repeat raw field names.",
		utterance, intent, string(summary),
	)
	resp, err := lr.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func redactedResultData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			redacted, _ := policy.RedactAll(s)
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

var actionKeywords = []string{"turn", "set", "start", "stop", "play", "pause", "dim", "open", "close", "lock", "unlock"}
var deviceKeywords = []string{"light", "lights", "thermostat", "lock", "door", "fan", "plug", "switch", "tv", "speaker", "camera"}

// looksLikeActionPlusDevice is a crude keyword check, not a parser: it
// exists only to gate the HA recovery path, not to extract parameters.
func looksLikeActionPlusDevice(utterance string) bool {
	lower := strings.ToLower(utterance)
	hasAction := false
	for _, k := range actionKeywords {
		if strings.Contains(lower, k) {
			hasAction = true
			break
		}
	}
	if !hasAction {
		return false
	}
	for _, k := range deviceKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
