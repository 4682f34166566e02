package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// HTTPClient forwards chat requests to an OpenAI-compatible HTTP
// endpoint (local llama.cpp server, Ollama, or a hosted API), adapted
// from the teacher's openclaw.HTTPAdapter request/response shape and
// SSE-or-plain-JSON content negotiation.
type HTTPClient struct {
	url            string
	embeddingsURL  string
	apiKey         string
	model          string
	embeddingModel string
	client         *http.Client
}

func NewHTTPClient(url, apiKey, model string) *HTTPClient {
	return &HTTPClient{
		url:            strings.TrimSpace(url),
		embeddingsURL:  deriveEmbeddingsURL(strings.TrimSpace(url)),
		apiKey:         apiKey,
		model:          model,
		embeddingModel: model,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

// deriveEmbeddingsURL swaps the chat-completions path for an
// embeddings one on the same OpenAI-compatible base, e.g.
// ".../v1/chat/completions" -> ".../v1/embeddings".
func deriveEmbeddingsURL(chatURL string) string {
	if idx := strings.LastIndex(chatURL, "/chat/completions"); idx >= 0 {
		return chatURL[:idx] + "/embeddings"
	}
	return strings.TrimSuffix(chatURL, "/") + "/embeddings"
}

// WithEmbeddingModel overrides the model name sent on embeddings
// requests, for deployments whose embedding model differs from the
// chat model.
func (c *HTTPClient) WithEmbeddingModel(model string) *HTTPClient {
	c.embeddingModel = model
	return c
}

// Embeddings posts prompt to the OpenAI-compatible /embeddings
// endpoint and returns the first (and only) embedding vector.
func (c *HTTPClient) Embeddings(ctx context.Context, prompt string) ([]float32, error) {
	payload, err := sjson.Set(`{}`, "model", c.embeddingModel)
	if err != nil {
		return nil, err
	}
	payload, err = sjson.Set(payload, "input", prompt)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.embeddingsURL, bytes.NewReader([]byte(payload)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("llm embeddings http status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}

	vecResult := gjson.GetBytes(raw, "data.0.embedding")
	if !vecResult.IsArray() {
		return nil, fmt.Errorf("llm embeddings: response missing data.0.embedding array")
	}
	arr := vecResult.Array()
	vec := make([]float32, len(arr))
	for i, v := range arr {
		vec[i] = float32(v.Float())
	}
	return vec, nil
}

func (c *HTTPClient) buildPayload(req Request) ([]byte, error) {
	payload := `{}`
	var err error
	payload, err = sjson.Set(payload, "model", c.model)
	if err != nil {
		return nil, err
	}
	for i, m := range req.Messages {
		payload, err = sjson.Set(payload, fmt.Sprintf("messages.%d.role", i), string(m.Role))
		if err != nil {
			return nil, err
		}
		payload, err = sjson.Set(payload, fmt.Sprintf("messages.%d.content", i), m.Content)
		if err != nil {
			return nil, err
		}
	}
	if req.JSONMode {
		payload, err = sjson.Set(payload, "response_format.type", "json_object")
		if err != nil {
			return nil, err
		}
	}
	for i, tool := range req.Tools {
		payload, err = sjson.Set(payload, fmt.Sprintf("tools.%d.type", i), "function")
		if err != nil {
			return nil, err
		}
		payload, err = sjson.Set(payload, fmt.Sprintf("tools.%d.function.name", i), tool.Name)
		if err != nil {
			return nil, err
		}
		payload, err = sjson.Set(payload, fmt.Sprintf("tools.%d.function.description", i), tool.Description)
		if err != nil {
			return nil, err
		}
	}
	if req.MaxTokens > 0 {
		payload, err = sjson.Set(payload, "max_tokens", req.MaxTokens)
		if err != nil {
			return nil, err
		}
	}
	return []byte(payload), nil
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	body, err := c.buildPayload(req)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Response{}, fmt.Errorf("llm http status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return parseChatCompletion(raw), nil
}

// parseChatCompletion extracts either a tool call or plain text from an
// OpenAI-shaped chat completion response using gjson path queries
// instead of a strongly-typed struct, so it tolerates vendor response
// variants that add or omit fields.
func parseChatCompletion(raw []byte) Response {
	root := gjson.ParseBytes(raw)
	msg := root.Get("choices.0.message")

	if calls := msg.Get("tool_calls"); calls.IsArray() && len(calls.Array()) > 0 {
		first := calls.Array()[0]
		name := first.Get("function.name").String()
		argsJSON := first.Get("function.arguments").String()
		args := map[string]any{}
		if argsJSON != "" {
			gjson.Parse(argsJSON).ForEach(func(key, value gjson.Result) bool {
				args[key.String()] = value.Value()
				return true
			})
		}
		return Response{ToolCall: &ToolCall{Name: name, Args: args}}
	}
	return Response{Text: strings.TrimSpace(msg.Get("content").String())}
}

// Stream consumes a text/event-stream response line by line, forwarding
// each delta's content field through onDelta, matching the teacher's
// consumeSSE loop without the NDJSON/plain-body fallbacks a locally
// hosted OpenAI-compatible server doesn't need.
func (c *HTTPClient) Stream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	body, err := c.buildPayload(req)
	if err != nil {
		return Response{}, err
	}
	body, err = sjson.SetBytes(body, "stream", true)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer res.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" || data == "" {
			continue
		}
		delta := gjson.Get(data, "choices.0.delta.content").String()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Response{}, err
			}
		}
	}
	return Response{Text: full.String()}, scanner.Err()
}
