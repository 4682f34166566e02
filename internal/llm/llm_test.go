package llm

import (
	"context"
	"testing"
)

func TestParseChatCompletionPlainText(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"content":"hello there"}}]}`)
	resp := parseChatCompletion(raw)
	if resp.Text != "hello there" || resp.ToolCall != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestParseChatCompletionToolCall(t *testing.T) {
	raw := []byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"play_in_room","arguments":"{\"room\":\"kitchen\"}"}}]}}]}`)
	resp := parseChatCompletion(raw)
	if resp.ToolCall == nil || resp.ToolCall.Name != "play_in_room" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ToolCall.Args["room"] != "kitchen" {
		t.Fatalf("args = %+v", resp.ToolCall.Args)
	}
}

func TestMockClientComplete(t *testing.T) {
	c := NewMockClient()
	resp, err := c.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "okay" {
		t.Fatalf("Text = %q", resp.Text)
	}
}

func TestMockClientStreamCallsDelta(t *testing.T) {
	c := NewMockClient()
	var got string
	_, err := c.Stream(context.Background(), Request{}, func(delta string) error {
		got += delta
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got != "okay" {
		t.Fatalf("got = %q", got)
	}
}

func TestMockClientEmbeddingsDeterministicAndSized(t *testing.T) {
	c := NewMockClient()
	c.EmbeddingDim = 16
	v1, err := c.Embeddings(context.Background(), "turn on the kitchen lights")
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if len(v1) != 16 {
		t.Fatalf("len = %d, want 16", len(v1))
	}
	v2, err := c.Embeddings(context.Background(), "turn on the kitchen lights")
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embeddings not deterministic at index %d: %v vs %v", i, v1, v2)
		}
	}
	v3, _ := c.Embeddings(context.Background(), "play jazz in the living room")
	if equalVectors(v1, v3) {
		t.Fatalf("distinct prompts produced identical embeddings")
	}
}

func equalVectors(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDeriveEmbeddingsURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000/v1/chat/completions": "http://localhost:8000/v1/embeddings",
		"http://localhost:8000/v1":                  "http://localhost:8000/v1/embeddings",
	}
	for in, want := range cases {
		if got := deriveEmbeddingsURL(in); got != want {
			t.Errorf("deriveEmbeddingsURL(%q) = %q, want %q", in, got, want)
		}
	}
}
