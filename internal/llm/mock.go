package llm

import "context"

// MockClient is the fallback used when no LLM backend is configured; it
// echoes a canned reply so the rest of the pipeline is exercisable
// without a real model.
type MockClient struct {
	FixedText      string
	EmbeddingDim   int
}

func NewMockClient() *MockClient { return &MockClient{FixedText: "okay", EmbeddingDim: 768} }

// Embeddings returns a deterministic, content-derived unit-ish vector
// so retrieval code exercising similarity math in tests gets stable,
// non-degenerate results without a real embedding model.
func (c *MockClient) Embeddings(_ context.Context, prompt string) ([]float32, error) {
	dim := c.EmbeddingDim
	if dim <= 0 {
		dim = 768
	}
	vec := make([]float32, dim)
	var h uint32 = 2166136261
	for i := 0; i < len(prompt); i++ {
		h ^= uint32(prompt[i])
		h *= 16777619
	}
	for i := range vec {
		h ^= uint32(i) + 0x9e3779b9
		h *= 16777619
		vec[i] = float32(h%2000)/1000.0 - 1.0
	}
	return vec, nil
}

func (c *MockClient) Complete(_ context.Context, req Request) (Response, error) {
	return Response{Text: c.FixedText}, nil
}

func (c *MockClient) Stream(_ context.Context, req Request, onDelta DeltaHandler) (Response, error) {
	if onDelta != nil {
		if err := onDelta(c.FixedText); err != nil {
			return Response{}, err
		}
	}
	return Response{Text: c.FixedText}, nil
}
