package tts

import "context"

// MockProvider returns a fixed, tiny silent payload, used when no local
// or remote TTS backend is configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Synthesize(_ context.Context, text, _ string) (Result, error) {
	if text == "" {
		return Result{}, nil
	}
	return Result{Audio: []byte{0x00}, Format: "wav_24000", SampleRate: 24000}, nil
}
