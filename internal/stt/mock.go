package stt

import "context"

// MockProvider is the fallback provider used when no local or remote
// STT backend is configured, adapted from the teacher's MockProvider
// (used there for both STT and TTS) down to the synchronous contract.
type MockProvider struct {
	FixedTranscript string
}

func NewMockProvider() *MockProvider { return &MockProvider{FixedTranscript: "simulated voice input"} }

func (p *MockProvider) Transcribe(_ context.Context, wav []byte, _ int) (Result, error) {
	if len(wav) == 0 {
		return Result{}, nil
	}
	return Result{Transcript: p.FixedTranscript, Confidence: 0.7, Language: "en"}, nil
}
