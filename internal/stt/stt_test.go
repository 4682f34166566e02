package stt

import (
	"context"
	"testing"
)

func TestMockProviderEmptyAudioYieldsEmptyTranscript(t *testing.T) {
	p := NewMockProvider()
	res, err := p.Transcribe(context.Background(), nil, 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Transcript != "" {
		t.Fatalf("Transcript = %q, want empty for empty audio", res.Transcript)
	}
}

func TestMockProviderReturnsFixedTranscript(t *testing.T) {
	p := NewMockProvider()
	res, err := p.Transcribe(context.Background(), []byte("RIFF...."), 16000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Transcript != "simulated voice input" {
		t.Fatalf("Transcript = %q", res.Transcript)
	}
}
