// Package stt defines the speech-to-text collaborator (invoked
// synchronously by the audio pipeline on audio_end) and a local
// whisper.cpp-backed implementation.
package stt

import "context"

// Result is what a Provider returns for one assembled utterance.
type Result struct {
	Transcript   string
	SpeakerName  string
	SpeakerAlias string
	Confidence   float64
	Language     string
}

// Provider transcribes a complete WAV-framed PCM16LE utterance. Unlike
// the teacher's streaming STTProvider (partial/committed events over a
// channel, used for live conversational turn-taking), this collaborator
// is called once per session after audio_end with the whole buffer
// already assembled — the audio pipeline has no use for partial results.
type Provider interface {
	Transcribe(ctx context.Context, wav []byte, sampleRate int) (Result, error)
}
