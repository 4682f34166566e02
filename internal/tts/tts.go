// Package tts defines the text-to-speech collaborator invoked by the
// Output Router (C7) once the Intent Router has a final reply.
package tts

import "context"

// Result is synthesized audio ready to hand to the Output Router.
type Result struct {
	Audio      []byte
	Format     string // e.g. "wav_24000", "mp3_44100_128"
	SampleRate int
}

// Provider synthesizes one utterance of speech. Like internal/stt's
// Provider, this collapses the teacher's streaming TTSStream (audio
// chunked as it's generated, consumed by a live playback loop) into a
// single call — spec.md's output path hands the whole TTS blob to a
// device in one `tts_audio` frame rather than streaming it.
type Provider interface {
	Synthesize(ctx context.Context, text, voiceID string) (Result, error)
}
