package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// LocalWhisperConfig configures the whisper.cpp CLI invocation, trimmed
// from the teacher's LocalConfig down to the synchronous-transcription
// subset (no streaming server, no kokoro TTS — that lives in internal/tts).
type LocalWhisperConfig struct {
	CLI       string
	ModelPath string
	Language  string
	Threads   int
	BeamSize  int
	BestOf    int
}

// LocalWhisperProvider shells out to the whisper.cpp CLI per call,
// writing the WAV to a scratch directory and reading back the `-otxt`
// output file — the same invocation shape as the teacher's whisperCPP,
// without the long-running server fallback this collaborator doesn't need.
type LocalWhisperProvider struct {
	cliPath   string
	modelPath string
	language  string
	threads   int
	beamSize  int
	bestOf    int
}

func NewLocalWhisperProvider(cfg LocalWhisperConfig) (*LocalWhisperProvider, error) {
	cli := strings.TrimSpace(cfg.CLI)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp CLI not found (%s)", cli)
	}

	modelPath := strings.TrimSpace(cfg.ModelPath)
	if modelPath == "" {
		return nil, fmt.Errorf("whisper model path is required")
	}
	if !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model not found: %s", modelPath)
	}

	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = "en"
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
		if threads > 8 {
			threads = 8
		}
		if threads < 2 {
			threads = 2
		}
	}
	beamSize := cfg.BeamSize
	if beamSize <= 0 {
		beamSize = 1
	}
	bestOf := cfg.BestOf
	if bestOf <= 0 {
		bestOf = 1
	}

	return &LocalWhisperProvider{
		cliPath:   cliPath,
		modelPath: modelPath,
		language:  language,
		threads:   threads,
		beamSize:  beamSize,
		bestOf:    bestOf,
	}, nil
}

func (w *LocalWhisperProvider) Transcribe(ctx context.Context, wav []byte, sampleRate int) (Result, error) {
	if len(wav) == 0 {
		return Result{}, nil
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	tmpDir, err := os.MkdirTemp("", "renfield-whisper-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := os.WriteFile(wavPath, wav, 0o600); err != nil {
		return Result{}, err
	}
	outPrefix := filepath.Join(tmpDir, "out")

	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", w.language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
		"-t", strconv.Itoa(w.threads),
		"-bs", strconv.Itoa(w.beamSize),
		"-bo", strconv.Itoa(w.bestOf),
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("whisper-cli: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	out, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return Result{}, fmt.Errorf("whisper-cli produced no output: %w", err)
	}
	transcript := strings.TrimSpace(string(out))
	return Result{Transcript: transcript, Language: w.language}, nil
}
