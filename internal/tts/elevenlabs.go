package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/renfield-project/renfield/internal/reliability"
)

// ElevenLabsConfig mirrors the teacher's ElevenLabsConfig field names;
// this provider uses the plain REST text-to-speech endpoint instead of
// the teacher's realtime websocket stream, matching the synchronous
// Provider contract.
type ElevenLabsConfig struct {
	APIKey    string
	BaseURL   string
	ModelID   string
	OutputFmt string
}

type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
	cb     *reliability.CircuitBreaker
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFmt) == "" {
		cfg.OutputFmt = "mp3_44100_128"
	}
	return &ElevenLabsProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		cb:     reliability.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text, voiceID string) (Result, error) {
	out, err := p.cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return p.synthesize(ctx, text, voiceID)
	})
	if err != nil {
		return Result{}, err
	}
	return out.(Result), nil
}

func (p *ElevenLabsProvider) synthesize(ctx context.Context, text, voiceID string) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": p.cfg.ModelID,
	})
	if err != nil {
		return Result{}, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", strings.TrimRight(p.cfg.BaseURL, "/"), voiceID, p.cfg.OutputFmt)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("xi-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return Result{}, fmt.Errorf("elevenlabs tts retryable error: HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return Result{}, fmt.Errorf("elevenlabs tts error: HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	return Result{Audio: audio, Format: p.cfg.OutputFmt}, nil
}
