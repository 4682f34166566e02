package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the orchestrator process.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Session / registry bounds (C1, C2).
	SessionInactivityTimeout time.Duration
	SessionListeningTimeout  time.Duration
	SessionProcessingTimeout time.Duration
	SessionRetention         time.Duration
	MaxAudioBufferBytes      int
	AutoCreateRooms          bool

	// WebSocket multiplexer (C3).
	AuthEnabled          bool
	AuthSigningKey       string
	MaxConnsPerIP        int
	MaxConnsPerDevice    int
	RateLimitPerSecond   float64
	RateLimitBurst       int
	OutboundQueueDepth   int
	TTSAudioMaxBytes     int

	// Wake-word defaults (C8).
	WakeWordDefaultKeyword   string
	WakeWordDefaultThreshold float64
	WakeWordDefaultCooldown  time.Duration
	WakeWordAllowedKeywords  []string

	// Agent loop (C5).
	AgentEnabled       bool
	AgentMaxSteps      int
	AgentStepTimeout   time.Duration
	AgentLoopTimeout   time.Duration
	AgentRoleDefault   string

	// Retrieval (C10).
	RetrievalHybridEnabled  bool
	RetrievalTopK           int
	RetrievalCandidateMult  int
	RetrievalRRFK           int
	RetrievalDenseWeight    float64
	RetrievalLexicalWeight  float64
	RetrievalContextWindow  int
	RetrievalMinSimilarity  float64
	EmbeddingDim            int

	// Presence (C11).
	PresenceTTL              time.Duration
	PresenceBeaconMinSamples int

	// Collaborators.
	LLMAdapterMode    string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMEmbeddingModel string
	STTProvider       string
	TTSProvider       string

	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsTTSVoice  string
	ElevenLabsTTSModel  string
	ElevenLabsSTTModel  string

	LocalWhisperCLI       string
	LocalWhisperModelPath string
	LocalWhisperLanguage  string

	LocalKokoroPython       string
	LocalKokoroWorkerScript string
	LocalKokoroVoice        string
	LocalKokoroLangCode     string

	// Storage.
	DatabaseURL string
	RedisURL    string

	// Remote tool servers (C6), "name=transport:target" entries.
	MCPServers []string

	// Internal tool executor (C6).
	ToolRateLimitPerMinute  int
	ToolAuthStrict          bool
	PlaybackGracePeriod     time.Duration
	PlaybackTranscodeWait   time.Duration
	PlaybackTranscodeParam  string

	// Home automation collaborator.
	HAControllerURL   string
	HAControllerToken string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "renfield"),
		AllowAnyOrigin:   false,

		SessionInactivityTimeout: 2 * time.Minute,
		SessionListeningTimeout:  15 * time.Second,
		SessionProcessingTimeout: 30 * time.Second,
		SessionRetention:         5 * time.Minute,
		MaxAudioBufferBytes:      2 * 1024 * 1024,
		AutoCreateRooms:          true,

		AuthEnabled:        false,
		AuthSigningKey:      stringsTrimSpace("APP_AUTH_SIGNING_KEY"),
		MaxConnsPerIP:      32,
		MaxConnsPerDevice:  1,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
		OutboundQueueDepth: 64,
		TTSAudioMaxBytes:   2 * 1024 * 1024,

		WakeWordDefaultKeyword:   envOrDefault("WAKEWORD_DEFAULT_KEYWORD", "hey_renfield"),
		WakeWordDefaultThreshold: 0.5,
		WakeWordDefaultCooldown:  1500 * time.Millisecond,
		WakeWordAllowedKeywords:  splitCSV(envOrDefault("WAKEWORD_ALLOWED_KEYWORDS", "hey_renfield,alexa,hey_jarvis,computer")),

		AgentEnabled:     true,
		AgentMaxSteps:    6,
		AgentStepTimeout: 20 * time.Second,
		AgentLoopTimeout: 45 * time.Second,
		AgentRoleDefault: "general",

		RetrievalHybridEnabled: true,
		RetrievalTopK:          5,
		RetrievalCandidateMult: 3,
		RetrievalRRFK:          60,
		RetrievalDenseWeight:   1.0,
		RetrievalLexicalWeight: 0.8,
		RetrievalContextWindow: 1,
		RetrievalMinSimilarity: 0.2,
		EmbeddingDim:           768,

		PresenceTTL:              10 * time.Minute,
		PresenceBeaconMinSamples: 2,

		LLMAdapterMode:    envOrDefault("LLM_ADAPTER_MODE", "mock"),
		LLMBaseURL:        envOrDefault("LLM_BASE_URL", "http://localhost:11434/v1"),
		LLMAPIKey:         stringsTrimSpace("LLM_API_KEY"),
		LLMModel:          envOrDefault("LLM_MODEL", "llama3.1"),
		LLMEmbeddingModel: envOrDefault("LLM_EMBEDDING_MODEL", "nomic-embed-text"),
		STTProvider:       envOrDefault("STT_PROVIDER", "mock"),
		TTSProvider:       envOrDefault("TTS_PROVIDER", "mock"),

		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsTTSVoice:  envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel:  envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsSTTModel:  envOrDefault("ELEVENLABS_STT_MODEL_ID", "scribe_v2_realtime"),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),

		LocalWhisperCLI:       envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperModelPath: envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		LocalWhisperLanguage:  envOrDefault("LOCAL_WHISPER_LANGUAGE", "en"),

		LocalKokoroPython:       envOrDefault("LOCAL_KOKORO_PYTHON", ""),
		LocalKokoroWorkerScript: envOrDefault("LOCAL_KOKORO_WORKER_SCRIPT", "scripts/kokoro_worker.py"),
		LocalKokoroVoice:        envOrDefault("LOCAL_KOKORO_VOICE", "af_heart"),
		LocalKokoroLangCode:     envOrDefault("LOCAL_KOKORO_LANG_CODE", "a"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),
		RedisURL:    stringsTrimSpace("REDIS_URL"),

		MCPServers: splitCSV(envOrDefault("MCP_SERVERS", "")),

		ToolRateLimitPerMinute: 30,
		ToolAuthStrict:         false,
		PlaybackGracePeriod:    6 * time.Second,
		PlaybackTranscodeWait:  8 * time.Second,
		PlaybackTranscodeParam: envOrDefault("PLAYBACK_TRANSCODE_PARAM", "transcode=true"),

		HAControllerURL:   stringsTrimSpace("HA_CONTROLLER_URL"),
		HAControllerToken: stringsTrimSpace("HA_CONTROLLER_TOKEN"),

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionListeningTimeout, err = durationFromEnv("APP_SESSION_LISTENING_TIMEOUT", cfg.SessionListeningTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionProcessingTimeout, err = durationFromEnv("APP_SESSION_PROCESSING_TIMEOUT", cfg.SessionProcessingTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionRetention, err = durationFromEnv("APP_SESSION_RETENTION", cfg.SessionRetention); err != nil {
		return Config{}, err
	}
	if cfg.MaxAudioBufferBytes, err = intFromEnv("APP_MAX_AUDIO_BUFFER_BYTES", cfg.MaxAudioBufferBytes); err != nil {
		return Config{}, err
	}
	if cfg.AutoCreateRooms, err = boolFromEnv("APP_AUTO_CREATE_ROOMS", cfg.AutoCreateRooms); err != nil {
		return Config{}, err
	}
	if cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin); err != nil {
		return Config{}, err
	}
	if cfg.AuthEnabled, err = boolFromEnv("APP_AUTH_ENABLED", cfg.AuthEnabled); err != nil {
		return Config{}, err
	}
	if cfg.MaxConnsPerIP, err = intFromEnv("APP_MAX_CONNS_PER_IP", cfg.MaxConnsPerIP); err != nil {
		return Config{}, err
	}
	if cfg.MaxConnsPerDevice, err = intFromEnv("APP_MAX_CONNS_PER_DEVICE", cfg.MaxConnsPerDevice); err != nil {
		return Config{}, err
	}
	if cfg.OutboundQueueDepth, err = intFromEnv("APP_OUTBOUND_QUEUE_DEPTH", cfg.OutboundQueueDepth); err != nil {
		return Config{}, err
	}
	if cfg.TTSAudioMaxBytes, err = intFromEnv("APP_TTS_AUDIO_MAX_BYTES", cfg.TTSAudioMaxBytes); err != nil {
		return Config{}, err
	}
	if cfg.AgentEnabled, err = boolFromEnv("AGENT_ENABLED", cfg.AgentEnabled); err != nil {
		return Config{}, err
	}
	if cfg.AgentMaxSteps, err = intFromEnv("AGENT_MAX_STEPS", cfg.AgentMaxSteps); err != nil {
		return Config{}, err
	}
	if cfg.AgentStepTimeout, err = durationFromEnv("AGENT_STEP_TIMEOUT", cfg.AgentStepTimeout); err != nil {
		return Config{}, err
	}
	if cfg.AgentLoopTimeout, err = durationFromEnv("AGENT_LOOP_TIMEOUT", cfg.AgentLoopTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RetrievalHybridEnabled, err = boolFromEnv("RETRIEVAL_HYBRID_ENABLED", cfg.RetrievalHybridEnabled); err != nil {
		return Config{}, err
	}
	if cfg.RetrievalTopK, err = intFromEnv("RETRIEVAL_TOP_K", cfg.RetrievalTopK); err != nil {
		return Config{}, err
	}
	if cfg.EmbeddingDim, err = intFromEnv("RETRIEVAL_EMBEDDING_DIM", cfg.EmbeddingDim); err != nil {
		return Config{}, err
	}
	if cfg.PresenceTTL, err = durationFromEnv("PRESENCE_TTL", cfg.PresenceTTL); err != nil {
		return Config{}, err
	}
	if cfg.ToolRateLimitPerMinute, err = intFromEnv("TOOL_RATE_LIMIT_PER_MINUTE", cfg.ToolRateLimitPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.ToolAuthStrict, err = boolFromEnv("TOOL_AUTH_STRICT", cfg.ToolAuthStrict); err != nil {
		return Config{}, err
	}
	if cfg.PlaybackGracePeriod, err = durationFromEnv("PLAYBACK_GRACE_PERIOD", cfg.PlaybackGracePeriod); err != nil {
		return Config{}, err
	}
	if cfg.PlaybackTranscodeWait, err = durationFromEnv("PLAYBACK_TRANSCODE_WAIT", cfg.PlaybackTranscodeWait); err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxAudioBufferBytes <= 0 {
		return Config{}, fmt.Errorf("APP_MAX_AUDIO_BUFFER_BYTES must be positive")
	}
	if cfg.AgentMaxSteps <= 0 {
		return Config{}, fmt.Errorf("AGENT_MAX_STEPS must be positive")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("RETRIEVAL_EMBEDDING_DIM must be positive")
	}
	if cfg.WakeWordDefaultThreshold < 0.1 || cfg.WakeWordDefaultThreshold > 1.0 {
		return Config{}, fmt.Errorf("WAKEWORD_DEFAULT_THRESHOLD must be within [0.1, 1.0]")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func splitCSV(v string) []string {
	v = trimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = trimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
