package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.LLMAdapterMode != "mock" {
		t.Fatalf("LLMAdapterMode = %q, want %q", cfg.LLMAdapterMode, "mock")
	}
	if cfg.AgentMaxSteps != 6 {
		t.Fatalf("AgentMaxSteps = %d, want 6", cfg.AgentMaxSteps)
	}
	if cfg.WakeWordDefaultThreshold != 0.5 {
		t.Fatalf("WakeWordDefaultThreshold = %v, want 0.5", cfg.WakeWordDefaultThreshold)
	}
	if len(cfg.WakeWordAllowedKeywords) == 0 {
		t.Fatalf("expected non-empty default allowed keywords")
	}
}

func TestLoadUsesExplicitDatabaseURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/renfield")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/renfield" {
		t.Fatalf("DatabaseURL = %q, want explicit value", cfg.DatabaseURL)
	}
}

func TestLoadRejectsNonPositiveAgentMaxSteps(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("WAKEWORD_DEFAULT_THRESHOLD", "")
	// A non-positive AGENT_MAX_STEPS must fail Load's validation.
	t.Setenv("AGENT_MAX_STEPS", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for AGENT_MAX_STEPS=0")
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" a, b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitCSV length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitCSV[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_SESSION_LISTENING_TIMEOUT",
		"APP_SESSION_PROCESSING_TIMEOUT",
		"APP_SESSION_RETENTION",
		"APP_MAX_AUDIO_BUFFER_BYTES",
		"APP_AUTO_CREATE_ROOMS",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_AUTH_ENABLED",
		"APP_AUTH_SIGNING_KEY",
		"APP_MAX_CONNS_PER_IP",
		"APP_MAX_CONNS_PER_DEVICE",
		"APP_OUTBOUND_QUEUE_DEPTH",
		"APP_TTS_AUDIO_MAX_BYTES",
		"WAKEWORD_DEFAULT_KEYWORD",
		"WAKEWORD_DEFAULT_THRESHOLD",
		"WAKEWORD_ALLOWED_KEYWORDS",
		"AGENT_ENABLED",
		"AGENT_MAX_STEPS",
		"AGENT_STEP_TIMEOUT",
		"AGENT_LOOP_TIMEOUT",
		"RETRIEVAL_HYBRID_ENABLED",
		"RETRIEVAL_TOP_K",
		"RETRIEVAL_EMBEDDING_DIM",
		"PRESENCE_TTL",
		"LLM_ADAPTER_MODE",
		"STT_PROVIDER",
		"TTS_PROVIDER",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_TTS_VOICE_ID",
		"ELEVENLABS_TTS_MODEL_ID",
		"ELEVENLABS_STT_MODEL_ID",
		"LOCAL_WHISPER_CLI",
		"LOCAL_WHISPER_MODEL_PATH",
		"LOCAL_WHISPER_LANGUAGE",
		"LOCAL_KOKORO_PYTHON",
		"LOCAL_KOKORO_WORKER_SCRIPT",
		"LOCAL_KOKORO_VOICE",
		"LOCAL_KOKORO_LANG_CODE",
		"DATABASE_URL",
		"REDIS_URL",
		"MCP_SERVERS",
		"HA_CONTROLLER_URL",
		"HA_CONTROLLER_TOKEN",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
