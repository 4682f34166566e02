// Command renfieldd is the Renfield orchestrator process: it wires every
// collaborator and internal service together and serves the realtime
// WebSocket Multiplexer (C3) alongside the health/metrics HTTP surface.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/renfield-project/renfield/internal/config"
	"github.com/renfield-project/renfield/internal/hacontroller"
	"github.com/renfield-project/renfield/internal/httpapi"
	"github.com/renfield-project/renfield/internal/llm"
	"github.com/renfield-project/renfield/internal/memory"
	"github.com/renfield-project/renfield/internal/observability"
	"github.com/renfield-project/renfield/internal/output"
	"github.com/renfield-project/renfield/internal/policy"
	"github.com/renfield-project/renfield/internal/presence"
	"github.com/renfield-project/renfield/internal/registry"
	"github.com/renfield-project/renfield/internal/repository"
	"github.com/renfield-project/renfield/internal/retrieval"
	"github.com/renfield-project/renfield/internal/room"
	"github.com/renfield-project/renfield/internal/router"
	"github.com/renfield-project/renfield/internal/stt"
	"github.com/renfield-project/renfield/internal/tools"
	"github.com/renfield-project/renfield/internal/tools/mcphost"
	"github.com/renfield-project/renfield/internal/tts"
	"github.com/renfield-project/renfield/internal/wakeword"
	"github.com/renfield-project/renfield/internal/wsmux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	ctx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	var repoStore *repository.Store
	if cfg.DatabaseURL != "" {
		repoStore, err = repository.New(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
		if err != nil {
			logger.Fatal("repository init failed", zap.Error(err))
		}
		defer repoStore.Close()
	}

	rooms := room.NewService(cfg.AutoCreateRooms)
	outputDevices := output.DeviceLister(noOutputDevices{})
	var settingsStore wakeword.SettingsStore
	if repoStore != nil {
		roomsRepo := repository.NewRooms(repoStore)
		loaded, err := roomsRepo.LoadAll(ctx)
		if err != nil {
			logger.Fatal("room directory load failed", zap.Error(err))
		}
		for _, r := range loaded {
			rooms.LoadRoom(r)
		}
		rooms.WithPersister(roomsRepo)
		outputDevices = repository.NewOutputDevices(repoStore)
		settingsStore = repository.NewSettingsStore(repoStore)
	}

	reg := registry.New(rooms, nil, cfg.MaxAudioBufferBytes).WithLogger(logger)
	if repoStore != nil {
		reg.WithPersister(devicePersister{repository.NewDevices(repoStore)})
	}
	reg.StartJanitor(ctx, 5*time.Second, cfg.SessionListeningTimeout, cfg.SessionProcessingTimeout)

	wakeDefault := wakeword.Config{
		Keywords:   []string{cfg.WakeWordDefaultKeyword},
		Threshold:  cfg.WakeWordDefaultThreshold,
		CooldownMs: cfg.WakeWordDefaultCooldown.Milliseconds(),
		Enabled:    true,
	}
	wakeBroadcaster, err := wakeword.New(settingsStore, wakeDefault, cfg.WakeWordAllowedKeywords, 500*time.Millisecond, wakeword.WithLogger(logger))
	if err != nil {
		logger.Fatal("wake-word broadcaster init failed", zap.Error(err))
	}

	haClient := buildHAClient(cfg)
	outRouter := output.NewRouter(outputDevices, reg, haClient)

	llmClient := buildLLMClient(cfg)
	sttProvider := buildSTTProvider(cfg, logger)
	ttsProvider := buildTTSProvider(cfg, logger)

	memStore, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("memory store init failed", zap.Error(err))
	}
	defer memStore.Close()

	factStore, err := memory.NewFactStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("memory fact store init failed", zap.Error(err))
	}
	memService := memory.NewService(&memory.LLMExtractor{Client: llmClient}, factStore, logger)

	presenceService, err := presence.NewService(ctx, cfg.RedisURL, cfg.PresenceTTL, cfg.PresenceBeaconMinSamples)
	if err != nil {
		logger.Fatal("presence service init failed", zap.Error(err))
	}

	var retrievalEngine tools.Retriever
	if repoStore != nil {
		retrievalEngine = retrieval.New(repoStore.Pool(), llmClient, retrieval.Config{
			TopK:          cfg.RetrievalTopK,
			HybridEnabled: cfg.RetrievalHybridEnabled,
			CandidateMult: cfg.RetrievalCandidateMult,
			RRFK:          cfg.RetrievalRRFK,
			DenseWeight:   cfg.RetrievalDenseWeight,
			LexicalWeight: cfg.RetrievalLexicalWeight,
			ContextWindow: cfg.RetrievalContextWindow,
			MinSimilarity: cfg.RetrievalMinSimilarity,
		}, logger)
	}

	toolRegistry := tools.NewRegistry()
	var wsServer *wsmux.Server // filled in below; tools need it for playback delivery

	toolRegistry.Register(tools.NewResolveRoomPlayerTool(rooms, outRouter))
	toolRegistry.Register(tools.NewMediaControlTool(rooms, outRouter, haClient))
	toolRegistry.Register(tools.NewUserLocationTool(presenceService))
	toolRegistry.Register(tools.NewAllPresenceTool(presenceService))
	if retrievalEngine != nil {
		toolRegistry.Register(tools.NewSearchKnowledgeBaseTool(retrievalEngine, cfg.RetrievalTopK))
	}
	// PlayInRoomTool needs the wsmux.Server as its RenfieldPlayer. It is
	// registered now with a forwarding shim that reads wsServer at call
	// time, so the server created below can be filled in later.
	toolRegistry.Register(tools.NewPlayInRoomTool(rooms, outRouter, haClient, playerFunc(func(deviceID, url string) error {
		if wsServer == nil {
			return errors.New("renfieldd: player not yet initialized")
		}
		return wsServer.PlayURL(deviceID, url)
	}), cfg.PlaybackGracePeriod, cfg.PlaybackTranscodeWait, cfg.PlaybackTranscodeParam))

	executor := tools.NewExecutor(toolRegistry, cfg.ToolRateLimitPerMinute,
		tools.WithLogger(logger),
		tools.WithPermissionChecker(policy.NewToolAuthorizer(cfg.ToolAuthStrict)),
	)

	mcpHost := mcphost.New(toolRegistry)
	defer mcpHost.Close()
	specs, err := mcphost.ParseServerSpecs(cfg.MCPServers)
	if err != nil {
		logger.Fatal("mcp server spec parse failed", zap.Error(err))
	}
	for _, spec := range specs {
		if err := mcpHost.RegisterServer(ctx, spec); err != nil {
			logger.Warn("mcp server registration failed", zap.String("server", spec.Name), zap.Error(err))
		}
	}

	routerSvc := router.New(llmClient, toolRegistry, executor, memStore, cfg.AgentEnabled, router.AgentLoopConfig{
		MaxSteps:    cfg.AgentMaxSteps,
		StepTimeout: cfg.AgentStepTimeout,
		LoopTimeout: cfg.AgentLoopTimeout,
	},
		router.WithLogger(logger),
		router.WithMemoryService(memService),
		router.WithFactRetriever(factStore),
		router.WithRetriever(retrievalEngine),
	)

	wsServer = wsmux.New(cfg, reg, rooms, wakeBroadcaster, outRouter, routerSvc, sttProvider, ttsProvider, haClient, metrics, logger).
		WithPresence(presenceService)
	reg.SetSink(wsServer)

	api := httpapi.New(cfg, wsServer, readierFunc(func() error { return nil }), metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// noOutputDevices is the Output Router's device source when no database
// is configured: every room falls back to its input device, matching
// spec.md §4.7's ReasonNoOutputDevicesConfigured path.
type noOutputDevices struct{}

func (noOutputDevices) ListForRoom(context.Context, string) ([]output.RoomOutputDevice, error) {
	return nil, nil
}

// devicePersister adapts *repository.Devices to registry.DevicePersister;
// the two packages define independent Capabilities structs so the
// registry's audit trail never has to import the wire-facing one.
type devicePersister struct {
	devices *repository.Devices
}

func (d devicePersister) Save(ctx context.Context, deviceID, deviceType, deviceName, roomID string, isStationary bool, caps registry.Capabilities, ipAddress string) error {
	return d.devices.Save(ctx, deviceID, deviceType, deviceName, roomID, isStationary, repository.DeviceCapabilities{
		HasMicrophone: caps.HasMicrophone,
		HasSpeaker:    caps.HasSpeaker,
		HasDisplay:    caps.HasDisplay,
		HasWakeword:   caps.HasWakeword,
		HasCamera:     caps.HasCamera,
	}, ipAddress)
}

func buildHAClient(cfg config.Config) hacontroller.Client {
	if cfg.HAControllerURL == "" {
		return hacontroller.NewMockClient(nil)
	}
	return hacontroller.NewRESTClient(cfg.HAControllerURL, cfg.HAControllerToken)
}

func buildLLMClient(cfg config.Config) llm.Client {
	switch cfg.LLMAdapterMode {
	case "http":
		return llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	default:
		return llm.NewMockClient()
	}
}

func buildSTTProvider(cfg config.Config, logger *zap.Logger) stt.Provider {
	switch cfg.STTProvider {
	case "local_whisper":
		p, err := stt.NewLocalWhisperProvider(stt.LocalWhisperConfig{
			CLI:       cfg.LocalWhisperCLI,
			ModelPath: cfg.LocalWhisperModelPath,
			Language:  cfg.LocalWhisperLanguage,
		})
		if err != nil {
			logger.Fatal("local whisper provider init failed", zap.Error(err))
		}
		return p
	default:
		return stt.NewMockProvider()
	}
}

func buildTTSProvider(cfg config.Config, logger *zap.Logger) tts.Provider {
	switch cfg.TTSProvider {
	case "elevenlabs":
		return tts.NewElevenLabsProvider(tts.ElevenLabsConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			BaseURL:   cfg.ElevenLabsWSBaseURL,
			ModelID:   cfg.ElevenLabsTTSModel,
			OutputFmt: "mp3_44100_128",
		})
	case "local_kokoro":
		p, err := tts.NewLocalKokoroProvider(tts.LocalKokoroConfig{
			Python:       cfg.LocalKokoroPython,
			WorkerScript: cfg.LocalKokoroWorkerScript,
			Voice:        cfg.LocalKokoroVoice,
			LangCode:     cfg.LocalKokoroLangCode,
		})
		if err != nil {
			logger.Fatal("local kokoro provider init failed", zap.Error(err))
		}
		return p
	default:
		return tts.NewMockProvider()
	}
}

// playerFunc adapts a plain function to tools.RenfieldPlayer, letting the
// PlayInRoomTool be registered before the wsmux.Server it eventually calls
// into exists.
type playerFunc func(deviceID, url string) error

func (f playerFunc) PlayURL(deviceID, url string) error { return f(deviceID, url) }

// readierFunc adapts a plain function to httpapi.Readier.
type readierFunc func() error

func (f readierFunc) Ready() error { return f() }
