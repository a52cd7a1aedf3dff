// Command gateway runs the cognitive services gateway HTTP server,
// wiring configuration, logging, telemetry, backend adapters, the
// Backend Router, Job Manager, Pipeline Orchestrator, and Workflow
// Engine (spec.md §4) into one process. Grounded on
// itsneelabh-gomind's examples/agent-with-orchestration/main.go startup
// sequence (fail-fast config validation, component construction before
// telemetry init, signal-driven graceful shutdown) narrowed from a
// Redis-discovered multi-agent framework down to a single bound gateway.
//
// Environment variables (spec.md §6 "Environment"):
//
//	ROVERSEER_CONFIG_FILE       - optional YAML config overlay
//	ROVERSEER_LISTEN_ADDR       - HTTP bind address (default :8080)
//	ROVERSEER_LLM_BACKEND_URLS  - comma-separated primary,fallback URLs
//	ROVERSEER_LLM_PROVIDERS     - comma-separated provider per URL slot
//	                              (openai, anthropic, bedrock; default openai)
//	ROVERSEER_ANTHROPIC_API_KEY, ROVERSEER_BEDROCK_REGION
//	ROVERSEER_SEARCH_BACKEND_URL, ROVERSEER_STT_BACKEND_URL,
//	ROVERSEER_TTS_BACKEND_URL, ROVERSEER_AUDIO_GEN_URL
//	ROVERSEER_ENV               - "production" switches logs to JSON
//
// Exit codes: 0 normal, 2 config error, 3 bind failure, 4 backend init failure.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/codemusic/roverseer-gateway/backend"
	"github.com/codemusic/roverseer-gateway/core"
	"github.com/codemusic/roverseer-gateway/httpapi"
	"github.com/codemusic/roverseer-gateway/jobs"
	"github.com/codemusic/roverseer-gateway/pipeline"
	"github.com/codemusic/roverseer-gateway/research"
	"github.com/codemusic/roverseer-gateway/router"
	"github.com/codemusic/roverseer-gateway/telemetry"
	"github.com/codemusic/roverseer-gateway/workflow"
)

const exitConfigError = 2
const exitBindFailure = 3
const exitBackendInitFailure = 4

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(exitConfigError)
	}

	logger := core.NewProductionLogger("gateway")

	telemetryProvider, err := telemetry.New("roverseer-gateway", os.Getenv("ROVERSEER_ENV") == "production")
	if err != nil {
		logger.Warn("telemetry initialization failed, continuing without tracing", map[string]any{"error": err.Error()})
		telemetryProvider = nil
	}
	if telemetryProvider != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetryProvider.Shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown error", map[string]any{"error": err.Error()})
			}
		}()
	}

	r := router.New(router.WithLogger(logger.WithComponent("router").(core.ComponentAwareLogger)))
	if err := registerBackends(context.Background(), r, cfg); err != nil {
		logger.Error("backend initialization failed", map[string]any{"error": err.Error()})
		os.Exit(exitBackendInitFailure)
	}

	pipelineOrch := pipeline.NewOrchestrator(r,
		pipeline.WithLogger(logger.WithComponent("pipeline").(core.ComponentAwareLogger)),
		pipeline.WithHistoryLimit(cfg.HistoryMaxTurns),
	)
	jobManager := jobs.NewManager(
		jobs.WithLogger(logger.WithComponent("jobs").(core.ComponentAwareLogger)),
		jobs.WithRetentionCap(cfg.JobRetentionCap),
	)
	feedbackHub := httpapi.NewFeedbackHub()
	engineOpts := []workflow.Option{
		workflow.WithLogger(logger.WithComponent("workflow").(core.ComponentAwareLogger)),
		workflow.WithSink(feedbackHub),
	}
	if cfg.WorkflowRedisURL != "" {
		store, err := workflow.NewRedisStore(context.Background(), cfg.WorkflowRedisURL, "roverseer:workflow", 24*time.Hour)
		if err != nil {
			logger.Warn("workflow redis store unavailable, falling back to in-memory only", map[string]any{"error": err.Error()})
		} else {
			engineOpts = append(engineOpts, workflow.WithStore(store))
		}
	}
	engine := workflow.NewEngine(engineOpts...)
	researchWorkflow := research.New(r)

	handler := httpapi.New(r, pipelineOrch, jobManager, engine, researchWorkflow,
		httpapi.WithLogger(logger.WithComponent("http").(core.ComponentAwareLogger)),
		httpapi.WithVoiceDir(cfg.VoiceDir),
		httpapi.WithModelDir(cfg.ModelDir),
		httpapi.WithModelRegistryURL(cfg.ModelRegistryURL),
	)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/workflow/feed", feedbackHub.HandleWebSocket)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", map[string]any{"addr": cfg.ListenAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrCh:
		logger.Error("failed to bind listener", map[string]any{"error": err.Error()})
		os.Exit(exitBindFailure)
	case <-sigChan:
		logger.Info("shutting down gracefully", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", map[string]any{"error": err.Error()})
	}
	jobManager.Wait()
	logger.Info("shutdown complete", nil)
}

// registerBackends wires one primary adapter per capability from cfg,
// plus any configured fallback LLM URLs as additional backends, and
// installs the Selection Policy for each capability (spec.md §3
// "Selection Policy", §6 "Environment"). Each LLM slot in
// cfg.LLMBackendURLs picks its adapter type from cfg.ProviderFor(i):
// "openai" (default, URL-addressed), "anthropic", or "bedrock".
func registerBackends(ctx context.Context, r *router.Router, cfg *core.Config) error {
	if len(cfg.LLMBackendURLs) == 0 {
		return core.New("main.registerBackends", core.KindInputInvalid, "no LLM backend URLs configured")
	}

	var llmIDs []string
	for i, url := range cfg.LLMBackendURLs {
		id := "llm-" + strconv.Itoa(i)
		switch cfg.ProviderFor(i) {
		case "anthropic":
			r.Register(id, backend.NewAnthropicAdapter(id, cfg.AnthropicAPIKey, ""))
		case "bedrock":
			adapter, err := backend.NewBedrockAdapter(ctx, id, cfg.BedrockRegion, url)
			if err != nil {
				return core.Wrap("main.registerBackends", core.KindBackendUnavailable, "initializing bedrock adapter "+id, err)
			}
			r.Register(id, adapter)
		default:
			r.Register(id, backend.NewOpenAIAdapter(id, url, os.Getenv("ROVERSEER_LLM_API_KEY"), ""))
		}
		llmIDs = append(llmIDs, id)
	}
	r.SetPolicy(backend.CapGenerateText, router.Policy{
		BackendIDs:      llmIDs,
		FallbackEnabled: !cfg.StrictMode["generate_text"],
	})

	r.Register("stt-primary", backend.NewHTTPSTTAdapter("stt-primary", cfg.STTBackendURL, cfg.RequestTimeout))
	r.SetPolicy(backend.CapTranscribeAudio, router.Policy{
		BackendIDs:      []string{"stt-primary"},
		FallbackEnabled: !cfg.StrictMode["transcribe_audio"],
	})

	r.Register("tts-primary", backend.NewHTTPTTSAdapter("tts-primary", cfg.TTSBackendURL, 22050, cfg.RequestTimeout))
	r.SetPolicy(backend.CapSynthesizeSpeech, router.Policy{
		BackendIDs:      []string{"tts-primary"},
		FallbackEnabled: !cfg.StrictMode["synthesize_speech"],
	})

	r.Register("search-web", backend.NewHTTPSearchAdapter("search-web", cfg.SearchBackendURL, false, cfg.RequestTimeout))
	r.SetPolicy(backend.CapSearchWeb, router.Policy{
		BackendIDs:      []string{"search-web"},
		FallbackEnabled: !cfg.StrictMode["search_web"],
	})

	r.Register("search-scholarly", backend.NewHTTPSearchAdapter("search-scholarly", cfg.SearchBackendURL, true, cfg.RequestTimeout))
	r.SetPolicy(backend.CapSearchScholarly, router.Policy{
		BackendIDs:      []string{"search-scholarly"},
		FallbackEnabled: !cfg.StrictMode["search_scholarly"],
	})

	r.Register("audiogen-primary", backend.NewHTTPAudioGenAdapter("audiogen-primary", cfg.AudioGenURL, cfg.RequestTimeout))
	r.SetPolicy(backend.CapGenerateAudio, router.Policy{
		BackendIDs:      []string{"audiogen-primary"},
		FallbackEnabled: !cfg.StrictMode["generate_audio"],
	})

	return nil
}
