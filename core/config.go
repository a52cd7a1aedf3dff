package core

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of environment the gateway reads at startup
// (spec.md §6 "Environment"). Default supplies baseline values, an
// optional YAML file overlays them for local development, and ROVERSEER_*
// environment variables (read by applyEnv for most, not all, fields)
// override both.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	LLMBackendURLs    []string `yaml:"llm_backend_urls"`
	// LLMProviders parallels LLMBackendURLs: "openai" (default), "anthropic",
	// or "bedrock". A shorter list than LLMBackendURLs pads with "openai".
	LLMProviders      []string `yaml:"llm_providers"`
	AnthropicAPIKey   string   `yaml:"anthropic_api_key"`
	BedrockRegion     string   `yaml:"bedrock_region"`
	SearchBackendURL  string   `yaml:"search_backend_url"`
	STTBackendURL     string   `yaml:"stt_backend_url"`
	TTSBackendURL     string   `yaml:"tts_backend_url"`
	AudioGenURL       string   `yaml:"audio_gen_url"`

	VoiceDir     string `yaml:"voice_dir"`
	// ModelDir is where download_model jobs (spec.md §4.C) write fetched
	// artifacts; a job's temp file lives alongside its final name here
	// until the download completes, and is removed on cancellation or
	// failure.
	ModelDir string `yaml:"model_dir"`
	// ModelRegistryURL is the base URL download_model resolves model_id
	// against (POST /jobs/download_model only carries model_id and name,
	// spec.md §6, so the gateway owns where model ids are fetched from).
	ModelRegistryURL string `yaml:"model_registry_url"`
	AudioDevice      string `yaml:"audio_device"`
	LogDir           string `yaml:"log_dir"`

	// WorkflowRedisURL, when set, checkpoints workflow execution snapshots
	// to Redis; the engine does not load them back after a restart. Empty
	// means in-memory only (spec.md §4.E).
	WorkflowRedisURL string `yaml:"workflow_redis_url"`

	// StrictMode, keyed by capability name, disables fallback for that
	// capability (spec.md §3 Selection Policy "fallback_enabled").
	StrictMode map[string]bool `yaml:"strict_mode"`

	RequestTimeout  time.Duration `yaml:"request_timeout"`
	HealthCheckEvery time.Duration `yaml:"health_check_every"`

	HistoryMaxTurns int `yaml:"history_max_turns"`
	JobRetentionCap int `yaml:"job_retention_cap"`
}

// ProviderFor returns the LLM provider kind configured for backend slot i
// ("openai", "anthropic", or "bedrock"), defaulting to "openai" when
// LLMProviders is shorter than LLMBackendURLs or unset.
func (c *Config) ProviderFor(i int) string {
	if i < len(c.LLMProviders) && c.LLMProviders[i] != "" {
		return c.LLMProviders[i]
	}
	return "openai"
}

// Default returns the baseline configuration before environment or file
// overlays are applied.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8080",
		LLMBackendURLs:   []string{"http://localhost:11434"},
		SearchBackendURL: "http://localhost:9200",
		STTBackendURL:    "http://localhost:9000",
		TTSBackendURL:    "http://localhost:9001",
		AudioGenURL:      "http://localhost:9002",
		VoiceDir:         "./voices",
		ModelDir:         "./models",
		ModelRegistryURL: "https://huggingface.co",
		AudioDevice:      "default",
		LogDir:           "./logs",
		StrictMode:       map[string]bool{},
		RequestTimeout:   30 * time.Second,
		HealthCheckEvery: 30 * time.Second,
		HistoryMaxTurns:  20,
		JobRetentionCap:  200,
	}
}

// Load builds a Config from defaults, an optional YAML file
// (ROVERSEER_CONFIG_FILE), then ROVERSEER_* environment variables, in
// that priority order (env wins), matching the teacher's
// Default*Config()-then-override pattern.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("ROVERSEER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, Wrap("config.Load", KindInputInvalid, "reading config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, Wrap("config.Load", KindInputInvalid, "parsing config file", err)
		}
	}

	applyEnv(cfg)

	if len(cfg.LLMBackendURLs) == 0 {
		return nil, New("config.Load", KindInputInvalid, "at least one LLM backend URL is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ROVERSEER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ROVERSEER_LLM_BACKEND_URLS"); v != "" {
		cfg.LLMBackendURLs = strings.Split(v, ",")
	}
	if v := os.Getenv("ROVERSEER_LLM_PROVIDERS"); v != "" {
		cfg.LLMProviders = strings.Split(v, ",")
	}
	if v := os.Getenv("ROVERSEER_ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("ROVERSEER_BEDROCK_REGION"); v != "" {
		cfg.BedrockRegion = v
	}
	if v := os.Getenv("ROVERSEER_SEARCH_BACKEND_URL"); v != "" {
		cfg.SearchBackendURL = v
	}
	if v := os.Getenv("ROVERSEER_STT_BACKEND_URL"); v != "" {
		cfg.STTBackendURL = v
	}
	if v := os.Getenv("ROVERSEER_TTS_BACKEND_URL"); v != "" {
		cfg.TTSBackendURL = v
	}
	if v := os.Getenv("ROVERSEER_AUDIO_GEN_URL"); v != "" {
		cfg.AudioGenURL = v
	}
	if v := os.Getenv("ROVERSEER_VOICE_DIR"); v != "" {
		cfg.VoiceDir = v
	}
	if v := os.Getenv("ROVERSEER_MODEL_DIR"); v != "" {
		cfg.ModelDir = v
	}
	if v := os.Getenv("ROVERSEER_MODEL_REGISTRY_URL"); v != "" {
		cfg.ModelRegistryURL = v
	}
	if v := os.Getenv("ROVERSEER_AUDIO_DEVICE"); v != "" {
		cfg.AudioDevice = v
	}
	if v := os.Getenv("ROVERSEER_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("ROVERSEER_WORKFLOW_REDIS_URL"); v != "" {
		cfg.WorkflowRedisURL = v
	}
	if v := os.Getenv("ROVERSEER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("ROVERSEER_JOB_RETENTION_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JobRetentionCap = n
		}
	}
	// ROVERSEER_STRICT_MODE="generate_text=true,search_web=false"
	if v := os.Getenv("ROVERSEER_STRICT_MODE"); v != "" {
		for _, pair := range strings.Split(v, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				continue
			}
			b, err := strconv.ParseBool(kv[1])
			if err != nil {
				continue
			}
			cfg.StrictMode[strings.TrimSpace(kv[0])] = b
		}
	}
}
