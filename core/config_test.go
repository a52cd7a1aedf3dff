package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ROVERSEER_LISTEN_ADDR", ":9090")
	t.Setenv("ROVERSEER_LLM_BACKEND_URLS", "http://a,http://b")
	t.Setenv("ROVERSEER_STRICT_MODE", "generate_text=true, search_web=false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.LLMBackendURLs)
	assert.True(t, cfg.StrictMode["generate_text"])
	assert.False(t, cfg.StrictMode["search_web"])
}

func TestDefaultHasSaneBaseline(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.LLMBackendURLs)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 200, cfg.JobRetentionCap)
	assert.Equal(t, "./models", cfg.ModelDir)
}

func TestLoadAppliesModelDirOverride(t *testing.T) {
	t.Setenv("ROVERSEER_LLM_BACKEND_URLS", "http://a")
	t.Setenv("ROVERSEER_MODEL_DIR", "/var/roverseer/models")
	t.Setenv("ROVERSEER_MODEL_REGISTRY_URL", "https://models.internal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/roverseer/models", cfg.ModelDir)
	assert.Equal(t, "https://models.internal", cfg.ModelRegistryURL)
}

func TestProviderForDefaultsToOpenAI(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "openai", cfg.ProviderFor(0))
	assert.Equal(t, "openai", cfg.ProviderFor(5))
}

func TestProviderForHonorsConfiguredSlots(t *testing.T) {
	cfg := Default()
	cfg.LLMProviders = []string{"anthropic", "", "bedrock"}

	assert.Equal(t, "anthropic", cfg.ProviderFor(0))
	assert.Equal(t, "openai", cfg.ProviderFor(1))
	assert.Equal(t, "bedrock", cfg.ProviderFor(2))
	assert.Equal(t, "openai", cfg.ProviderFor(3))
}

func TestLoadAppliesProviderEnvOverrides(t *testing.T) {
	t.Setenv("ROVERSEER_LLM_BACKEND_URLS", "http://a,http://b")
	t.Setenv("ROVERSEER_LLM_PROVIDERS", "openai,anthropic")
	t.Setenv("ROVERSEER_ANTHROPIC_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.ProviderFor(0))
	assert.Equal(t, "anthropic", cfg.ProviderFor(1))
	assert.Equal(t, "test-key", cfg.AnthropicAPIKey)
}
