package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValidShapeWithKeySet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "test-key"

	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "sqlite", cfg.VectorStore.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 8, cfg.Execution.WorkerPoolSize)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "fake"
	cfg.Execution.WorkerPoolSize = 4
	path := filepath.Join(t.TempDir(), "nested", "evolve.yaml")

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fake", loaded.LLM.Provider)
	assert.Equal(t, 4, loaded.Execution.WorkerPoolSize)
}

func TestLoadAppliesGeminiAPIKeyEnvOverride(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "from-env", cfg.Embedding.APIKey)
}

func TestLoadParsesPartialYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: fake\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fake", cfg.LLM.Provider)
	// Untouched fields still carry their defaults.
	assert.Equal(t, "sqlite", cfg.VectorStore.Backend)
	assert.Equal(t, 8, cfg.Execution.WorkerPoolSize)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "made-up"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid LLM provider")
}

func TestValidateRejectsMissingGeminiKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestValidateRejectsUnknownVectorStoreBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "k"
	cfg.VectorStore.Backend = "redis"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector store backend")
}

func TestGetTimeoutsFallBackOnUnparseableDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "not-a-duration"
	cfg.Execution.PhaseTimeout = "also-bad"
	cfg.Execution.LLMCallTimeout = "nope"

	assert.Equal(t, 120000000000, int(cfg.GetLLMTimeout()))
	assert.True(t, cfg.GetPhaseTimeout() > 0)
	assert.True(t, cfg.GetLLMCallTimeout() > 0)
}
