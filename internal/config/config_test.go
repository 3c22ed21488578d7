package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromRepoConfig(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("DB_PASSWORD", "")

	cfg, err := LoadFrom("local", filepath.Join("..", "..", "config"))
	require.NoError(t, err)

	assert.Equal(t, "phishbox", cfg.DB.Password)
	assert.Equal(t, 50, cfg.Suggest.BatchSize)
	assert.Equal(t, "memory", cfg.Agentic.Store)
	assert.Equal(t, 60*time.Second, cfg.LLM.StepTimeout())
	assert.NotEmpty(t, cfg.Detectors.Models)
}

func TestLoadFromClampsBatchSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("suggest:\n  batch_size: 500\n"), 0o600))

	cfg, err := LoadFrom("local", dir)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Suggest.BatchSize)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Enrichment.Timeout())
}

func TestOverrideLLMFromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OLLAMA_URL", "http://gpu-box:11434")

	var cfg LLMConfig
	OverrideLLMFromEnv(&cfg)

	assert.Equal(t, "anthropic", cfg.Hosted.Provider)
	assert.Equal(t, "sk-ant", cfg.Hosted.APIKey)
	assert.Equal(t, "http://gpu-box:11434", cfg.Local.URL)
}
