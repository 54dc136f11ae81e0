package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/guidelines/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) Option {
	return WithLookup(func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", env(nil), WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, EngineBadger, cfg.Storage)
	assert.Equal(t, "./guidelines-data", cfg.DataDir)
	assert.Equal(t, time.Hour, cfg.Session.Timeout)
	assert.Equal(t, 100, cfg.Session.Capacity)
	assert.Equal(t, 10, cfg.Session.HistoryLimit)
	assert.Equal(t, 100, cfg.Embedding.BatchSize)
	assert.InDelta(t, 0.5, cfg.Search.SimilarityThreshold, 1e-6)
	assert.Equal(t, 7, cfg.Search.DefaultTopK)
	assert.Equal(t, 10, cfg.Search.FollowUpTopK)
	assert.Equal(t, []ai.ProviderName{ai.ProviderGemini, ai.ProviderOpenAI, ai.ProviderAnthropic, ai.ProviderMock}, cfg.AI.Priority)
	assert.True(t, cfg.AI.EnableMock)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "guidelines.yaml", `
data_dir: /var/lib/guidelines
storage: sqlite
worker_pool_size: 4
ai:
  priority: [openai, mock]
  request_timeout: 45s
  openai:
    model: gpt-4o-mini
session:
  timeout: 30m
  capacity: 5
search:
  similarity_threshold: 0.3
`)
	cfg, err := Load(path, env(nil), WithEnvFile(""))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/guidelines", cfg.DataDir)
	assert.Equal(t, EngineSQLite, cfg.Storage)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, []ai.ProviderName{ai.ProviderOpenAI, ai.ProviderMock}, cfg.AI.Priority)
	assert.Equal(t, 45*time.Second, cfg.AI.RequestTimeout)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.OpenAI.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.OpenAI.EmbeddingModel, "unset keys keep defaults")
	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 5, cfg.Session.Capacity)
	assert.Equal(t, 10, cfg.Session.HistoryLimit)
	assert.InDelta(t, 0.3, cfg.Search.SimilarityThreshold, 1e-6)
}

func TestLoad_Environment(t *testing.T) {
	cfg, err := Load("", WithEnvFile(""), env(map[string]string{
		EnvGoogleKey:         "google-key",
		EnvOpenAIKey:         "openai-key",
		EnvOpenAIBaseURL:     "http://localhost:11434",
		EnvPriority:          "openai, gemini ,mock",
		EnvDefaultProvider:   "gemini",
		EnvRequestTimeout:    "90s",
		EnvRequestsPerSecond: "2.5",
		EnvSessionTimeout:    "600",
		EnvMaxSessions:       "20",
		EnvHistoryLimit:      "4",
		EnvBatchSize:         "25",
		EnvThreshold:         "0.65",
		EnvDefaultTopK:       "5",
		EnvFollowUpTopK:      "8",
		EnvDataDir:           "/tmp/store",
		EnvStorage:           "SQLite",
		EnvWorkerPoolSize:    "3",
		EnvEmbeddingModel:    "custom-embed",
	}))
	require.NoError(t, err)

	assert.Equal(t, "google-key", cfg.AI.Gemini.APIKey)
	assert.Equal(t, "openai-key", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "http://localhost:11434/v1", cfg.AI.OpenAI.BaseURL)
	assert.Equal(t, []ai.ProviderName{ai.ProviderOpenAI, ai.ProviderGemini, ai.ProviderMock}, cfg.AI.Priority)
	assert.Equal(t, ai.ProviderGemini, cfg.AI.DefaultProvider)
	assert.Equal(t, 90*time.Second, cfg.AI.RequestTimeout)
	assert.InDelta(t, 2.5, cfg.AI.Anthropic.RequestsPerSecond, 1e-9)
	assert.Equal(t, 10*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 20, cfg.Session.Capacity)
	assert.Equal(t, 4, cfg.Session.HistoryLimit)
	assert.Equal(t, 25, cfg.Embedding.BatchSize)
	assert.InDelta(t, 0.65, cfg.Search.SimilarityThreshold, 1e-6)
	assert.Equal(t, 5, cfg.Search.DefaultTopK)
	assert.Equal(t, 8, cfg.Search.FollowUpTopK)
	assert.Equal(t, "/tmp/store", cfg.DataDir)
	assert.Equal(t, EngineSQLite, cfg.Storage)
	assert.Equal(t, 3, cfg.WorkerPoolSize)
	// gemini is the default provider and has a key, so it embeds
	assert.Equal(t, "custom-embed", cfg.AI.Gemini.EmbeddingModel)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.OpenAI.EmbeddingModel)
}

func TestLoad_GeminiKeyWinsOverGoogleKey(t *testing.T) {
	cfg, err := Load("", WithEnvFile(""), env(map[string]string{
		EnvGoogleKey: "google-key",
		EnvGeminiKey: "gemini-key",
	}))
	require.NoError(t, err)
	assert.Equal(t, "gemini-key", cfg.AI.Gemini.APIKey)
}

func TestLoad_DotEnvBelowProcessEnv(t *testing.T) {
	dotenv := writeFile(t, ".env", "ANTHROPIC_API_KEY=from-file\nMAX_SESSIONS=7\nDEFAULT_TOP_K=4\n")
	cfg, err := Load("", WithEnvFile(dotenv), env(map[string]string{
		EnvMaxSessions: "9",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.AI.Anthropic.APIKey)
	assert.Equal(t, 9, cfg.Session.Capacity)
	assert.Equal(t, 4, cfg.Search.DefaultTopK)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	_, err := Load("", WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), env(nil))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		vars map[string]string
	}{
		{"missing file", filepath.Join(os.TempDir(), "does-not-exist-guidelines.yaml"), nil},
		{"bad integer", "", map[string]string{EnvMaxSessions: "many"}},
		{"bad threshold", "", map[string]string{EnvThreshold: "high"}},
		{"bad timeout", "", map[string]string{EnvSessionTimeout: "forever"}},
		{"unknown engine", "", map[string]string{EnvStorage: "postgres"}},
		{"threshold out of range", "", map[string]string{EnvThreshold: "1.5"}},
		{"zero batch", "", map[string]string{EnvBatchSize: "0"}},
		{"unknown provider", "", map[string]string{EnvPriority: "gemini,watson"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, WithEnvFile(""), env(tt.vars))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "storage: [unterminated\n")
	_, err := Load(path, WithEnvFile(""), env(nil))
	assert.Error(t, err)
}
