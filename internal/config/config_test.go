package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbedModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.ChatModel)
	assert.Equal(t, 800, cfg.Chunking.Window)
	assert.Equal(t, 600, cfg.Chunking.Stride)
	assert.Equal(t, BackendMemory, cfg.Search.Backend)
	assert.Equal(t, 8, cfg.Search.TopK)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, ModeStdio, cfg.Server.Mode)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "store.bin", filepath.Base(cfg.Store.Path))
	assert.False(t, cfg.UsesQdrant())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
openai:
  api_key: sk-file
  chat_model: gpt-4o
store:
  path: ./data/store.bin
chunking:
  window: 1000
  stride: 500
search:
  backend: qdrant
  top_k: 4
qdrant:
  host: qdrant.internal
  port: 7000
timeout: 15s
`)

	cfg, err := load(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.ChatModel)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data", "store.bin"), cfg.Store.Path)
	assert.Equal(t, 1000, cfg.Chunking.Window)
	assert.Equal(t, 500, cfg.Chunking.Stride)
	assert.Equal(t, BackendQdrant, cfg.Search.Backend)
	assert.Equal(t, 4, cfg.Search.TopK)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.True(t, cfg.UsesQdrant())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "openai:\n  api_key: sk-file\n")

	cfg, err := load(path, env(map[string]string{
		"OPENAI_API_KEY":          "sk-env",
		"OPENAI_BASE_URL":         "http://localhost:11434/v1",
		"RAGTRACK_EMBED_MODEL":    "nomic-embed-text",
		"RAGTRACK_STORE":          "/tmp/ragtrack.bin",
		"RAGTRACK_SEARCH_BACKEND": "qdrant",
		"QDRANT_HOST":             "db",
		"QDRANT_PORT":             "6000",
		"GITHUB_TOKEN":            "ghp_x",
		"RAGTRACK_TIMEOUT":        "2m",
		"SERVER_MODE":             "true",
		"PORT":                    "9090",
	}))
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "http://localhost:11434/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.OpenAI.EmbedModel)
	assert.Equal(t, "/tmp/ragtrack.bin", cfg.Store.Path)
	assert.Equal(t, BackendQdrant, cfg.Search.Backend)
	assert.Equal(t, "db", cfg.Qdrant.Host)
	assert.Equal(t, 6000, cfg.Qdrant.Port)
	assert.Equal(t, "ghp_x", cfg.GitHub.Token)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, ModeHTTP, cfg.Server.Mode)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestLoad_InvalidEnv(t *testing.T) {
	_, err := load(writeConfig(t, ""), env(map[string]string{"QDRANT_PORT": "abc"}))
	assert.Error(t, err)

	_, err = load(writeConfig(t, ""), env(map[string]string{"RAGTRACK_TIMEOUT": "soon"}))
	assert.Error(t, err)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	require.Error(t, err)

	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := load(writeConfig(t, "openai: [unterminated"), env(nil))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"stride exceeds window", "chunking:\n  window: 100\n  stride: 200\n"},
		{"negative window", "chunking:\n  window: -1\n"},
		{"unknown backend", "search:\n  backend: bleve\n"},
		{"negative top_k", "search:\n  top_k: -3\n"},
		{"port out of range", "qdrant:\n  port: 70000\n"},
		{"unknown mode", "server:\n  mode: grpc\n"},
		{"negative timeout", "timeout: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeConfig(t, tt.yaml), env(nil))
			assert.Error(t, err)
		})
	}
}

func TestRequireOpenAI(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.RequireOpenAI(), ErrMissingAPIKey)

	cfg.OpenAI.BaseURL = "http://localhost:8000/v1"
	assert.NoError(t, cfg.RequireOpenAI())

	cfg = &Config{OpenAI: OpenAIConfig{APIKey: "sk"}}
	assert.NoError(t, cfg.RequireOpenAI())
}
