// Package config loads ragtrack settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Search backends.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// MCP server transports.
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
)

// Config holds the application configuration.
type Config struct {
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Store    StoreConfig    `yaml:"store"`
	Chunking ChunkingConfig `yaml:"chunking,omitempty"`
	Search   SearchConfig   `yaml:"search,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
	GitHub   GitHubConfig   `yaml:"github,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`

	// Timeout bounds every outbound request (fetch, embedding, chat).
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// OpenAIConfig configures the OpenAI-compatible endpoint used for embeddings and chat.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url,omitempty"` // any OpenAI-compatible server
	EmbedModel string `yaml:"embed_model"`
	ChatModel  string `yaml:"chat_model"`
	BatchSize  int    `yaml:"batch_size,omitempty"`
}

// StoreConfig locates the persisted store.
type StoreConfig struct {
	// Path to the store file. If empty, uses ~/.ragtrack/store.bin
	Path string `yaml:"path,omitempty"`
}

// ChunkingConfig sets the sliding window in bytes.
type ChunkingConfig struct {
	Window int `yaml:"window,omitempty"`
	Stride int `yaml:"stride,omitempty"`
}

// SearchConfig selects the retrieval backend.
type SearchConfig struct {
	Backend string `yaml:"backend,omitempty"` // "memory" | "qdrant"
	TopK    int    `yaml:"top_k,omitempty"`
}

// QdrantConfig locates the optional Qdrant mirror.
type QdrantConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"` // gRPC port
	// Mirror copies every added source to Qdrant even when searching in memory.
	Mirror bool `yaml:"mirror,omitempty"`
}

// GitHubConfig authenticates README fetches.
type GitHubConfig struct {
	Token string `yaml:"token,omitempty"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Port string `yaml:"port,omitempty"`
	Mode string `yaml:"mode,omitempty"` // "stdio" | "http"
}

// NotFoundError is returned when an explicitly requested config file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s", e.Path)
}

// ErrMissingAPIKey is returned by RequireOpenAI when no endpoint is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY environment variable is required")

// DefaultDir returns ~/.ragtrack.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ragtrack"
	}
	return filepath.Join(home, ".ragtrack")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads path (or the default location when empty), applies environment
// overrides and defaults, and validates the result.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.Store.Path = expandPath(cfg.Store.Path, filepath.Dir(path))
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, &NotFoundError{Path: path}
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("RAGTRACK_EMBED_MODEL", &c.OpenAI.EmbedModel)
	str("RAGTRACK_CHAT_MODEL", &c.OpenAI.ChatModel)
	str("RAGTRACK_SEARCH_BACKEND", &c.Search.Backend)
	str("QDRANT_HOST", &c.Qdrant.Host)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("PORT", &c.Server.Port)
	if v := getenv("RAGTRACK_STORE"); v != "" {
		c.Store.Path = expandPath(v, "")
	}

	if v := getenv("QDRANT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid QDRANT_PORT %q: %w", v, err)
		}
		c.Qdrant.Port = port
	}
	if v := getenv("RAGTRACK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RAGTRACK_TIMEOUT %q: %w", v, err)
		}
		c.Timeout = d
	}
	if getenv("SERVER_MODE") == "true" {
		c.Server.Mode = ModeHTTP
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.OpenAI.EmbedModel == "" {
		c.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.BatchSize == 0 {
		c.OpenAI.BatchSize = 64
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(DefaultDir(), "store.bin")
	}
	if c.Chunking.Window == 0 {
		c.Chunking.Window = 800
	}
	if c.Chunking.Stride == 0 {
		c.Chunking.Stride = 600
	}
	if c.Search.Backend == "" {
		c.Search.Backend = BackendMemory
	}
	if c.Search.TopK == 0 {
		c.Search.TopK = 8
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "localhost"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = ModeStdio
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Chunking.Window <= 0 || c.Chunking.Stride <= 0 {
		return fmt.Errorf("chunking window and stride must be positive")
	}
	if c.Chunking.Stride > c.Chunking.Window {
		return fmt.Errorf("chunking stride %d exceeds window %d", c.Chunking.Stride, c.Chunking.Window)
	}
	if c.OpenAI.BatchSize < 0 {
		return fmt.Errorf("openai.batch_size must not be negative")
	}
	switch c.Search.Backend {
	case BackendMemory, BackendQdrant:
	default:
		return fmt.Errorf("unknown search backend %q (want %q or %q)", c.Search.Backend, BackendMemory, BackendQdrant)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive")
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant.port %d out of range", c.Qdrant.Port)
	}
	switch c.Server.Mode {
	case ModeStdio, ModeHTTP:
	default:
		return fmt.Errorf("unknown server mode %q", c.Server.Mode)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// RequireOpenAI reports an error when neither an API key nor a base URL is set.
func (c *Config) RequireOpenAI() error {
	if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// UsesQdrant reports whether any command needs a Qdrant connection.
func (c *Config) UsesQdrant() bool {
	return c.Search.Backend == BackendQdrant || c.Qdrant.Mirror
}

// expandPath resolves ~ and, when base is set, paths relative to the config file.
func expandPath(p, base string) string {
	if p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if base != "" && !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return p
}
