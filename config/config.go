// Package config loads the daemon configuration from a YAML file with
// environment overrides for secrets. Every tunable has a documented
// default; an absent file yields the defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Memory  MemoryConfig  `yaml:"memory"`
	Agent   AgentConfig   `yaml:"agent"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the websocket gateway.
type ServerConfig struct {
	// Addr is the listen address. Default ":8080".
	Addr string `yaml:"addr"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	// Provider is one of "openai", "anthropic", "mock". "openai"
	// covers any OpenAI-compatible endpoint, including Ollama.
	// Default "openai".
	Provider string `yaml:"provider"`

	// BaseURL overrides the provider endpoint. For a local Ollama:
	// "http://localhost:11434/v1".
	BaseURL string `yaml:"base_url"`

	// Model is the completion model name. Default "gpt-4o-mini" for
	// openai, "claude-sonnet-4-5" for anthropic.
	Model string `yaml:"model"`

	// APIKey is normally supplied via OPENAI_API_KEY or
	// ANTHROPIC_API_KEY instead of the file.
	APIKey string `yaml:"api_key"`
}

// MemoryConfig configures the vector memory store.
type MemoryConfig struct {
	// Backend is "flat" or "chromem". Default "flat".
	Backend string `yaml:"backend"`

	// Dir is where the index persists. Default "data/memory".
	Dir string `yaml:"dir"`

	// Metric is "cosine" or "l2", flat backend only. Default "cosine".
	Metric string `yaml:"metric"`

	// Embedder is "openai", "mock", or "onnx". Default "openai".
	Embedder string `yaml:"embedder"`

	// EmbeddingModel names the embedding model. Default
	// "nomic-embed-text".
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingBaseURL overrides the embedding endpoint; defaults to
	// the LLM base URL.
	EmbeddingBaseURL string `yaml:"embedding_base_url"`

	// Dimensions is the embedding vector size. Default 768
	// (nomic-embed-text).
	Dimensions int `yaml:"dimensions"`

	// CacheBytes bounds the in-process embedding cache. Default 64 MiB.
	CacheBytes int64 `yaml:"cache_bytes"`

	// ONNX configures the local embedder; used only when Embedder is
	// "onnx" and the binary is built with the onnx tag.
	ONNX ONNXConfig `yaml:"onnx"`

	// SaveOnAdd persists after every add instead of per turn.
	SaveOnAdd bool `yaml:"save_on_add"`
}

// ONNXConfig locates the local embedding model.
type ONNXConfig struct {
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	// MaxIterations caps tool-call cycles per turn. Default 10.
	MaxIterations int `yaml:"max_iterations"`

	// DecisionRetries is the malformed-reply retry budget. Default 1.
	DecisionRetries int `yaml:"decision_retries"`

	// HistoryWindow is the decision-context turn window. Default 12.
	HistoryWindow int `yaml:"history_window"`

	// RetrieveK is the memory top-k per recall. Default 5.
	RetrieveK int `yaml:"retrieve_k"`

	// CheckpointEvery pauses after this many searches. Default 5.
	CheckpointEvery int `yaml:"checkpoint_every"`
}

// IngestConfig configures document indexing.
type IngestConfig struct {
	// Dir is the documents directory; empty disables ingestion.
	Dir string `yaml:"dir"`

	// Watch re-indexes on file changes. Default false.
	Watch bool `yaml:"watch"`

	// ChunkSize and ChunkOverlap are in words. Defaults 256 and 40.
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	// Level is trace|debug|info|warn|error. Default "info".
	Level string `yaml:"level"`

	// Pretty enables the human console writer. Default false (JSON).
	Pretty bool `yaml:"pretty"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Memory: MemoryConfig{
			Backend:        "flat",
			Dir:            "data/memory",
			Metric:         "cosine",
			Embedder:       "openai",
			EmbeddingModel: "nomic-embed-text",
			Dimensions:     768,
			CacheBytes:     64 << 20,
		},
		Agent: AgentConfig{
			MaxIterations:   10,
			DecisionRetries: 1,
			HistoryWindow:   12,
			RetrieveK:       5,
			CheckpointEvery: 5,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, applies
// environment overrides, and validates. An empty path or missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv pulls secrets from the environment. Environment values win
// over file values.
func applyEnv(cfg *Config) {
	switch cfg.LLM.Provider {
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	default:
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	}
}

// Validate rejects configurations the daemon cannot serve.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Memory.Backend {
	case "flat", "chromem":
	default:
		return fmt.Errorf("config: unknown memory backend %q", c.Memory.Backend)
	}
	switch c.Memory.Metric {
	case "cosine", "l2":
	default:
		return fmt.Errorf("config: unknown metric %q", c.Memory.Metric)
	}
	switch c.Memory.Embedder {
	case "openai", "mock", "onnx":
	default:
		return fmt.Errorf("config: unknown embedder %q", c.Memory.Embedder)
	}
	if c.Memory.Dimensions <= 0 {
		return fmt.Errorf("config: dimensions must be positive, got %d", c.Memory.Dimensions)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("config: max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	return nil
}
