// Package config loads bookrag configuration from a YAML file with
// environment overrides. A missing file yields defaults, so a fresh
// checkout works with nothing but OPENAI_API_KEY set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable carrying the oracle credential.
const EnvAPIKey = "OPENAI_API_KEY"

// ChunkingConfig controls the two-level chunking strategy.
// All sizes are estimated tokens (chars/4), soft bounds.
type ChunkingConfig struct {
	ChapterMinTokens   int `yaml:"chapter_min_tokens"`
	ChapterMaxTokens   int `yaml:"chapter_max_tokens"`
	ParagraphMinTokens int `yaml:"paragraph_min_tokens"`
	ParagraphMaxTokens int `yaml:"paragraph_max_tokens"`
	OverlapTokens      int `yaml:"overlap_tokens"`
}

// OpenAIConfig configures the embedding and chat-completion oracle.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	Dimensions     int    `yaml:"embedding_dimensions"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries"`
}

// EmbeddingConfig configures the adaptive batching client.
type EmbeddingConfig struct {
	// TokenCeilings are the per-request token budgets tried in order,
	// largest first.
	TokenCeilings []int `yaml:"token_ceilings"`
	MaxBatchItems int   `yaml:"max_batch_items"`
}

// SearchConfig configures the query engine.
type SearchConfig struct {
	DefaultResults int `yaml:"default_results"`
	MaxResults     int `yaml:"max_results"`
	// Oversample multiplies the candidate set when substring post-filters
	// are active, so filtering does not under-return.
	Oversample int `yaml:"oversample"`
}

// IndexConfig configures the indexing orchestrator.
type IndexConfig struct {
	FileTimeoutSecs int `yaml:"file_timeout_secs"`
}

// Config is the root configuration.
type Config struct {
	LibraryDir string `yaml:"library_dir"`
	DataDir    string `yaml:"data_dir"`

	Chunking  ChunkingConfig  `yaml:"chunking"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
}

// LedgerPath returns the location of the JSON index ledger.
func (c *Config) LedgerPath() string { return filepath.Join(c.DataDir, "ledger.json") }

// StorePath returns the location of the vector store database.
func (c *Config) StorePath() string { return filepath.Join(c.DataDir, "bookrag.db") }

// LockPath returns the location of the indexing lock file.
func (c *Config) LockPath() string { return filepath.Join(c.DataDir, "index.lock") }

// APIKey reads the oracle credential from the environment. LoadEnv should
// be called first so a local .env file is honored.
func (c *Config) APIKey() (string, error) {
	key := os.Getenv(EnvAPIKey)
	if key == "" {
		return "", fmt.Errorf("%s not set; export it or put it in a .env file", EnvAPIKey)
	}
	return key, nil
}

// LoadEnv loads a .env file from the working directory if one exists.
func LoadEnv() {
	_ = godotenv.Load()
}

// Load reads config from path. A missing file returns defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./bookrag.yaml first, then ~/.config/bookrag/config.yaml,
// falling back to defaults when neither exists.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat("bookrag.yaml"); err == nil {
		return Load("bookrag.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Default(), nil
	}
	userPath := filepath.Join(home, ".config", "bookrag", "config.yaml")
	if _, err := os.Stat(userPath); err == nil {
		return Load(userPath)
	}
	return Default(), nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	// LibraryDir stays empty until 'init' or the config file sets it, so
	// indexing against an unconfigured library fails loudly.
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".bookrag")
		} else {
			cfg.DataDir = ".bookrag"
		}
	}
	if cfg.Chunking.ChapterMinTokens == 0 {
		cfg.Chunking.ChapterMinTokens = 2000
	}
	if cfg.Chunking.ChapterMaxTokens == 0 {
		cfg.Chunking.ChapterMaxTokens = 5000
	}
	if cfg.Chunking.ParagraphMinTokens == 0 {
		cfg.Chunking.ParagraphMinTokens = 300
	}
	if cfg.Chunking.ParagraphMaxTokens == 0 {
		cfg.Chunking.ParagraphMaxTokens = 500
	}
	if cfg.Chunking.OverlapTokens == 0 {
		cfg.Chunking.OverlapTokens = 50
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.Dimensions == 0 {
		cfg.OpenAI.Dimensions = 1536
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 30
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = 3
	}
	if len(cfg.Embedding.TokenCeilings) == 0 {
		cfg.Embedding.TokenCeilings = []int{5500, 4000, 3000, 2000, 1500}
	}
	if cfg.Embedding.MaxBatchItems == 0 {
		cfg.Embedding.MaxBatchItems = 100
	}
	if cfg.Search.DefaultResults == 0 {
		cfg.Search.DefaultResults = 10
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 50
	}
	if cfg.Search.Oversample == 0 {
		cfg.Search.Oversample = 4
	}
	if cfg.Index.FileTimeoutSecs == 0 {
		cfg.Index.FileTimeoutSecs = 120
	}
}
