package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"ragchat/internal/domain"
)

// FileName is the config file looked up in the working directory.
const FileName = "ragchat.yaml"

// LoaderConfig configures how sources are fetched.
type LoaderConfig struct {
	// Selector is the CSS selector extracted from web pages.
	Selector string `yaml:"selector"`
	// Format is text, markdown or html.
	Format    string `yaml:"format"`
	UserAgent string `yaml:"user_agent,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type         string   `yaml:"type"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators,omitempty"`
	// CJK selects the separator set that also breaks on full-width punctuation.
	CJK bool `yaml:"cjk"`
	// Length is chars or tokens.
	Length            string `yaml:"length"`
	Encoding          string `yaml:"encoding"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	// Cache is none, memory or redis.
	Cache        string `yaml:"cache"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path persists collections to disk; empty keeps them in memory.
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL       string `yaml:"url"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// StoreConfig selects and configures the vector store implementation.
type StoreConfig struct {
	Type       string         `yaml:"type"`
	Collection string         `yaml:"collection"`
	QuotaLimit int            `yaml:"quota_limit"`
	Chromem    *ChromemConfig `yaml:"chromem,omitempty"`
	Qdrant     *QdrantConfig  `yaml:"qdrant,omitempty"`
}

// RetrieverConfig configures the two-phase retrieval.
type RetrieverConfig struct {
	K               int  `yaml:"k"`
	KeywordK        int  `yaml:"keyword_k"`
	DisableKeywords bool `yaml:"disable_keywords"`
}

// GeneratorConfig configures the chat model and its prompt.
type GeneratorConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	Model        string  `yaml:"model"`
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt,omitempty"`
	UserPrompt   string  `yaml:"user_prompt,omitempty"`
	HistoryTurns int     `yaml:"history_turns"`
	NoAnswer     string  `yaml:"no_answer,omitempty"`
}

// SessionConfig configures the interactive loop.
type SessionConfig struct {
	HistorySize   int `yaml:"history_size"`
	TypingDelayMS int `yaml:"typing_delay_ms"`
}

// TimeoutsConfig bounds every external call.
type TimeoutsConfig struct {
	LoaderSecs     int `yaml:"loader_secs"`
	EmbeddingSecs  int `yaml:"embedding_secs"`
	StoreSecs      int `yaml:"store_secs"`
	GenerationSecs int `yaml:"generation_secs"`
}

func (t TimeoutsConfig) Loader() time.Duration     { return secs(t.LoaderSecs) }
func (t TimeoutsConfig) Embedding() time.Duration  { return secs(t.EmbeddingSecs) }
func (t TimeoutsConfig) Store() time.Duration      { return secs(t.StoreSecs) }
func (t TimeoutsConfig) Generation() time.Duration { return secs(t.GenerationSecs) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// RedisConfig is used by the redis embedding cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Loader    LoaderConfig    `yaml:"loader"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Store     StoreConfig     `yaml:"store"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Generator GeneratorConfig `yaml:"generator"`
	Session   SessionConfig   `yaml:"session"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Redis     RedisConfig     `yaml:"redis"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, domain.Wrap(domain.ErrConfig, "config.load", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.Wrap(domain.ErrConfig, "config.load", fmt.Errorf("%s: %w", path, err))
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./ragchat.yaml first, then ~/.config/ragchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	if _, err := os.Stat(FileName); err == nil {
		cfg, err := Load(FileName)
		return cfg, FileName, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", domain.Wrap(domain.ErrConfig, "config.load", err)
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.Wrap(domain.ErrConfig, "config.save", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return domain.Wrap(domain.ErrConfig, "config.save", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.Wrap(domain.ErrConfig, "config.save", err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragchat", "config.yaml"), nil
}

// Default returns the configuration used when no file exists: OpenAI
// embeddings and chat, an in-memory store and recursive chunking.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder:  EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		Chunker:   ChunkerConfig{Type: "recursive"},
		Store:     StoreConfig{Type: "memory"},
		Generator: GeneratorConfig{},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Loader.Selector == "" {
		cfg.Loader.Selector = "body"
	}
	if cfg.Loader.Format == "" {
		cfg.Loader.Format = "text"
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 && cfg.Chunker.ChunkSize > 200 {
		cfg.Chunker.ChunkOverlap = 200
	}
	if cfg.Chunker.Length == "" {
		cfg.Chunker.Length = "chars"
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "cl100k_base"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Embedder.Cache == "" {
		cfg.Embedder.Cache = "none"
	}

	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = "ragchat"
	}
	if cfg.Store.QuotaLimit == 0 {
		cfg.Store.QuotaLimit = 600
	}
	if cfg.Store.Type == "qdrant" && cfg.Store.Qdrant == nil {
		cfg.Store.Qdrant = &QdrantConfig{}
	}
	if cfg.Store.Qdrant != nil && cfg.Store.Qdrant.URL == "" {
		cfg.Store.Qdrant.URL = "http://localhost:6333"
	}

	if cfg.Retriever.K == 0 {
		cfg.Retriever.K = 5
	}
	if cfg.Retriever.KeywordK == 0 {
		cfg.Retriever.KeywordK = 3
	}

	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o-mini"
	}
	if cfg.Generator.HistoryTurns == 0 {
		cfg.Generator.HistoryTurns = 3
	}

	if cfg.Session.HistorySize == 0 {
		cfg.Session.HistorySize = 10
	}

	if cfg.Timeouts.LoaderSecs == 0 {
		cfg.Timeouts.LoaderSecs = 30
	}
	if cfg.Timeouts.EmbeddingSecs == 0 {
		cfg.Timeouts.EmbeddingSecs = 30
	}
	if cfg.Timeouts.StoreSecs == 0 {
		cfg.Timeouts.StoreSecs = 15
	}
	if cfg.Timeouts.GenerationSecs == 0 {
		cfg.Timeouts.GenerationSecs = 120
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
}

// Validate reports every invalid setting at once, wrapped in ErrConfig.
func (c *AppConfig) Validate() error {
	var problems []error
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	switch c.Loader.Format {
	case "text", "markdown", "html":
	default:
		bad("loader.format %q: want text, markdown or html", c.Loader.Format)
	}

	switch c.Chunker.Type {
	case "recursive":
		if c.Chunker.ChunkSize <= 0 {
			bad("chunker.chunk_size must be positive")
		}
		if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
			bad("chunker.chunk_overlap %d must be in [0, chunk_size)", c.Chunker.ChunkOverlap)
		}
		if c.Chunker.Length != "chars" && c.Chunker.Length != "tokens" {
			bad("chunker.length %q: want chars or tokens", c.Chunker.Length)
		}
	case "sentence":
		if c.Chunker.OverlapSentences < 0 || c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk {
			bad("chunker.overlap_sentences must be in [0, sentences_per_chunk)")
		}
	default:
		bad("unknown chunker %q", c.Chunker.Type)
	}

	switch c.Embedder.Type {
	case "openai", "tfidf":
	default:
		bad("unknown embedder %q", c.Embedder.Type)
	}
	switch c.Embedder.Cache {
	case "none", "memory", "redis":
	default:
		bad("embedder.cache %q: want none, memory or redis", c.Embedder.Cache)
	}

	switch c.Store.Type {
	case "memory", "chromem", "qdrant":
	default:
		bad("unknown vector store %q", c.Store.Type)
	}
	if c.Embedder.Type == "tfidf" && c.persistentStore() {
		bad("embedder.type tfidf is refitted on every run and cannot query a persistent %s store", c.Store.Type)
	}
	if c.Store.QuotaLimit < 0 {
		bad("store.quota_limit must be positive")
	}

	if c.Retriever.K < 0 || c.Retriever.KeywordK < 0 || c.Retriever.KeywordK >= c.Retriever.K {
		bad("retriever.keyword_k (%d) must be smaller than retriever.k (%d)", c.Retriever.KeywordK, c.Retriever.K)
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		bad("generator.temperature %.2f out of [0, 2]", c.Generator.Temperature)
	}
	if c.Session.TypingDelayMS < 0 {
		bad("session.typing_delay_ms must not be negative")
	}

	if len(problems) > 0 {
		return domain.Wrap(domain.ErrConfig, "config", errors.Join(problems...))
	}
	return nil
}

// persistentStore reports whether the configured store outlives the process.
func (c *AppConfig) persistentStore() bool {
	switch c.Store.Type {
	case "qdrant":
		return true
	case "chromem":
		return c.Store.Chromem != nil && c.Store.Chromem.Path != ""
	}
	return false
}
