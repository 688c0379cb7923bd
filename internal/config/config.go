// Package config loads convrag configuration from defaults, a YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Engine        EngineConfig        `koanf:"engine"`
	Chunking      ChunkingConfig      `koanf:"chunking"`
	Index         IndexConfig         `koanf:"index"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Reranker      RerankerConfig      `koanf:"reranker"`
	LLM           LLMConfig           `koanf:"llm"`
	Prompts       PromptsConfig       `koanf:"prompts"`
	Recovery      RecoveryConfig      `koanf:"recovery"`
	Conversations ConversationsConfig `koanf:"conversations"`
	Logging       LoggingConfig       `koanf:"logging"`
	Telemetry     TelemetryConfig     `koanf:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
	MaxBodyBytes    string   `koanf:"max_body_bytes"`
}

// EngineConfig holds per-turn retrieval and budget settings.
type EngineConfig struct {
	PoolK                   int  `koanf:"pool_k"`
	TopK                    int  `koanf:"top_k"`
	ContextChars            int  `koanf:"context_chars"`
	HistoryTurns            int  `koanf:"history_turns"`
	HistoryChars            int  `koanf:"history_chars"`
	NormalizeHistoryAnswers bool `koanf:"normalize_history_answers"`
}

// ChunkingConfig holds the strategy cascade parameters.
type ChunkingConfig struct {
	MinChunks        int    `koanf:"min_chunks"`
	RecursiveSize    int    `koanf:"recursive_size"`
	RecursiveOverlap int    `koanf:"recursive_overlap"`
	TokenSize        int    `koanf:"token_size"`
	TokenOverlap     int    `koanf:"token_overlap"`
	TokenEncoding    string `koanf:"token_encoding"`
	TokenizerFile    string `koanf:"tokenizer_file"`
	TokenizerSize    int    `koanf:"tokenizer_size"`
	TokenizerOverlap int    `koanf:"tokenizer_overlap"`
	WordSize         int    `koanf:"word_size"`
	WordOverlap      int    `koanf:"word_overlap"`
}

// IndexConfig selects and configures the similarity index.
type IndexConfig struct {
	Provider     string `koanf:"provider"`
	Collection   string `koanf:"collection"`
	ChromemPath  string `koanf:"chromem_path"`
	ChromemGzip  bool   `koanf:"chromem_gzip"`
	QdrantHost   string `koanf:"qdrant_host"`
	QdrantPort   int    `koanf:"qdrant_port"`
	QdrantTLS    bool   `koanf:"qdrant_tls"`
	QdrantAPIKey Secret `koanf:"qdrant_api_key"`
	VectorSize   int    `koanf:"vector_size"`
}

// EmbeddingsConfig selects and configures the embedder.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// RerankerConfig selects the pairwise scorer.
type RerankerConfig struct {
	Provider string   `koanf:"provider"`
	BaseURL  string   `koanf:"base_url"`
	Model    string   `koanf:"model"`
	Timeout  Duration `koanf:"timeout"`
}

// LLMConfig configures the OpenAI-compatible chat model.
type LLMConfig struct {
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	APIKey            Secret   `koanf:"api_key"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
	MaxRetries        int      `koanf:"max_retries"`
	BreakerFailures   uint32   `koanf:"breaker_failures"`
	BreakerTimeout    Duration `koanf:"breaker_timeout"`
}

// PromptsConfig points at an optional prompt set overriding the built-in one.
type PromptsConfig struct {
	File string `koanf:"file"`
}

// RecoveryConfig controls the JSON-lines recovery logs.
type RecoveryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// ConversationsConfig selects where HTTP conversation history lives.
type ConversationsConfig struct {
	Store         string   `koanf:"store"`
	RedisAddr     string   `koanf:"redis_addr"`
	RedisPassword Secret   `koanf:"redis_password"`
	RedisDB       int      `koanf:"redis_db"`
	TTL           Duration `koanf:"ttl"`
	MaxTurns      int      `koanf:"max_turns"`
}

// LoggingConfig is the subset of logging settings exposed in the file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled     bool     `koanf:"enabled"`
	Endpoint    string   `koanf:"endpoint"`
	Protocol    string   `koanf:"protocol"`
	Insecure    bool     `koanf:"insecure"`
	SampleRate  float64  `koanf:"sample_rate"`
	ServiceName string   `koanf:"service_name"`
	Interval    Duration `koanf:"export_interval"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8088,
			ShutdownTimeout: Duration(10 * time.Second),
			RequestTimeout:  Duration(2 * time.Minute),
			MaxBodyBytes:    "10M",
		},
		Engine: EngineConfig{
			PoolK:        60,
			TopK:         5,
			ContextChars: 7000,
			HistoryTurns: 20,
			HistoryChars: 4000,
		},
		Chunking: ChunkingConfig{
			MinChunks:        300,
			RecursiveSize:    300,
			RecursiveOverlap: 50,
			TokenSize:        256,
			TokenOverlap:     32,
			TokenEncoding:    "cl100k_base",
			TokenizerSize:    256,
			TokenizerOverlap: 32,
			WordSize:         100,
			WordOverlap:      10,
		},
		Index: IndexConfig{
			Provider:    "chromem",
			Collection:  "rag_collection",
			ChromemPath: "data/index",
			ChromemGzip: true,
			QdrantHost:  "localhost",
			QdrantPort:  6334,
			VectorSize:  384,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:  "http://localhost:8080",
			CacheDir: "data/models",
		},
		Reranker: RerankerConfig{
			Provider: "lexical",
			BaseURL:  "http://localhost:8081",
			Model:    "cross-encoder/ms-marco-MiniLM-L-6-v2",
			Timeout:  Duration(30 * time.Second),
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.groq.com/openai/v1",
			Model:             "openai/gpt-oss-120b",
			Timeout:           Duration(60 * time.Second),
			RequestsPerSecond: 2,
			Burst:             4,
			MaxRetries:        2,
			BreakerFailures:   5,
			BreakerTimeout:    Duration(30 * time.Second),
		},
		Recovery: RecoveryConfig{
			Enabled: true,
			Dir:     "data/recovery",
		},
		Conversations: ConversationsConfig{
			Store:     "memory",
			RedisAddr: "localhost:6379",
			TTL:       Duration(24 * time.Hour),
			MaxTurns:  200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			SampleRate:  1.0,
			ServiceName: "convrag",
			Interval:    Duration(15 * time.Second),
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	e := c.Engine
	if e.PoolK <= 0 {
		errs = append(errs, fmt.Errorf("engine.pool_k must be > 0"))
	}
	if e.TopK <= 0 {
		errs = append(errs, fmt.Errorf("engine.top_k must be > 0"))
	}
	if e.TopK > e.PoolK {
		errs = append(errs, fmt.Errorf("engine.top_k (%d) must not exceed engine.pool_k (%d)", e.TopK, e.PoolK))
	}
	if e.ContextChars < 0 || e.HistoryChars < 0 || e.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("engine budgets must be >= 0"))
	}

	ch := c.Chunking
	if ch.MinChunks < 0 {
		errs = append(errs, fmt.Errorf("chunking.min_chunks must be >= 0"))
	}
	for _, p := range []struct {
		name          string
		size, overlap int
	}{
		{"recursive", ch.RecursiveSize, ch.RecursiveOverlap},
		{"token", ch.TokenSize, ch.TokenOverlap},
		{"tokenizer", ch.TokenizerSize, ch.TokenizerOverlap},
		{"word", ch.WordSize, ch.WordOverlap},
	} {
		if p.size <= 0 || p.overlap < 0 || p.overlap >= p.size {
			errs = append(errs, fmt.Errorf("chunking.%s: need 0 <= overlap < size, got size=%d overlap=%d", p.name, p.size, p.overlap))
		}
	}

	switch c.Index.Provider {
	case "chromem", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("index.provider must be chromem or qdrant, got %q", c.Index.Provider))
	}
	if c.Index.Collection == "" {
		errs = append(errs, fmt.Errorf("index.collection is required"))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be fastembed, tei or openai, got %q", c.Embeddings.Provider))
	}

	switch c.Reranker.Provider {
	case "cross_encoder", "lexical":
	default:
		errs = append(errs, fmt.Errorf("reranker.provider must be cross_encoder or lexical, got %q", c.Reranker.Provider))
	}

	if c.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model is required"))
	}
	if c.LLM.RequestsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("llm.requests_per_second must be > 0"))
	}

	switch c.Conversations.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("conversations.store must be memory or redis, got %q", c.Conversations.Store))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1"))
	}

	return errors.Join(errs...)
}
