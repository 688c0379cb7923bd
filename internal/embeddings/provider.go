package embeddings

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/fyrsmithlabs/convrag/internal/vectorstore"
	"go.uber.org/zap"
)

// Provider is an Embedder that knows its output width and owns resources.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// knownDimensions covers the models we ship defaults for.
var knownDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// DimensionForModel returns the embedding width for model, guessing from
// the name when it is not a known model.
func DimensionForModel(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	// fastembed constants drop the org prefix: "fast-bge-small-en-v1.5".
	short := strings.TrimPrefix(model, "fast-")
	for name, dim := range knownDimensions {
		if path.Base(name) == short {
			return dim
		}
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}

// CachedTokenizer returns the tokenizer.json fastembed downloaded for the
// configured model, if it is on disk. Other providers have none.
func CachedTokenizer(cfg config.EmbeddingsConfig) (string, bool) {
	if (cfg.Provider != "fastembed" && cfg.Provider != "") || cfg.Model == "" {
		return "", false
	}
	dir := cfg.CacheDir
	if dir == "" {
		dir = "local_cache"
	}
	model := path.Base(cfg.Model)
	if !strings.HasPrefix(model, "fast-") {
		model = "fast-" + model
	}
	file := filepath.Join(dir, model, "tokenizer.json")
	if info, err := os.Stat(file); err != nil || info.IsDir() {
		return "", false
	}
	return file, true
}

// NewProvider creates the embedder selected by cfg.Provider.
func NewProvider(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := NewMetrics(logger)

	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
			Logger:   logger,
			Metrics:  metrics,
		})
	case "tei":
		return NewTEIProvider(TEIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
		}, metrics)
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
		}, metrics)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
