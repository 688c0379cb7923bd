package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"go.uber.org/zap"
)

// Open builds the Provider selected by cfg.Provider.
func Open(ctx context.Context, cfg config.IndexConfig, embedder Embedder, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemProvider(ChromemConfig{
			Path:     cfg.ChromemPath,
			Compress: cfg.ChromemGzip,
		}, embedder, logger)
	case "qdrant":
		return NewQdrantProvider(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			UseTLS:     cfg.QdrantTLS,
			APIKey:     cfg.QdrantAPIKey.Value(),
			VectorSize: cfg.VectorSize,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown index provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
