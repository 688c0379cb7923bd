package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/convrag/internal/document"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("convrag.vectorstore.chromem")

// ChromemConfig configures the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress gzips the persisted files.
	Compress bool
}

// ChromemProvider is an embedded, pure-Go Provider. Persistence happens on
// every write when Path is set.
type ChromemProvider struct {
	db       *chromem.DB
	embedder Embedder
	logger   *zap.Logger
}

// NewChromemProvider opens (or creates) the database at cfg.Path.
func NewChromemProvider(cfg ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemProvider, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	logger.Info("chromem provider initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
	)
	return &ChromemProvider{db: db, embedder: embedder, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Index returns the index for collection, creating it if needed.
func (p *ChromemProvider) Index(_ context.Context, collection string) (Index, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	// Always pass our embedding func; chromem falls back to OpenAI otherwise.
	c, err := p.db.GetOrCreateCollection(collection, nil, p.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", collection, err)
	}
	return &chromemIndex{name: collection, collection: c, embedder: p.embedder, logger: p.logger}, nil
}

func (p *ChromemProvider) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return p.embedder.EmbedQuery(ctx, text)
	}
}

// Close is a no-op; chromem persists on write.
func (p *ChromemProvider) Close() error {
	return nil
}

type chromemIndex struct {
	name       string
	collection *chromem.Collection
	embedder   Embedder
	logger     *zap.Logger
}

func (ix *chromemIndex) AddDocuments(ctx context.Context, docs []document.Document) error {
	ctx, span := chromemTracer.Start(ctx, "chromem.AddDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", ix.name),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content()
	}
	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbeddingFailed, len(vectors), len(docs))
	}

	cdocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		meta, err := flattenMetadata(d.Metadata())
		if err != nil {
			return err
		}
		cdocs[i] = chromem.Document{
			ID:        d.ID(),
			Content:   d.Content(),
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}

	// Embeddings are precomputed, so one worker is enough.
	if err := ix.collection.AddDocuments(ctx, cdocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	ix.logger.Debug("added documents to chromem",
		zap.String("collection", ix.name),
		zap.Int("count", len(docs)),
	)
	return nil
}

func (ix *chromemIndex) SimilaritySearch(ctx context.Context, query string, k int) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "chromem.SimilaritySearch")
	defer span.End()
	span.SetAttributes(attribute.String("collection", ix.name), attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem rejects nResults above the document count.
	n := ix.collection.Count()
	if n == 0 {
		return nil, nil
	}
	k = min(k, n)

	results, err := ix.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", ix.name, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Document: document.New(r.Content, unflattenMetadata(r.Metadata)),
			Score:    r.Similarity,
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "")
	return matches, nil
}

func (ix *chromemIndex) Count(context.Context) (int, error) {
	return ix.collection.Count(), nil
}

var _ Provider = (*ChromemProvider)(nil)
