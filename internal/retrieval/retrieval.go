// Package retrieval builds the broad candidate pool that reranking narrows.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("convrag.retrieval")

var (
	// ErrInvalidQuery indicates an empty query or a non-positive pool size.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrEmptyIndex indicates the index holds no documents.
	ErrEmptyIndex = errors.New("index is empty")

	// ErrIndexUnavailable indicates the similarity search failed.
	ErrIndexUnavailable = errors.New("index unavailable")
)

// Candidate is a pool entry with its similarity to the query.
type Candidate struct {
	Chunk      document.Document
	Similarity float32
}

// Chunks returns the documents of cs in order.
func Chunks(cs []Candidate) []document.Document {
	out := make([]document.Document, len(cs))
	for i, c := range cs {
		out[i] = c.Chunk
	}
	return out
}

// Builder queries an index for candidate pools.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a Builder. A nil logger is replaced with a no-op.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

// Pool returns up to kPool candidates for query in the index's similarity
// order.
func (b *Builder) Pool(ctx context.Context, idx vectorstore.Index, query string, kPool int) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Pool")
	defer span.End()
	span.SetAttributes(attribute.Int("pool_k", kPool))

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if kPool <= 0 {
		return nil, fmt.Errorf("%w: pool size must be positive, got %d", ErrInvalidQuery, kPool)
	}

	n, err := idx.Count(ctx)
	switch {
	case err != nil:
		b.logger.Warn("index count failed, searching anyway", zap.Error(err))
	case n == 0:
		span.SetAttributes(attribute.Int("pool_size", 0))
		return []Candidate{}, ErrEmptyIndex
	}

	matches, err := idx.SimilaritySearch(ctx, query, kPool)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	pool := make([]Candidate, len(matches))
	for i, m := range matches {
		pool[i] = Candidate{Chunk: m.Document, Similarity: m.Score}
	}
	span.SetAttributes(attribute.Int("pool_size", len(pool)))
	b.logger.Debug("built retrieval pool",
		zap.Int("pool_k", kPool),
		zap.Int("pool_size", len(pool)),
	)
	return pool, nil
}
