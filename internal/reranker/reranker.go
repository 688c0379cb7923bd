package reranker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("convrag.reranker")

// ErrRerankUnavailable is returned alongside pool-ordered results when the
// scorer could not be used.
var ErrRerankUnavailable = errors.New("rerank unavailable")

// Scorer scores each text's relevance to query. The result has one score per
// text, in the same order; higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float32, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, query string, texts []string) ([]float32, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	return f(ctx, query, texts)
}

// RankedResult is a candidate with its relevance score.
type RankedResult struct {
	Chunk document.Document
	Score float32
}

// Reranker applies a Scorer to retrieval pools.
type Reranker struct {
	scorer Scorer
	logger *zap.Logger
}

// New creates a Reranker. A nil logger is replaced with a no-op.
func New(scorer Scorer, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank returns at most topK candidates ordered by descending relevance.
// Equal scores keep their pool order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) ([]RankedResult, error) {
	ctx, span := tracer.Start(ctx, "reranker.Rerank")
	defer span.End()
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 || len(candidates) == 0 {
		return []RankedResult{}, nil
	}
	limit := min(topK, len(candidates))

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Content()
	}

	scores, err := r.score(ctx, query, texts)
	if err == nil && len(scores) != len(candidates) {
		err = fmt.Errorf("scorer returned %d scores for %d candidates", len(scores), len(candidates))
	}
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("rerank failed, keeping pool order",
			zap.Error(err),
			zap.Int("candidates", len(candidates)),
		)
		return poolOrder(candidates[:limit]), fmt.Errorf("%w: %v", ErrRerankUnavailable, err)
	}

	ranked := make([]RankedResult, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedResult{Chunk: c.Chunk, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[:limit], nil
}

// score calls the scorer, turning a panic into an error.
func (r *Reranker) score(ctx context.Context, query string, texts []string) (scores []float32, err error) {
	if r.scorer == nil {
		return nil, errors.New("no scorer configured")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scorer panicked: %v", p)
		}
	}()
	return r.scorer.Score(ctx, query, texts)
}

func poolOrder(cs []retrieval.Candidate) []RankedResult {
	out := make([]RankedResult, len(cs))
	for i, c := range cs {
		out[i] = RankedResult{Chunk: c.Chunk, Score: c.Similarity}
	}
	return out
}
