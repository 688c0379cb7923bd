package reranker

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/logging"
	"github.com/fyrsmithlabs/convrag/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func pool(contents ...string) []retrieval.Candidate {
	out := make([]retrieval.Candidate, len(contents))
	for i, c := range contents {
		out[i] = retrieval.Candidate{
			Chunk:      document.New(c, map[string]any{"pos": i}),
			Similarity: 1 - float32(i)/10,
		}
	}
	return out
}

func fixed(scores ...float32) ScorerFunc {
	return func(context.Context, string, []string) ([]float32, error) {
		return scores, nil
	}
}

func contents(rs []RankedResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Chunk.Content()
	}
	return out
}

func TestRerank(t *testing.T) {
	tests := []struct {
		name   string
		pool   []retrieval.Candidate
		scores []float32
		topK   int
		want   []string
	}{
		{
			name:   "sorts descending and truncates",
			pool:   pool("a", "b", "c", "d"),
			scores: []float32{0.1, 0.9, 0.5, 0.7},
			topK:   2,
			want:   []string{"b", "d"},
		},
		{
			name:   "topK larger than pool returns all without padding",
			pool:   pool("a", "b"),
			scores: []float32{0.2, 0.8},
			topK:   5,
			want:   []string{"b", "a"},
		},
		{
			name:   "ties keep pool order",
			pool:   pool("a", "b", "c"),
			scores: []float32{0.5, 0.5, 0.5},
			topK:   3,
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "negative logits",
			pool:   pool("a", "b", "c"),
			scores: []float32{-3, -1, -2},
			topK:   3,
			want:   []string{"b", "c", "a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(fixed(tt.scores...), nil).Rerank(context.Background(), "q", tt.pool, tt.topK)
			require.NoError(t, err)
			assert.Equal(t, tt.want, contents(got))
			for i := 1; i < len(got); i++ {
				assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
			}
		})
	}
}

func TestRerank_EmptyAndZeroK(t *testing.T) {
	called := false
	scorer := ScorerFunc(func(context.Context, string, []string) ([]float32, error) {
		called = true
		return nil, nil
	})
	r := New(scorer, nil)

	got, err := r.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.Rerank(context.Background(), "q", pool("a"), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, called)
}

func TestRerank_Fallback(t *testing.T) {
	tests := []struct {
		name   string
		scorer Scorer
	}{
		{"scorer error", ScorerFunc(func(context.Context, string, []string) ([]float32, error) {
			return nil, errors.New("model offline")
		})},
		{"short output", fixed(0.3)},
		{"panic", ScorerFunc(func(context.Context, string, []string) ([]float32, error) {
			panic("bad tensor")
		})},
		{"nil scorer", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := logging.NewTestLogger()
			got, err := New(tt.scorer, logs.Underlying()).Rerank(context.Background(), "q", pool("a", "b", "c", "d"), 3)
			assert.ErrorIs(t, err, ErrRerankUnavailable)
			assert.Equal(t, []string{"a", "b", "c"}, contents(got))
			assert.Equal(t, float32(1), got[0].Score)
			logs.AssertLogged(t, zapcore.WarnLevel, "rerank failed")
		})
	}
}

func TestRerank_Lexical(t *testing.T) {
	candidates := pool(
		"Our offices are closed on public holidays.",
		"Refunds are available within 30 days of purchase.",
		"Shipping takes five business days.",
	)
	got, err := New(NewLexical(), nil).Rerank(context.Background(), "what is the refund window in days", candidates, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Chunk.Content(), "Refunds")
}
