package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/logging"
	"github.com/fyrsmithlabs/convrag/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeIndex struct {
	matches     []vectorstore.Match
	count       int
	countErr    error
	searchErr   error
	countCalls  int
	searchCalls int
	lastK       int
}

func (f *fakeIndex) AddDocuments(context.Context, []document.Document) error { return nil }

func (f *fakeIndex) SimilaritySearch(_ context.Context, _ string, k int) ([]vectorstore.Match, error) {
	f.searchCalls++
	f.lastK = k
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.matches[:min(k, len(f.matches))], nil
}

func (f *fakeIndex) Count(context.Context) (int, error) {
	f.countCalls++
	return f.count, f.countErr
}

func matches(n int) []vectorstore.Match {
	out := make([]vectorstore.Match, n)
	for i := range out {
		out[i] = vectorstore.Match{
			Document: document.New("chunk", map[string]any{"rank": i}),
			Score:    1 - float32(i)/100,
		}
	}
	return out
}

func TestPool(t *testing.T) {
	idx := &fakeIndex{matches: matches(80), count: 80}
	pool, err := NewBuilder(nil).Pool(context.Background(), idx, "refund window", 60)
	require.NoError(t, err)
	require.Len(t, pool, 60)
	assert.Equal(t, 60, idx.lastK)
	for i, c := range pool {
		v, _ := c.Chunk.Get("rank")
		assert.Equal(t, i, v, "pool keeps index order")
	}
	assert.Equal(t, float32(1), pool[0].Similarity)
}

func TestPool_InvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		k     int
	}{
		{"empty", "", 5},
		{"whitespace", "  \n\t", 5},
		{"zero k", "q", 0},
		{"negative k", "q", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &fakeIndex{count: 10, matches: matches(10)}
			pool, err := NewBuilder(nil).Pool(context.Background(), idx, tt.query, tt.k)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			assert.Empty(t, pool)
			assert.Zero(t, idx.countCalls)
			assert.Zero(t, idx.searchCalls)
		})
	}
}

func TestPool_EmptyIndex(t *testing.T) {
	idx := &fakeIndex{count: 0}
	pool, err := NewBuilder(nil).Pool(context.Background(), idx, "anything", 60)
	assert.ErrorIs(t, err, ErrEmptyIndex)
	assert.NotNil(t, pool)
	assert.Empty(t, pool)
	assert.Zero(t, idx.searchCalls)
}

func TestPool_CountFailureStillSearches(t *testing.T) {
	logs := logging.NewTestLogger()
	idx := &fakeIndex{countErr: errors.New("count broke"), matches: matches(3)}

	pool, err := NewBuilder(logs.Underlying()).Pool(context.Background(), idx, "q", 10)
	require.NoError(t, err)
	assert.Len(t, pool, 3)
	assert.Equal(t, 1, idx.searchCalls)
	logs.AssertLogged(t, zapcore.WarnLevel, "index count failed, searching anyway")
}

func TestPool_SearchFailure(t *testing.T) {
	idx := &fakeIndex{count: 5, searchErr: errors.New("connection refused")}
	_, err := NewBuilder(nil).Pool(context.Background(), idx, "q", 10)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestChunks(t *testing.T) {
	cs := []Candidate{
		{Chunk: document.New("a", nil), Similarity: 0.9},
		{Chunk: document.New("b", nil), Similarity: 0.1},
	}
	docs := Chunks(cs)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Content())
	assert.Equal(t, "b", docs[1].Content())
}
