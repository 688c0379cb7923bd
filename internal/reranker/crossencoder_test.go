package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rerankServer(t *testing.T, status int, respond func(req rerankRequest) any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(respond(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCrossEncoder_Score(t *testing.T) {
	srv := rerankServer(t, http.StatusOK, func(req rerankRequest) any {
		assert.Equal(t, "refund window", req.Query)
		assert.True(t, req.RawScores)
		// TEI returns results sorted by score, not by input order.
		return []rerankScore{{Index: 2, Score: 4.1}, {Index: 0, Score: 1.5}, {Index: 1, Score: -2}}
	})
	ce, err := NewCrossEncoder(CrossEncoderConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	scores, err := ce.Score(context.Background(), "refund window", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2, 4.1}, scores)
}

func TestCrossEncoder_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
	}{
		{"server error", http.StatusServiceUnavailable, map[string]string{"error": "loading"}},
		{"missing score", http.StatusOK, []rerankScore{{Index: 0, Score: 1}}},
		{"duplicate index", http.StatusOK, []rerankScore{{Index: 0, Score: 1}, {Index: 0, Score: 2}}},
		{"out of range", http.StatusOK, []rerankScore{{Index: 0, Score: 1}, {Index: 7, Score: 2}}},
		{"not json array", http.StatusOK, map[string]int{"index": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rerankServer(t, tt.status, func(rerankRequest) any { return tt.body })
			ce, err := NewCrossEncoder(CrossEncoderConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = ce.Score(context.Background(), "q", []string{"a", "b"})
			assert.Error(t, err)
		})
	}
}

func TestCrossEncoder_FeedsFallback(t *testing.T) {
	srv := rerankServer(t, http.StatusInternalServerError, func(rerankRequest) any { return "boom" })
	ce, err := NewCrossEncoder(CrossEncoderConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := New(ce, nil).Rerank(context.Background(), "q", pool("a", "b"), 1)
	assert.ErrorIs(t, err, ErrRerankUnavailable)
	assert.Equal(t, []string{"a"}, contents(got))
}

func TestNewScorer(t *testing.T) {
	s, err := NewScorer(config.RerankerConfig{Provider: "lexical"})
	require.NoError(t, err)
	assert.IsType(t, &Lexical{}, s)

	s, err = NewScorer(config.RerankerConfig{Provider: "cross_encoder", BaseURL: "http://localhost:8081"})
	require.NoError(t, err)
	assert.IsType(t, &CrossEncoder{}, s)

	_, err = NewScorer(config.RerankerConfig{Provider: "cross_encoder"})
	assert.Error(t, err)

	_, err = NewScorer(config.RerankerConfig{Provider: "colbert"})
	assert.Error(t, err)
}
