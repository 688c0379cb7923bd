package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexical_Score(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		want  float32
	}{
		{"full overlap", "refund policy", "The refund policy is generous", 1},
		{"half overlap", "refund policy", "policy document", 0.5},
		{"no overlap", "refund policy", "shipping times", 0},
		{"case insensitive", "REFUND", "refund", 1},
		{"stopwords ignored", "what is the refund", "refund", 1},
		{"only stopwords", "what the", "anything", 0},
		{"duplicate query terms count once", "refund refund policy", "refund", 0.5},
		{"punctuation split", "thirty-day refund", "thirty day refund!", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := NewLexical().Score(context.Background(), tt.query, []string{tt.text})
			require.NoError(t, err)
			require.Len(t, scores, 1)
			assert.InDelta(t, tt.want, scores[0], 1e-6)
		})
	}
}

func TestLexical_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLexical().Score(ctx, "q", []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
