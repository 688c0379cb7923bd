package reranker

import (
	"fmt"

	"github.com/fyrsmithlabs/convrag/internal/config"
)

// NewScorer builds the scorer selected by cfg.Provider.
func NewScorer(cfg config.RerankerConfig) (Scorer, error) {
	switch cfg.Provider {
	case "lexical", "":
		return NewLexical(), nil
	case "cross_encoder":
		return NewCrossEncoder(CrossEncoderConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout.Duration(),
		})
	default:
		return nil, fmt.Errorf("unknown reranker provider %q", cfg.Provider)
	}
}
