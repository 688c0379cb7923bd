package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CrossEncoderConfig configures a TEI-compatible /rerank endpoint.
type CrossEncoderConfig struct {
	BaseURL string
	// Model is informational; TEI serves one model per instance.
	Model   string
	Timeout time.Duration
}

// CrossEncoder scores (query, text) pairs with a remote cross-encoder.
type CrossEncoder struct {
	cfg    CrossEncoderConfig
	client *http.Client
}

// NewCrossEncoder creates a CrossEncoder client.
func NewCrossEncoder(cfg CrossEncoderConfig) (*CrossEncoder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cross encoder: base URL required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CrossEncoder{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankScore struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Score returns raw cross-encoder logits in texts order. The response must
// cover every text exactly once.
func (c *CrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return []float32{}, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling rerank endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []rerankScore
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	return alignScores(results, len(texts))
}

func alignScores(results []rerankScore, n int) ([]float32, error) {
	if len(results) != n {
		return nil, fmt.Errorf("rerank response has %d scores for %d texts", len(results), n)
	}
	scores := make([]float32, n)
	seen := make([]bool, n)
	for _, r := range results {
		if r.Index < 0 || r.Index >= n || seen[r.Index] {
			return nil, fmt.Errorf("rerank response has invalid index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	return scores, nil
}
