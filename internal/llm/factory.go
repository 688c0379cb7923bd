package llm

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"go.uber.org/zap"
)

// New builds the configured OpenAI-compatible generator behind a Guarded
// wrapper. cfg.Timeout bounds each attempt.
func New(cfg config.LLMConfig, logger *zap.Logger) (*Guarded, error) {
	base, err := NewOpenAI(OpenAIConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey.Value(),
	})
	if err != nil {
		return nil, err
	}
	var next Generator = base
	if d := cfg.Timeout.Duration(); d > 0 {
		next = withTimeout{next: base, timeout: d}
	}
	return NewGuarded(next, GuardConfig{
		Name:              cfg.Model,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		MaxRetries:        cfg.MaxRetries,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerTimeout:    cfg.BreakerTimeout.Duration(),
	}, logger), nil
}

type withTimeout struct {
	next    Generator
	timeout time.Duration
}

func (w withTimeout) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.next.Generate(ctx, messages, opts...)
}
