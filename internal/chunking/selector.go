package chunking

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/recovery"
	"go.uber.org/zap"
)

// Selector runs the strategy cascade. It is safe for concurrent use.
type Selector struct {
	strategies []Strategy
	minChunks  int
	sink       recovery.Sink
	logger     *zap.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStrategies replaces the default cascade. Order matters: the last
// strategy is the fallback.
func WithStrategies(strategies ...Strategy) Option {
	return func(s *Selector) {
		s.strategies = strategies
	}
}

// NewSelector validates cfg and builds the cascade
// recursive, token, tokenizer (when cfg.TokenizerFile is set), word.
func NewSelector(cfg Config, opts ...Option) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Selector{
		minChunks: cfg.MinChunks,
		sink:      recovery.NopSink{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.strategies == nil {
		cascade := []Strategy{
			Recursive(cfg.Recursive),
			Token(cfg.Token, cfg.TokenEncoding),
		}
		if cfg.TokenizerFile != "" {
			codec, err := LoadTokenizer(cfg.TokenizerFile)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			cascade = append(cascade, Tokenizer(cfg.Tokenizer, codec))
		}
		s.strategies = append(cascade, Word(cfg.Word))
	}

	if len(s.strategies) == 0 {
		return nil, fmt.Errorf("%w: at least one strategy is required", ErrInvalidConfig)
	}
	for _, st := range s.strategies {
		if st.Name == "" || st.Split == nil {
			return nil, fmt.Errorf("%w: strategy needs a name and a split function", ErrInvalidConfig)
		}
	}
	return s, nil
}

// Recording returns a copy of s that appends accepted chunks to sink. A
// nil sink discards them. The strategies are shared.
func (s *Selector) Recording(sink recovery.Sink) *Selector {
	if sink == nil {
		sink = recovery.NopSink{}
	}
	c := *s
	c.sink = sink
	return &c
}

// Strategies returns the cascade names in order.
func (s *Selector) Strategies() []string {
	names := make([]string, len(s.strategies))
	for i, st := range s.strategies {
		names[i] = st.Name
	}
	return names
}

// Chunk splits docs with the first strategy whose yield exceeds MinChunks,
// or with the last strategy if none does. Empty input yields no chunks and
// writes nothing to the sink.
func (s *Selector) Chunk(ctx context.Context, docs []document.Document) ([]document.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	var (
		chunks  []document.Document
		lastErr error
		chosen  string
	)
	for i, st := range s.strategies {
		out, err := s.apply(ctx, st, docs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("chunking strategy failed",
				zap.String("strategy", st.Name),
				zap.Error(err),
			)
			chunks, lastErr, chosen = nil, err, ""
			continue
		}
		chunks, lastErr, chosen = out, nil, st.Name

		if len(out) > s.minChunks {
			s.logger.Info("chunking strategy accepted",
				zap.String("strategy", st.Name),
				zap.Int("chunks", len(out)),
				zap.Int("threshold", s.minChunks),
			)
			break
		}
		if i < len(s.strategies)-1 {
			s.logger.Debug("chunking strategy below threshold",
				zap.String("strategy", st.Name),
				zap.Int("chunks", len(out)),
				zap.Int("threshold", s.minChunks),
			)
		} else {
			s.logger.Info("no chunking strategy reached threshold, using last",
				zap.String("strategy", st.Name),
				zap.Int("chunks", len(out)),
				zap.Int("threshold", s.minChunks),
			)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("chunking with %s: %w", s.strategies[len(s.strategies)-1].Name, lastErr)
	}

	if err := s.sink.Append(ctx, recovery.StageChunking, chunks); err != nil {
		s.logger.Error("writing chunk recovery log",
			zap.String("strategy", chosen),
			zap.Error(err),
		)
	}
	return chunks, nil
}

func (s *Selector) apply(ctx context.Context, st Strategy, docs []document.Document) (out []document.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("strategy %s panicked: %v", st.Name, r)
		}
	}()

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pieces, err := st.Split(doc.Content())
		if err != nil {
			return nil, err
		}
		idx := 0
		for _, p := range pieces {
			if strings.TrimSpace(p) == "" {
				continue
			}
			out = append(out, document.NewChunk(doc, p, st.Name, idx))
			idx++
		}
	}
	return out, nil
}

