package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/convrag/internal/assembler"
	"github.com/fyrsmithlabs/convrag/internal/chunking"
	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/fyrsmithlabs/convrag/internal/conversation"
	"github.com/fyrsmithlabs/convrag/internal/document"
	"github.com/fyrsmithlabs/convrag/internal/llm"
	"github.com/fyrsmithlabs/convrag/internal/prompts"
	"github.com/fyrsmithlabs/convrag/internal/recovery"
	"github.com/fyrsmithlabs/convrag/internal/reranker"
	"github.com/fyrsmithlabs/convrag/internal/retrieval"
	"github.com/fyrsmithlabs/convrag/internal/router"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("convrag.engine")

var (
	// ErrGenerationFailed wraps a failed answer generation. It is the only
	// pipeline failure RunTurn returns.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrNoCorpus indicates a nil corpus.
	ErrNoCorpus = errors.New("no corpus")

	// ErrInvalidQuery indicates an empty question or search query.
	ErrInvalidQuery = retrieval.ErrInvalidQuery
)

// Degradation stages.
const (
	StageRoute         = "route"
	StageRetrieval     = "retrieval"
	StageRerank        = "rerank"
	StageHistoryAnswer = "history_answer"
)

// ingestBatchSize bounds how many chunks go to the index per call.
const ingestBatchSize = 128

// Config holds per-turn retrieval sizes and budgets.
type Config struct {
	PoolK        int
	TopK         int
	ContextChars int
	HistoryTurns int
	HistoryChars int

	// NormalizeHistoryAnswers re-asks the model to phrase answers taken from
	// the history.
	NormalizeHistoryAnswers bool
}

// DefaultConfig returns pool 60, top 5, 7000 context characters and a
// 20 turn, 4000 character history window.
func DefaultConfig() Config {
	return Config{PoolK: 60, TopK: 5, ContextChars: 7000, HistoryTurns: 20, HistoryChars: 4000}
}

// FromConfig maps the file configuration, keeping defaults for unset values.
func FromConfig(c config.EngineConfig) Config {
	out := DefaultConfig()
	if c.PoolK > 0 {
		out.PoolK = c.PoolK
	}
	if c.TopK > 0 {
		out.TopK = c.TopK
	}
	if c.ContextChars > 0 {
		out.ContextChars = c.ContextChars
	}
	if c.HistoryTurns > 0 {
		out.HistoryTurns = c.HistoryTurns
	}
	if c.HistoryChars > 0 {
		out.HistoryChars = c.HistoryChars
	}
	out.NormalizeHistoryAnswers = c.NormalizeHistoryAnswers
	return out
}

// Deps are the collaborators an Engine composes. Selector and Generator are
// required.
type Deps struct {
	Selector *chunking.Selector
	// Recovery, when set, receives each corpus's accepted chunks under
	// <dir>/<corpus id>/.
	Recovery   *recovery.FileSink
	Generator  llm.Generator
	Scorer     reranker.Scorer
	Prompts    *prompts.Set
	Logger     *zap.Logger
	Registerer prometheus.Registerer
}

// TurnResult is the outcome of one conversation turn.
type TurnResult struct {
	Answer       string           `json:"answer"`
	Sources      []map[string]any `json:"sources"`
	Route        string           `json:"route"`
	Query        string           `json:"query,omitempty"`
	Degradations []string         `json:"degradations,omitempty"`
}

func (r *TurnResult) degrade(stage string) {
	for _, s := range r.Degradations {
		if s == stage {
			return
		}
	}
	r.Degradations = append(r.Degradations, stage)
}

// SearchResult is the outcome of Search.
type SearchResult struct {
	Results      []reranker.RankedResult
	Degradations []string
}

// Engine runs turns, ingestion and searches against a Corpus.
type Engine struct {
	cfg      Config
	selector *chunking.Selector
	recovery *recovery.FileSink
	gen      llm.Generator
	prompts  *prompts.Set
	router   *router.Router
	pool     *retrieval.Builder
	reranker *reranker.Reranker
	metrics  *Metrics
	logger   *zap.Logger
}

// New builds an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Selector == nil {
		return nil, errors.New("engine: chunk selector is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("engine: generator is required")
	}
	if cfg.PoolK <= 0 || cfg.TopK <= 0 {
		return nil, fmt.Errorf("engine: pool_k and top_k must be positive, got %d and %d", cfg.PoolK, cfg.TopK)
	}
	if cfg.TopK > cfg.PoolK {
		return nil, fmt.Errorf("engine: top_k (%d) must not exceed pool_k (%d)", cfg.TopK, cfg.PoolK)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	set := deps.Prompts
	if set == nil {
		set = prompts.Default()
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = reranker.NewLexical()
	}

	return &Engine{
		cfg:      cfg,
		selector: deps.Selector,
		recovery: deps.Recovery,
		gen:      deps.Generator,
		prompts:  set,
		router: router.New(deps.Generator, &set.Refine, router.Config{
			HistoryTurns: cfg.HistoryTurns,
			HistoryChars: cfg.HistoryChars,
		}, logger.Named("router")),
		pool:     retrieval.NewBuilder(logger.Named("retrieval")),
		reranker: reranker.New(scorer, logger.Named("reranker")),
		metrics:  NewMetrics(deps.Registerer),
		logger:   logger,
	}, nil
}

// RunTurn answers question against corpus given the prior history.
func (e *Engine) RunTurn(ctx context.Context, corpus *Corpus, question string, history conversation.History) (*TurnResult, error) {
	if corpus == nil {
		return nil, ErrNoCorpus
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidQuery)
	}

	ctx, span := tracer.Start(ctx, "engine.RunTurn")
	defer span.End()
	span.SetAttributes(attribute.String("corpus", corpus.ID), attribute.Int("history_turns", len(history)))

	start := time.Now()
	logger := e.logger.With(zap.String("corpus", corpus.ID))
	res := &TurnResult{Sources: []map[string]any{}}

	d := e.router.Route(ctx, question, history)
	res.Route = string(d.Route)
	span.SetAttributes(attribute.String("route", res.Route))
	if d.Fallback != router.FallbackNone {
		e.degrade(logger, res, StageRoute, d.Err)
	}
	defer func() {
		e.metrics.TurnDuration.WithLabelValues(res.Route).Observe(time.Since(start).Seconds())
	}()

	if d.IsHistory() {
		res.Answer = e.historyAnswer(ctx, logger, res, d.Answer, question, history)
		e.metrics.Turns.WithLabelValues(res.Route, "ok").Inc()
		span.SetStatus(codes.Ok, "")
		return res, nil
	}

	res.Query = d.Query
	ranked := e.rank(ctx, logger, corpus, d.Query, res)
	texts := make([]string, len(ranked))
	for i, r := range ranked {
		texts[i] = r.Chunk.Content()
	}

	// Sources list only the chunks the model is shown.
	n := assembler.Packed(texts, e.cfg.ContextChars)
	if n < len(ranked) {
		logger.Debug("ranked chunks over context budget",
			zap.Int("ranked", len(ranked)),
			zap.Int("kept", n),
			zap.Int("budget", e.cfg.ContextChars),
		)
	}
	for _, r := range ranked[:n] {
		res.Sources = append(res.Sources, r.Chunk.Metadata())
	}

	contextText := strings.Join(texts[:n], assembler.Separator)
	block := &e.prompts.ContextAnswer
	if n == 0 {
		block = &e.prompts.NoContext
	}
	msgs, err := block.Render(prompts.Data{Question: question, Context: contextText})
	if err != nil {
		return nil, e.fail(span, res, fmt.Errorf("%w: rendering prompt: %w", ErrGenerationFailed, err))
	}

	answer, err := e.gen.Generate(ctx, msgs, llm.WithTemperature(0.2), llm.WithMaxTokens(256))
	if err != nil {
		logger.Error("answer generation failed", zap.Error(err))
		return nil, e.fail(span, res, fmt.Errorf("%w: %w", ErrGenerationFailed, err))
	}
	res.Answer = answer

	span.SetAttributes(attribute.Int("sources", len(res.Sources)))
	span.SetStatus(codes.Ok, "")
	e.metrics.Turns.WithLabelValues(res.Route, "ok").Inc()
	logger.Debug("turn answered",
		zap.String("route", res.Route),
		zap.Int("sources", len(res.Sources)),
		zap.Strings("degradations", res.Degradations),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (e *Engine) fail(span trace.Span, res *TurnResult, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.Turns.WithLabelValues(res.Route, "error").Inc()
	return err
}

// historyAnswer returns the answer the router extracted, optionally
// rephrased by the model. Rephrasing failures keep the raw answer.
func (e *Engine) historyAnswer(ctx context.Context, logger *zap.Logger, res *TurnResult, raw, question string, history conversation.History) string {
	if !e.cfg.NormalizeHistoryAnswers {
		return raw
	}
	msgs, err := e.prompts.HistoryAnswer.Render(prompts.Data{
		History:  history.Format(e.cfg.HistoryTurns, e.cfg.HistoryChars),
		Question: question,
		Context:  raw,
	})
	if err != nil {
		e.degrade(logger, res, StageHistoryAnswer, err)
		return raw
	}
	answer, err := e.gen.Generate(ctx, msgs, llm.WithTemperature(0.1), llm.WithMaxTokens(256))
	if err != nil || strings.TrimSpace(answer) == "" {
		if err == nil {
			err = llm.ErrEmptyResponse
		}
		e.degrade(logger, res, StageHistoryAnswer, err)
		return raw
	}
	return answer
}

// rank pools and reranks to TopK. Pool and rerank problems are recorded on
// res and yield whatever could still be ranked.
func (e *Engine) rank(ctx context.Context, logger *zap.Logger, corpus *Corpus, query string, res *TurnResult) []reranker.RankedResult {
	candidates, err := e.pool.Pool(ctx, corpus.Index, query, e.cfg.PoolK)
	if err != nil {
		e.degrade(logger, res, StageRetrieval, err)
		candidates = nil
	}
	ranked, err := e.reranker.Rerank(ctx, query, candidates, e.cfg.TopK)
	if err != nil {
		e.degrade(logger, res, StageRerank, err)
	}
	return ranked
}

func (e *Engine) degrade(logger *zap.Logger, res *TurnResult, stage string, cause error) {
	logger.Warn("pipeline stage degraded", zap.String("stage", stage), zap.Error(cause))
	e.metrics.Degradations.WithLabelValues(stage).Inc()
	res.degrade(stage)
}

// Search pools and reranks without generating. k <= 0 uses the configured
// TopK. An empty index yields no results; an unreachable one is an error.
func (e *Engine) Search(ctx context.Context, corpus *Corpus, query string, k int) (*SearchResult, error) {
	if corpus == nil {
		return nil, ErrNoCorpus
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if k <= 0 {
		k = e.cfg.TopK
	}

	ctx, span := tracer.Start(ctx, "engine.Search")
	defer span.End()
	span.SetAttributes(attribute.String("corpus", corpus.ID), attribute.Int("k", k))

	logger := e.logger.With(zap.String("corpus", corpus.ID))
	out := &SearchResult{Results: []reranker.RankedResult{}}

	candidates, err := e.pool.Pool(ctx, corpus.Index, query, max(e.cfg.PoolK, k))
	switch {
	case errors.Is(err, retrieval.ErrEmptyIndex):
		return out, nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ranked, err := e.reranker.Rerank(ctx, query, candidates, k)
	if err != nil {
		note := &TurnResult{}
		e.degrade(logger, note, StageRerank, err)
		out.Degradations = note.Degradations
	}
	out.Results = append(out.Results, ranked...)
	span.SetAttributes(attribute.Int("results", len(out.Results)))
	return out, nil
}

// Ingest chunks docs and adds the chunks to the corpus index. Callers
// serialize Ingest per corpus.
func (e *Engine) Ingest(ctx context.Context, corpus *Corpus, docs []document.Document) (*IngestStats, error) {
	if corpus == nil {
		return nil, ErrNoCorpus
	}

	ctx, span := tracer.Start(ctx, "engine.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("corpus", corpus.ID), attribute.Int("documents", len(docs)))

	selector := e.selector
	if e.recovery != nil {
		sink, err := e.recovery.Corpus(corpus.ID)
		if err != nil {
			return nil, fmt.Errorf("recovery log: %w", err)
		}
		selector = selector.Recording(sink)
	}

	chunks, err := selector.Chunk(ctx, docs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("chunking: %w", err)
	}

	stats, err := e.index(ctx, corpus, len(docs), chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)), attribute.String("strategy", stats.Strategy))
	span.SetStatus(codes.Ok, "")
	e.logger.Info("corpus ingested",
		zap.String("corpus", corpus.ID),
		zap.Int("documents", stats.DocumentCount),
		zap.Int("chunks", stats.ChunkCount),
		zap.String("strategy", stats.Strategy),
	)
	return stats, nil
}

// Restore adds already chunked documents, such as a replayed chunking
// recovery log, to the corpus index without chunking them again.
func (e *Engine) Restore(ctx context.Context, corpus *Corpus, chunks []document.Document) (*IngestStats, error) {
	if corpus == nil {
		return nil, ErrNoCorpus
	}
	ctx, span := tracer.Start(ctx, "engine.Restore")
	defer span.End()

	parents := make(map[string]struct{})
	for _, c := range chunks {
		parents[c.String(document.KeyParentID)] = struct{}{}
	}
	stats, err := e.index(ctx, corpus, len(parents), chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.logger.Info("corpus restored",
		zap.String("corpus", corpus.ID),
		zap.Int("chunks", stats.ChunkCount),
	)
	return stats, nil
}

func (e *Engine) index(ctx context.Context, corpus *Corpus, docCount int, chunks []document.Document) (*IngestStats, error) {
	for start := 0; start < len(chunks); start += ingestBatchSize {
		end := min(start+ingestBatchSize, len(chunks))
		if err := corpus.Index.AddDocuments(ctx, chunks[start:end]); err != nil {
			return nil, fmt.Errorf("indexing chunks %d-%d: %w", start, end, err)
		}
	}

	stats := IngestStats{
		DocumentCount: docCount,
		ChunkCount:    len(chunks),
		IngestedAt:    time.Now().UTC(),
	}
	if len(chunks) > 0 {
		stats.Strategy = chunks[0].String(document.KeyChunkStrategy)
	}
	corpus.record(stats, chunks)

	e.metrics.IngestedDocuments.Add(float64(docCount))
	e.metrics.IngestedChunks.Add(float64(len(chunks)))
	return &stats, nil
}
