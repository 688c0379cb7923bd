package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/convrag/internal/chunking"
	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/fyrsmithlabs/convrag/internal/embeddings"
	"github.com/fyrsmithlabs/convrag/internal/engine"
	"github.com/fyrsmithlabs/convrag/internal/llm"
	"github.com/fyrsmithlabs/convrag/internal/logging"
	"github.com/fyrsmithlabs/convrag/internal/prompts"
	"github.com/fyrsmithlabs/convrag/internal/recovery"
	"github.com/fyrsmithlabs/convrag/internal/reranker"
	"github.com/fyrsmithlabs/convrag/internal/telemetry"
	"github.com/fyrsmithlabs/convrag/internal/vectorstore"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// errNoGenerator is returned by commands that never generate.
var errNoGenerator = errors.New("no language model configured for this command")

type noGenerator struct{}

func (noGenerator) Generate(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return "", errNoGenerator
}

// app holds everything a command needs. Close releases it.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	telemetry *telemetry.Telemetry
	embedder  embeddings.Provider
	provider  vectorstore.Provider
	// recovery is nil unless recovery logs are enabled.
	recovery  *recovery.FileSink
	engine    *engine.Engine
}

type appOptions struct {
	// generate wires the language model; ingestion does not need one.
	generate bool
	// quiet raises the log level to warn.
	quiet bool
}

// loadConfig reads --config and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if corpusID != "" {
		cfg.Index.Collection = corpusID
	}
	return cfg, nil
}

func newLogger(c config.LoggingConfig, quiet bool) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	if c.Level != "" {
		level, err := logging.LevelFromString(c.Level)
		if err != nil {
			return nil, err
		}
		lc.Level = level
	}
	if quiet && lc.Level < zapcore.WarnLevel {
		lc.Level = zapcore.WarnLevel
	}
	if c.Format != "" {
		lc.Format = c.Format
	}
	lc.Output.OTEL = c.OTEL
	return logging.NewLogger(lc, global.GetLoggerProvider())
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (_ *app, err error) {
	log, err := newLogger(cfg.Logging, opts.quiet && !verbose)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()
	zl := log.Underlying()

	a.telemetry, err = telemetry.New(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}
	if degraded, reason := a.telemetry.Degraded(); degraded {
		log.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}

	a.embedder, err = embeddings.NewProvider(cfg.Embeddings, zl.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	indexCfg := cfg.Index
	if dim := a.embedder.Dimension(); dim > 0 {
		indexCfg.VectorSize = dim
	}
	a.provider, err = vectorstore.Open(ctx, indexCfg, a.embedder, zl.Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	if cfg.Recovery.Enabled {
		if a.recovery, err = recovery.NewFileSink(cfg.Recovery.Dir); err != nil {
			return nil, fmt.Errorf("recovery: %w", err)
		}
	}
	chunkCfg := chunking.FromConfig(cfg.Chunking)
	if chunkCfg.TokenizerFile == "" {
		if file, ok := embeddings.CachedTokenizer(cfg.Embeddings); ok {
			chunkCfg.TokenizerFile = file
		}
	}
	selector, err := chunking.NewSelector(chunkCfg,
		chunking.WithLogger(zl.Named("chunking")),
	)
	if err != nil {
		return nil, err
	}

	set := prompts.Default()
	if cfg.Prompts.File != "" {
		if set, err = prompts.Load(cfg.Prompts.File); err != nil {
			return nil, err
		}
	}

	scorer, err := reranker.NewScorer(cfg.Reranker)
	if err != nil {
		return nil, err
	}

	var gen llm.Generator = noGenerator{}
	if opts.generate {
		if gen, err = llm.New(cfg.LLM, zl.Named("llm")); err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
	}

	a.engine, err = engine.New(engine.FromConfig(cfg.Engine), engine.Deps{
		Selector:   selector,
		Recovery:   a.recovery,
		Generator:  gen,
		Scorer:     scorer,
		Prompts:    set,
		Logger:     zl.Named("engine"),
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// corpusLog returns the recovery sink of corpus, or nil when recovery is
// disabled.
func (a *app) corpusLog(corpus *engine.Corpus) (*recovery.FileSink, error) {
	if a.recovery == nil {
		return nil, nil
	}
	return a.recovery.Corpus(corpus.ID)
}

// corpus opens the configured collection.
func (a *app) corpus(ctx context.Context) (*engine.Corpus, error) {
	idx, err := a.provider.Index(ctx, a.cfg.Index.Collection)
	if err != nil {
		return nil, err
	}
	return engine.NewCorpus(a.cfg.Index.Collection, idx), nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close(ctx context.Context) {
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.log.Warn(ctx, "closing index", zap.Error(err))
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			a.log.Warn(ctx, "closing embedder", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.log.Warn(ctx, "telemetry shutdown", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
