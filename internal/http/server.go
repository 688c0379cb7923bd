// Package http serves the conversational retrieval engine over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/convrag/internal/chunking"
	"github.com/fyrsmithlabs/convrag/internal/conversation"
	"github.com/fyrsmithlabs/convrag/internal/engine"
	"github.com/fyrsmithlabs/convrag/internal/logging"
	"github.com/fyrsmithlabs/convrag/internal/retrieval"
	"github.com/fyrsmithlabs/convrag/internal/vectorstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultSampleSize = 5
	maxSampleSize     = 50
	maxSearchK        = 100
)

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxBodyBytes   string
}

// Deps are the server's collaborators. Engine, Registry and Store are
// required. Gatherer defaults to the Prometheus default registry.
type Deps struct {
	Engine   *engine.Engine
	Registry *Registry
	Store    conversation.Store
	Gatherer prometheus.Gatherer
	Metrics  *Metrics
}

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	engine   *engine.Engine
	registry *Registry
	store    conversation.Store
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Engine == nil || deps.Registry == nil || deps.Store == nil {
		return nil, fmt.Errorf("engine, registry and conversation store are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8088}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(correlate)
	if cfg.MaxBodyBytes != "" {
		e.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	}
	e.Use(deps.Metrics.Middleware())
	e.Use(requestLogger(logger))
	if cfg.RequestTimeout > 0 {
		e.Use(requestTimeout(cfg.RequestTimeout))
	}

	s := &Server{
		echo:     e,
		engine:   deps.Engine,
		registry: deps.Registry,
		store:    deps.Store,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes(deps.Gatherer)
	return s, nil
}

// correlate copies the request and corpus IDs into the request context for
// logging.ContextFields.
func correlate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		ctx = logging.WithCorpusID(ctx, c.Param("id"))
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			// Handlers may add IDs to the request context, so read it after next.
			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)
			return err
		}
	}
}

// requestTimeout bounds the request context. Handlers pass the context to
// every blocking call, so a turn stops once the deadline passes.
func requestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/corpora/:id", s.handleCorpus)
	v1.POST("/corpora/:id/documents", s.handleIngest)
	v1.GET("/corpora/:id/chunks", s.handleChunks)
	v1.POST("/corpora/:id/search", s.handleSearch)
	v1.POST("/corpora/:id/chat", s.handleChat)
	v1.DELETE("/conversations/:cid", s.handleDeleteConversation)
}

// Echo exposes the router so callers can mount extra handlers.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCorpus(c echo.Context) error {
	ctx := c.Request().Context()
	corpus, err := s.registry.Corpus(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	n, err := corpus.Index.Count(ctx)
	if err != nil {
		s.logger.Warn("counting corpus failed", zap.String("corpus", corpus.ID), zap.Error(err))
		n = -1
	}
	stats := corpus.Stats()
	return c.JSON(http.StatusOK, CorpusResponse{
		ID:            corpus.ID,
		IndexedChunks: n,
		LastIngest: IngestResponse{
			DocumentCount: stats.DocumentCount,
			ChunkCount:    stats.ChunkCount,
			Strategy:      stats.Strategy,
		},
	})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}

	ctx := c.Request().Context()
	var stats *engine.IngestStats
	err := s.registry.WithIngestLock(ctx, c.Param("id"), func(corpus *engine.Corpus) error {
		var err error
		stats, err = s.engine.Ingest(ctx, corpus, req.Documents)
		return err
	})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, IngestResponse{
		DocumentCount: stats.DocumentCount,
		ChunkCount:    stats.ChunkCount,
		Strategy:      stats.Strategy,
	})
}

func (s *Server) handleChunks(c echo.Context) error {
	n := defaultSampleSize
	if raw := c.QueryParam("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxSampleSize {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("n must be between 1 and %d", maxSampleSize))
		}
		n = v
	}
	corpus, err := s.registry.Corpus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	sample := corpus.Sample(n)
	resp := ChunksResponse{Chunks: make([]ChunkView, len(sample))}
	for i, d := range sample {
		resp.Chunks[i] = chunkView(d)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.K < 0 || req.K > maxSearchK {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("k must be between 0 and %d", maxSearchK))
	}

	ctx := c.Request().Context()
	corpus, err := s.registry.Corpus(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	res, err := s.engine.Search(ctx, corpus, req.Query, req.K)
	if err != nil {
		return s.httpError(c, err)
	}

	resp := SearchResponse{Results: make([]SearchHit, len(res.Results)), Degradations: res.Degradations}
	for i, r := range res.Results {
		resp.Results[i] = SearchHit{ChunkView: chunkView(r.Chunk), Score: r.Score}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ConversationID != "" && len(req.History) > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "send either history or conversation_id, not both")
	}
	if err := req.History.Validate(); err != nil {
		return s.httpError(c, err)
	}

	ctx := c.Request().Context()
	corpus, err := s.registry.Corpus(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}

	history := req.History
	if req.ConversationID != "" {
		ctx = logging.WithConversationID(ctx, req.ConversationID)
		c.SetRequest(c.Request().WithContext(ctx))
		history, err = s.store.Load(ctx, req.ConversationID)
		if err != nil {
			return s.httpError(c, err)
		}
	}

	res, err := s.engine.RunTurn(ctx, corpus, req.Question, history)
	if err != nil {
		return s.httpError(c, err)
	}

	if req.ConversationID != "" {
		err := s.store.Append(ctx, req.ConversationID,
			conversation.UserTurn(req.Question),
			conversation.AssistantTurn(res.Answer),
		)
		if err != nil {
			s.logger.Warn("saving conversation failed",
				append(logging.ContextFields(ctx), zap.Error(err))...,
			)
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Answer:         res.Answer,
		Sources:        res.Sources,
		Route:          res.Route,
		Degradations:   res.Degradations,
		ConversationID: req.ConversationID,
	})
}

func (s *Server) handleDeleteConversation(c echo.Context) error {
	if err := s.store.Delete(c.Request().Context(), c.Param("cid")); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// httpError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func (s *Server) httpError(c echo.Context, err error) error {
	fields := append(logging.ContextFields(c.Request().Context()), zap.Error(err))
	switch {
	case errors.Is(err, retrieval.ErrInvalidQuery),
		errors.Is(err, vectorstore.ErrInvalidCollectionName),
		errors.Is(err, conversation.ErrInvalidTurn),
		errors.Is(err, conversation.ErrInvalidID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNoCorpus):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, retrieval.ErrIndexUnavailable),
		errors.Is(err, vectorstore.ErrEmbeddingFailed),
		errors.Is(err, vectorstore.ErrConnectionFailed):
		s.logger.Warn("dependency unavailable", fields...)
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, engine.ErrGenerationFailed):
		s.logger.Warn("generation failed", fields...)
		return echo.NewHTTPError(http.StatusBadGateway, "answer generation failed")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, chunking.ErrInvalidConfig):
		s.logger.Error("chunking misconfigured", fields...)
		return echo.NewHTTPError(http.StatusInternalServerError, "chunking misconfigured")
	default:
		s.logger.Error("request failed", fields...)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
