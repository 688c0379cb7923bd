// Package router decides, per conversation turn, whether the dialogue
// history already answers the question or fresh retrieval is needed, and
// produces a standalone search query for the latter.
package router

import (
	"context"
	"errors"
	"strings"

	"github.com/fyrsmithlabs/convrag/internal/conversation"
	"github.com/fyrsmithlabs/convrag/internal/llm"
	"github.com/fyrsmithlabs/convrag/internal/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("convrag.router")

// Config bounds the history shown to the model.
type Config struct {
	HistoryTurns int
	HistoryChars int
}

// DefaultConfig returns the default bounds: 20 turns, 4000 characters.
func DefaultConfig() Config {
	return Config{HistoryTurns: 20, HistoryChars: 4000}
}

// Router classifies turns with a language model.
type Router struct {
	gen    llm.Generator
	prompt *prompts.Block
	cfg    Config
	logger *zap.Logger
}

// New creates a Router that renders prompt and asks gen.
func New(gen llm.Generator, prompt *prompts.Block, cfg Config, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{gen: gen, prompt: prompt, cfg: cfg, logger: logger}
}

// Route never fails. Any problem yields a retrieve decision for the
// original question with Fallback and Err describing the cause.
func (r *Router) Route(ctx context.Context, question string, history conversation.History) Decision {
	ctx, span := tracer.Start(ctx, "router.Route")
	defer span.End()

	d := Decision{Trace: []State{StateStart, StateRefining}}
	defer func() {
		span.SetAttributes(
			attribute.String("route", string(d.Route)),
			attribute.String("fallback", string(d.Fallback)),
		)
	}()

	msgs, err := r.prompt.Render(prompts.Data{
		History:  history.Format(r.cfg.HistoryTurns, r.cfg.HistoryChars),
		Question: question,
	})
	if err != nil {
		d = r.fallback(d, question, FallbackGeneration, err)
		return d
	}

	raw, err := r.gen.Generate(ctx, msgs, llm.WithTemperature(0.1), llm.WithMaxTokens(120))
	if err != nil {
		cause := FallbackGeneration
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			cause = FallbackCancelled
		}
		d = r.fallback(d, question, cause, err)
		return d
	}
	d.Raw = raw

	p, err := parseReply(raw)
	if err != nil {
		d = r.fallback(d, question, FallbackParse, err)
		return d
	}

	switch p.route {
	case RouteHistory:
		answer := strings.TrimSpace(p.text)
		if answer == "" {
			d = r.fallback(d, question, FallbackParse, errors.New("history route with empty answer"))
			return d
		}
		d.Route = RouteHistory
		d.Answer = answer
		d.Trace = append(d.Trace, StateAnsweredFromHistory)
	default:
		d.Route = RouteRetrieve
		d.Query = strings.TrimSpace(p.text)
		if d.Query == "" {
			d.Query = question
		}
		d.Trace = append(d.Trace, StateAwaitingRetrieval)
	}

	r.logger.Debug("routed turn",
		zap.String("route", string(d.Route)),
		zap.String("trace", d.TraceString()),
	)
	return d
}

func (r *Router) fallback(d Decision, question string, cause Fallback, err error) Decision {
	d.Route = RouteRetrieve
	d.Query = question
	d.Fallback = cause
	d.Err = err
	d.Trace = append(d.Trace, StateAwaitingRetrieval)
	r.logger.Warn("routing fell back to retrieval",
		zap.String("cause", string(cause)),
		zap.Error(err),
		zap.String("raw", truncate(d.Raw, 200)),
	)
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
