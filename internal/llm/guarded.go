package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("convrag.llm")

const defaultBaseBackoff = 500 * time.Millisecond

// GuardConfig tunes the protections around a Generator.
type GuardConfig struct {
	Name              string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	// BreakerFailures consecutive failures open the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// BaseBackoff doubles after every failed attempt.
	BaseBackoff time.Duration
}

// Guarded rate-limits, retries and circuit-breaks calls to a Generator.
// It is safe for concurrent use.
type Guarded struct {
	next    Generator
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cfg     GuardConfig
	logger  *zap.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Generator, cfg GuardConfig, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the upstream's health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
	}
}

// Generate calls the wrapped Generator, retrying transient failures with
// exponential backoff. An open breaker fails fast.
func (g *Guarded) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Generate")
	defer span.End()
	span.SetAttributes(attribute.Int("messages", len(messages)))

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.cfg.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		out, err := g.breaker.Execute(func() (interface{}, error) {
			return g.next.Generate(ctx, messages, opts...)
		})
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return out.(string), nil
		}

		lastErr = err
		if !retryable(ctx, err) {
			break
		}
		g.logger.Debug("generation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", lastErr
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrEmptyResponse):
		return false
	}
	return true
}
