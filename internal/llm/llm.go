// Package llm defines the text generation contract and its adapters.
package llm

import (
	"context"
	"errors"
)

// Role is a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("model returned no content")

// Generator produces a completion for a chat transcript.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts ...Option) (string, error)
}

// Options are sampling parameters for one call.
type Options struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions are applied before any Option.
func DefaultOptions() Options {
	return Options{
		Temperature:      0.2,
		MaxTokens:        256,
		TopP:             0.8,
		FrequencyPenalty: 0.2,
	}
}

// Apply returns DefaultOptions with opts applied in order.
func Apply(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithTemperature(t float64) Option { return func(o *Options) { o.Temperature = t } }

func WithMaxTokens(n int) Option { return func(o *Options) { o.MaxTokens = n } }

func WithTopP(p float64) Option { return func(o *Options) { o.TopP = p } }

func WithFrequencyPenalty(p float64) Option { return func(o *Options) { o.FrequencyPenalty = p } }
