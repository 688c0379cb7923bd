package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// LangChain adapts a langchaingo model to Generator.
type LangChain struct {
	model llms.Model
}

// NewLangChain wraps model.
func NewLangChain(model llms.Model) *LangChain {
	return &LangChain{model: model}
}

// OpenAIConfig configures an OpenAI-compatible chat endpoint such as Groq.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// NewOpenAI creates a LangChain generator for an OpenAI-compatible API.
func NewOpenAI(cfg OpenAIConfig) (*LangChain, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return NewLangChain(client), nil
}

// Generate sends messages and returns the first choice's text, trimmed.
func (l *LangChain) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	o := Apply(opts...)

	content := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		content[i] = llms.TextParts(chatType(m.Role), m.Content)
	}

	resp, err := l.model.GenerateContent(ctx, content,
		llms.WithTemperature(o.Temperature),
		llms.WithMaxTokens(o.MaxTokens),
		llms.WithTopP(o.TopP),
		llms.WithFrequencyPenalty(o.FrequencyPenalty),
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func chatType(r Role) schema.ChatMessageType {
	switch r {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
