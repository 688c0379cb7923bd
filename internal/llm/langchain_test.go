package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.options)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChain_Generate(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "  Refunds take 30 days.\n"}},
	}}
	g := NewLangChain(model)

	out, err := g.Generate(context.Background(),
		[]Message{System("be brief"), User("refund window?"), {Role: RoleAssistant, Content: "ok"}},
		WithTemperature(0.1), WithMaxTokens(120),
	)
	require.NoError(t, err)
	assert.Equal(t, "Refunds take 30 days.", out)

	require.Len(t, model.messages, 3)
	assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, llms.TextContent{Text: "refund window?"}, model.messages[1].Parts[0])

	assert.InDelta(t, 0.1, model.options.Temperature, 1e-9)
	assert.Equal(t, 120, model.options.MaxTokens)
	assert.InDelta(t, 0.8, model.options.TopP, 1e-9)
	assert.InDelta(t, 0.2, model.options.FrequencyPenalty, 1e-9)
}

func TestLangChain_Errors(t *testing.T) {
	_, err := NewLangChain(&fakeModel{err: errors.New("429")}).Generate(context.Background(), []Message{User("x")})
	assert.EqualError(t, err, "429")

	_, err = NewLangChain(&fakeModel{resp: &llms.ContentResponse{}}).Generate(context.Background(), []Message{User("x")})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{Model: "openai/gpt-oss-120b"})
	assert.Error(t, err)

	g, err := NewOpenAI(OpenAIConfig{Model: "openai/gpt-oss-120b", APIKey: "gsk_test", BaseURL: "https://api.groq.com/openai/v1"})
	require.NoError(t, err)
	assert.NotNil(t, g)
}

func TestApply(t *testing.T) {
	o := Apply()
	assert.Equal(t, DefaultOptions(), o)

	o = Apply(WithTopP(0.5), WithFrequencyPenalty(0), WithTemperature(0.7))
	assert.InDelta(t, 0.5, o.TopP, 1e-9)
	assert.Zero(t, o.FrequencyPenalty)
	assert.InDelta(t, 0.7, o.Temperature, 1e-9)
	assert.Equal(t, 256, o.MaxTokens)
}
