package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/convrag/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_RendersEveryBlock(t *testing.T) {
	s := Default()
	data := Data{History: "User: hi", Question: "What is the refund window?", Context: "Refunds within 30 days."}

	for name, b := range s.blocks() {
		t.Run(name, func(t *testing.T) {
			msgs, err := b.Render(data)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, llm.RoleSystem, msgs[0].Role)
			assert.NotEmpty(t, msgs[0].Content)
			assert.Equal(t, llm.RoleUser, msgs[1].Role)
			assert.Contains(t, msgs[1].Content, "What is the refund window?")
		})
	}
}

func TestRender_ContextAnswer(t *testing.T) {
	msgs, err := Default().ContextAnswer.Render(Data{Question: "Q?", Context: "C1\n\n---\n\nC2"})
	require.NoError(t, err)
	assert.Equal(t, "Context:\nC1\n\n---\n\nC2\n\nQuestion: Q?", msgs[1].Content)
}

func TestRender_RefineWithoutHistory(t *testing.T) {
	msgs, err := Default().Refine.Render(Data{Question: "Q?"})
	require.NoError(t, err)
	assert.Contains(t, msgs[1].Content, "(none)")
	assert.Contains(t, msgs[0].Content, `"route":"retrieve"`)
}

func TestRender_TemplateActionsInDataAreInert(t *testing.T) {
	ctx := `{{.Question}} {"json": {"nested": true}} {{template "x"}}`
	msgs, err := Default().ContextAnswer.Render(Data{Question: "Q", Context: ctx})
	require.NoError(t, err)
	assert.Contains(t, msgs[1].Content, ctx)
}

func TestParse_PartialOverride(t *testing.T) {
	s, err := Parse([]byte(`
context_answer:
  system: ["Answer like a pirate."]
  user_template: "{{.Context}} | {{.Question}}"
`))
	require.NoError(t, err)

	msgs, err := s.ContextAnswer.Render(Data{Question: "q", Context: "c"})
	require.NoError(t, err)
	assert.Equal(t, "Answer like a pirate.", msgs[0].Content)
	assert.Equal(t, "c | q", msgs[1].Content)

	assert.Equal(t, Default().Refine.System, s.Refine.System)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad template syntax", "refine:\n  system: [x]\n  user_template: \"{{.Question\"\n"},
		{"unknown field in template", "refine:\n  system: [x]\n  user_template: \"{{.Documents}}\"\n"},
		{"unknown block", "summarize:\n  system: [x]\n"},
		{"not yaml", "refine: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidPromptSet)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	s, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().NoContext.System, s.NoContext.System)
}

func TestLoad(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Refine.System)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_context:\n  system: [Nothing found.]\n  user_template: \"{{.Question}}\"\n"), 0o600))
	s, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nothing found."}, s.NoContext.System)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
