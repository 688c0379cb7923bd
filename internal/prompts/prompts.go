// Package prompts loads the prompt set and renders prompts into chat
// messages.
//
// A prompt set is a YAML document with four blocks: refine, history_answer,
// context_answer and no_context. Each block has a list of system lines and a
// user_template in text/template syntax. Values reach templates only as data,
// so braces or template actions inside documents are never interpreted.
package prompts

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/fyrsmithlabs/convrag/internal/llm"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalidPromptSet indicates a prompt file that does not parse or render.
var ErrInvalidPromptSet = errors.New("invalid prompt set")

// maxFileSize bounds prompt files read from disk.
const maxFileSize = 256 * 1024

// Data is the template input.
type Data struct {
	History  string
	Question string
	Context  string
}

// Block is one prompt: system instructions plus a user message template.
type Block struct {
	System       []string `yaml:"system"`
	UserTemplate string   `yaml:"user_template"`

	tmpl *template.Template
}

func (b *Block) empty() bool {
	return len(b.System) == 0 && b.UserTemplate == ""
}

func (b *Block) compile(name string) error {
	t, err := template.New(name).Option("missingkey=error").Parse(b.UserTemplate)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPromptSet, name, err)
	}
	b.tmpl = t
	// Catch references to fields Data does not have.
	if err := t.Execute(&strings.Builder{}, Data{}); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPromptSet, name, err)
	}
	return nil
}

// Render returns the system message followed by the rendered user message.
func (b *Block) Render(data Data) ([]llm.Message, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", b.tmpl.Name(), err)
	}
	return []llm.Message{
		llm.System(strings.Join(b.System, "\n")),
		llm.User(sb.String()),
	}, nil
}

// Set is a complete prompt set.
type Set struct {
	Refine        Block `yaml:"refine"`
	HistoryAnswer Block `yaml:"history_answer"`
	ContextAnswer Block `yaml:"context_answer"`
	NoContext     Block `yaml:"no_context"`
}

func (s *Set) blocks() map[string]*Block {
	return map[string]*Block{
		"refine":         &s.Refine,
		"history_answer": &s.HistoryAnswer,
		"context_answer": &s.ContextAnswer,
		"no_context":     &s.NoContext,
	}
}

// Default returns the built-in prompt set.
func Default() *Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in prompt set: %v", err))
	}
	return s
}

// Parse reads a prompt set. Blocks missing from data keep their built-in
// values.
func Parse(data []byte) (*Set, error) {
	var s Set
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPromptSet, err)
	}

	var defaults *Set
	for name, b := range s.blocks() {
		if b.empty() {
			if defaults == nil {
				defaults = Default()
			}
			*b = *defaults.blocks()[name]
			continue
		}
		if err := b.compile(name); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Load reads the prompt set at path, or returns Default when path is "".
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt set: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidPromptSet, path, maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt set: %w", err)
	}
	return Parse(data)
}
