package chunking

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/convrag/internal/config"
)

// ErrInvalidConfig is returned by NewSelector for unusable parameters.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Window is a chunk size and the overlap between consecutive chunks, in the
// strategy's own unit (characters or tokens).
type Window struct {
	Size    int
	Overlap int
}

func (w Window) validate(name string) error {
	if w.Size <= 0 {
		return fmt.Errorf("%w: %s size must be > 0, got %d", ErrInvalidConfig, name, w.Size)
	}
	if w.Overlap < 0 || w.Overlap >= w.Size {
		return fmt.Errorf("%w: %s overlap must be in [0, size), got size=%d overlap=%d", ErrInvalidConfig, name, w.Size, w.Overlap)
	}
	return nil
}

// Config parameterises the default cascade.
type Config struct {
	// MinChunks is the yield a strategy must exceed to be accepted.
	MinChunks int

	Recursive Window
	Token     Window
	Tokenizer Window
	Word      Window

	// TokenEncoding is the tiktoken encoding for the token strategy.
	TokenEncoding string

	// TokenizerFile is a HuggingFace tokenizer.json. Empty drops the
	// tokenizer strategy from the cascade.
	TokenizerFile string
}

// DefaultConfig returns the standard cascade parameters.
func DefaultConfig() Config {
	return Config{
		MinChunks:     300,
		Recursive:     Window{Size: 300, Overlap: 50},
		Token:         Window{Size: 256, Overlap: 32},
		Tokenizer:     Window{Size: 256, Overlap: 32},
		Word:          Window{Size: 100, Overlap: 10},
		TokenEncoding: "cl100k_base",
	}
}

// Validate checks every window and the threshold.
func (c Config) Validate() error {
	if c.MinChunks < 0 {
		return fmt.Errorf("%w: min chunks must be >= 0, got %d", ErrInvalidConfig, c.MinChunks)
	}
	windows := []struct {
		name string
		w    Window
	}{
		{StrategyRecursive, c.Recursive},
		{StrategyToken, c.Token},
		{StrategyWord, c.Word},
	}
	if c.TokenizerFile != "" {
		windows = append(windows, struct {
			name string
			w    Window
		}{StrategyTokenizer, c.Tokenizer})
	}
	for _, w := range windows {
		if err := w.w.validate(w.name); err != nil {
			return err
		}
	}
	return nil
}

// FromConfig maps the chunking section of the application config.
func FromConfig(c config.ChunkingConfig) Config {
	return Config{
		MinChunks:     c.MinChunks,
		Recursive:     Window{Size: c.RecursiveSize, Overlap: c.RecursiveOverlap},
		Token:         Window{Size: c.TokenSize, Overlap: c.TokenOverlap},
		Tokenizer:     Window{Size: c.TokenizerSize, Overlap: c.TokenizerOverlap},
		Word:          Window{Size: c.WordSize, Overlap: c.WordOverlap},
		TokenEncoding: c.TokenEncoding,
		TokenizerFile: c.TokenizerFile,
	}
}
