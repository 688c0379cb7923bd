package chunking

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// Strategy names, recorded on every chunk as chunk_strategy.
const (
	StrategyRecursive = "recursive"
	StrategyToken     = "token"
	StrategyTokenizer = "tokenizer"
	StrategyWord      = "word"
)

// Strategy splits one text into pieces.
type Strategy struct {
	Name  string
	Split func(text string) ([]string, error)
}

// Recursive splits on paragraph, line, space and finally character
// boundaries, keeping pieces under w.Size characters.
func Recursive(w Window) Strategy {
	s := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(w.Size),
		textsplitter.WithChunkOverlap(w.Overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)
	return Strategy{Name: StrategyRecursive, Split: s.SplitText}
}

// Token cuts fixed windows of w.Size tiktoken tokens. The encoding's BPE
// ranks are fetched on first use and cached under TIKTOKEN_CACHE_DIR.
func Token(w Window, encoding string) Strategy {
	s := textsplitter.NewTokenSplitter(
		textsplitter.WithChunkSize(w.Size),
		textsplitter.WithChunkOverlap(w.Overlap),
		textsplitter.WithEncodingName(encoding),
	)
	return Strategy{Name: StrategyToken, Split: s.SplitText}
}

// Word packs space-separated words into pieces of at most w.Size characters.
func Word(w Window) Strategy {
	s := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(w.Size),
		textsplitter.WithChunkOverlap(w.Overlap),
		textsplitter.WithSeparators([]string{" "}),
	)
	return Strategy{Name: StrategyWord, Split: s.SplitText}
}

// Codec converts between text and model token IDs.
type Codec interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) string
}

// Tokenizer cuts windows of w.Size model tokens with w.Overlap tokens shared
// between neighbours, so chunks line up with what the embedding model sees.
func Tokenizer(w Window, codec Codec) Strategy {
	return Strategy{
		Name: StrategyTokenizer,
		Split: func(text string) ([]string, error) {
			ids, err := codec.Encode(text)
			if err != nil {
				return nil, fmt.Errorf("encoding text: %w", err)
			}
			return tokenWindows(ids, w, codec.Decode), nil
		},
	}
}

func tokenWindows(ids []int, w Window, decode func([]int) string) []string {
	if len(ids) == 0 {
		return nil
	}
	step := w.Size - w.Overlap
	var out []string
	for start := 0; start < len(ids); start += step {
		end := min(start+w.Size, len(ids))
		out = append(out, decode(ids[start:end]))
		if end == len(ids) {
			break
		}
	}
	return out
}
