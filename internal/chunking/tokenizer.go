package chunking

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// hfCodec adapts a HuggingFace tokenizer.json to Codec.
type hfCodec struct {
	tk *tokenizer.Tokenizer
}

// LoadTokenizer reads a tokenizer.json such as the one shipped with
// sentence-transformers/all-MiniLM-L6-v2.
func LoadTokenizer(path string) (Codec, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %s: %w", path, err)
	}
	return &hfCodec{tk: tk}, nil
}

func (c *hfCodec) Encode(text string) ([]int, error) {
	enc, err := c.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	return enc.Ids, nil
}

func (c *hfCodec) Decode(ids []int) string {
	return c.tk.Decode(ids, true)
}
