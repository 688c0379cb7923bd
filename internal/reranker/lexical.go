package reranker

import (
	"context"
	"strings"
	"unicode"
)

// Lexical scores texts by the fraction of distinct query terms they contain.
// It needs no model and is the default when no cross-encoder is configured.
type Lexical struct{}

// NewLexical returns a Lexical scorer.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Score returns a value in [0, 1] per text. A query with no usable terms
// scores every text 0.
func (l *Lexical) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTerms := terms(query)
	scores := make([]float32, len(texts))
	if len(queryTerms) == 0 {
		return scores, nil
	}
	for i, t := range texts {
		scores[i] = overlap(queryTerms, terms(t))
	}
	return scores, nil
}

// terms lowercases text, splits on anything but letters, digits and '_',
// and drops stopwords and tokens of two characters or fewer.
func terms(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) > 2 && !isStopword(f) {
			out[f] = struct{}{}
		}
	}
	return out
}

func overlap(query, doc map[string]struct{}) float32 {
	matched := 0
	for t := range query {
		if _, ok := doc[t]; ok {
			matched++
		}
	}
	return float32(matched) / float32(len(query))
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "with": {}, "from": {},
	"was": {}, "are": {}, "been": {}, "being": {}, "have": {}, "has": {},
	"had": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "can": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "you": {}, "she": {}, "they": {}, "what": {},
	"which": {}, "who": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"not": {}, "any": {}, "all": {}, "our": {}, "your": {}, "their": {},
}

func isStopword(t string) bool {
	_, ok := stopwords[t]
	return ok
}
