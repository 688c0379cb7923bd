// Package assembler packs texts into a single block under a character
// budget.
package assembler

import (
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/convrag/internal/document"
)

// Separator joins context chunks.
const Separator = "\n\n---\n\n"

// Join packs chunk contents in order, separated by Separator. It stops
// before the first chunk that would push the total content length past
// maxChars; separators do not count. Chunks are never truncated.
func Join(chunks []document.Document, maxChars int) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content()
	}
	return JoinTexts(texts, maxChars, Separator)
}

// JoinTexts is Join over plain strings with a caller-chosen separator.
func JoinTexts(texts []string, maxChars int, sep string) string {
	return strings.Join(texts[:Packed(texts, maxChars)], sep)
}

// Packed returns how many leading texts fit in maxChars characters.
func Packed(texts []string, maxChars int) int {
	if maxChars <= 0 {
		return 0
	}
	total := 0
	for i, t := range texts {
		n := utf8.RuneCountInString(t)
		if total+n > maxChars {
			return i
		}
		total += n
	}
	return len(texts)
}
